package capture

// CounterValueReader reads the current value of a runtime-owned counter.
// Delta counters return the change since the previous read.
type CounterValueReader interface {
	ReadCounterValue(uid uint16) (uint32, error)
}

// LocalValue is one backend reading, keyed by the backend-local id.
type LocalValue struct {
	LocalID uint16
	Value   uint32
}

// Timestamp is a batch of backend readings taken at one instant.
type Timestamp struct {
	Timestamp uint64
	Values    []LocalValue
}

// BackendRegistry gives the sampler access to backend counters.
type BackendRegistry interface {
	ActiveBackends() []string
	ReportCounterValues(backend string) []Timestamp
}

// CounterActivator is implemented by backend registries that need to be told
// which of their counters were selected. ids are backend-local.
type CounterActivator interface {
	ActivateCounters(backend string, periodUs uint32, ids []uint16) error
}

// ProfilingNotifier is implemented by backend registries that want to know
// when the connection becomes active or goes away.
type ProfilingNotifier interface {
	ProfilingActive(active bool)
}
