package directory

import (
	"fmt"
)

// CounterClass describes how a counter value accumulates.
type CounterClass uint16

const (
	// ClassDelta counters report the change since the previous sample.
	ClassDelta CounterClass = 0
	// ClassAbsolute counters report their current value.
	ClassAbsolute CounterClass = 1
)

// String returns the class name.
func (c CounterClass) String() string {
	switch c {
	case ClassDelta:
		return "DELTA"
	case ClassAbsolute:
		return "ABSOLUTE"
	default:
		return fmt.Sprintf("CLASS(%d)", uint16(c))
	}
}

// Interpolation describes how a tool should draw values between samples.
type Interpolation uint16

const (
	// InterpolationStep holds the value until the next sample.
	InterpolationStep Interpolation = 0
	// InterpolationLinear interpolates between samples.
	InterpolationLinear Interpolation = 1
)

// String returns the interpolation name.
func (i Interpolation) String() string {
	switch i {
	case InterpolationStep:
		return "STEP"
	case InterpolationLinear:
		return "LINEAR"
	default:
		return fmt.Sprintf("INTERPOLATION(%d)", uint16(i))
	}
}

// Category groups counters.
type Category struct {
	Name          string
	DeviceUID     uint16
	CounterSetUID uint16
	// Counters lists every counter UID in registration order, including
	// the per-core aliases.
	Counters []uint16
}

// Device is a named device with Cores cores.
type Device struct {
	UID   uint16
	Name  string
	Cores uint16
}

// CounterSet is a named set of counters. Count is the maximum number of its
// counters that can be active at once.
type CounterSet struct {
	UID   uint16
	Name  string
	Count uint16
}

// Counter is one registered counter. A counter on a multi-core device is
// shared by every UID in [UID, MaxUID]. Counters are read-only once registered.
type Counter struct {
	BackendID     string
	UID           uint16
	MaxUID        uint16
	Class         CounterClass
	Interpolation Interpolation
	Multiplier    float64
	Name          string
	Description   string
	Units         string
	DeviceUID     uint16
	CounterSetUID uint16
}

// Cores returns the number of UIDs the counter occupies.
func (c *Counter) Cores() int {
	return int(c.MaxUID) - int(c.UID) + 1
}

// CounterOptions carries the optional counter registration parameters.
type CounterOptions struct {
	Units string

	// NumberOfCores overrides the core count derived from the device.
	// Zero means no override.
	NumberOfCores uint16

	// DeviceUID attaches the counter to a registered device.
	DeviceUID uint16

	// CounterSetUID attaches the counter to a registered counter set.
	CounterSetUID uint16
}
