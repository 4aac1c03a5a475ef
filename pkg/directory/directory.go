package directory

import (
	"fmt"
	"math"
	"sync"
)

// Directory is the counter directory registry. It is safe for concurrent use:
// registrations are serialized, reads run concurrently with each other.
type Directory struct {
	mu sync.RWMutex

	categories     []*Category
	categoryByName map[string]*Category

	devices      []*Device
	deviceByUID  map[uint16]*Device
	deviceByName map[string]*Device

	counterSets      []*CounterSet
	counterSetByUID  map[uint16]*CounterSet
	counterSetByName map[string]*CounterSet

	// counters holds one entry per shared Counter in registration order;
	// counterByUID holds one entry per UID.
	counters     []*Counter
	counterByUID map[uint16]*Counter

	nextUID uint32
}

// New creates an empty directory.
func New() *Directory {
	d := &Directory{}
	d.reset()
	return d
}

func (d *Directory) reset() {
	d.categories = nil
	d.categoryByName = make(map[string]*Category)
	d.devices = nil
	d.deviceByUID = make(map[uint16]*Device)
	d.deviceByName = make(map[string]*Device)
	d.counterSets = nil
	d.counterSetByUID = make(map[uint16]*CounterSet)
	d.counterSetByName = make(map[string]*CounterSet)
	d.counters = nil
	d.counterByUID = make(map[uint16]*Counter)
	d.nextUID = 1
}

// Clear removes every entity and restarts UID allocation.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

// peekUIDs returns the first UID of the next n-wide range without consuming it.
func (d *Directory) peekUIDs(n int) (uint16, error) {
	if n < 1 {
		n = 1
	}
	if d.nextUID+uint32(n)-1 > math.MaxUint16 {
		return 0, fmt.Errorf("%w: need %d uids from %d", ErrUIDSpaceExhausted, n, d.nextUID)
	}
	return uint16(d.nextUID), nil
}

// commitUIDs consumes the range returned by the last peekUIDs.
func (d *Directory) commitUIDs(n int) {
	if n < 1 {
		n = 1
	}
	d.nextUID += uint32(n)
}

// RegisterCategory registers a new category.
func (d *Directory) RegisterCategory(name string) (Category, error) {
	if err := checkName("category", name); err != nil {
		return Category{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.categoryByName[name]; exists {
		return Category{}, fmt.Errorf("%w: category %q", ErrDuplicateName, name)
	}

	c := &Category{Name: name}
	d.categories = append(d.categories, c)
	d.categoryByName[name] = c
	return copyCategory(c), nil
}

// RegisterDevice registers a device with the given core count. If
// parentCategory is not empty the category is linked to the new device.
func (d *Directory) RegisterDevice(name string, cores uint16, parentCategory string) (Device, error) {
	if err := checkName("device", name); err != nil {
		return Device{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.deviceByName[name]; exists {
		return Device{}, fmt.Errorf("%w: device %q", ErrDuplicateName, name)
	}

	uid, err := d.peekUIDs(1)
	if err != nil {
		return Device{}, err
	}

	var parent *Category
	if parentCategory != "" {
		parent = d.categoryByName[parentCategory]
		if parent == nil {
			return Device{}, fmt.Errorf("%w: %q", ErrUnknownCategory, parentCategory)
		}
		if parent.DeviceUID != 0 {
			return Device{}, fmt.Errorf("%w: category %q has device %d", ErrConflictingDevice, parentCategory, parent.DeviceUID)
		}
	}

	d.commitUIDs(1)
	dev := &Device{UID: uid, Name: name, Cores: cores}
	d.devices = append(d.devices, dev)
	d.deviceByUID[uid] = dev
	d.deviceByName[name] = dev
	if parent != nil {
		parent.DeviceUID = uid
	}
	return *dev, nil
}

// RegisterCounterSet registers a counter set. If parentCategory is not empty
// the category is linked to the new set.
func (d *Directory) RegisterCounterSet(name string, count uint16, parentCategory string) (CounterSet, error) {
	if err := checkName("counter set", name); err != nil {
		return CounterSet{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.counterSetByName[name]; exists {
		return CounterSet{}, fmt.Errorf("%w: counter set %q", ErrDuplicateName, name)
	}

	uid, err := d.peekUIDs(1)
	if err != nil {
		return CounterSet{}, err
	}

	var parent *Category
	if parentCategory != "" {
		parent = d.categoryByName[parentCategory]
		if parent == nil {
			return CounterSet{}, fmt.Errorf("%w: %q", ErrUnknownCategory, parentCategory)
		}
		if parent.CounterSetUID != 0 {
			return CounterSet{}, fmt.Errorf("%w: category %q has counter set %d", ErrConflictingCounterSet, parentCategory, parent.CounterSetUID)
		}
	}

	d.commitUIDs(1)
	cs := &CounterSet{UID: uid, Name: name, Count: count}
	d.counterSets = append(d.counterSets, cs)
	d.counterSetByUID[uid] = cs
	d.counterSetByName[name] = cs
	if parent != nil {
		parent.CounterSetUID = uid
	}
	return *cs, nil
}

// RegisterCounter registers a counter under parentCategory and returns the
// shared record. The counter occupies one UID per core; the core count is
// taken from, in order: opts.NumberOfCores, the device in opts.DeviceUID,
// the parent category's device, else a single UID.
func (d *Directory) RegisterCounter(backendID, parentCategory string, class CounterClass, interpolation Interpolation,
	multiplier float64, name, description string, opts CounterOptions) (*Counter, error) {
	if !validText(name) {
		return nil, fmt.Errorf("%w: counter name %q", ErrInvalidName, name)
	}
	if !validText(description) {
		return nil, fmt.Errorf("%w: description of counter %q", ErrInvalidCounter, name)
	}
	if opts.Units != "" && !validText(opts.Units) {
		return nil, fmt.Errorf("%w: units of counter %q", ErrInvalidCounter, name)
	}
	if class != ClassDelta && class != ClassAbsolute {
		return nil, fmt.Errorf("%w: class %d", ErrInvalidCounter, class)
	}
	if interpolation != InterpolationStep && interpolation != InterpolationLinear {
		return nil, fmt.Errorf("%w: interpolation %d", ErrInvalidCounter, interpolation)
	}
	if !(multiplier > 0) || math.IsInf(multiplier, 0) {
		return nil, fmt.Errorf("%w: multiplier %v", ErrInvalidCounter, multiplier)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	parent := d.categoryByName[parentCategory]
	if parent == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, parentCategory)
	}
	for _, uid := range parent.Counters {
		if d.counterByUID[uid].Name == name {
			return nil, fmt.Errorf("%w: counter %q in category %q", ErrDuplicateName, name, parentCategory)
		}
	}

	var device *Device
	if opts.DeviceUID != 0 {
		if device = d.deviceByUID[opts.DeviceUID]; device == nil {
			return nil, fmt.Errorf("%w: uid %d", ErrUnknownDevice, opts.DeviceUID)
		}
	}
	if opts.CounterSetUID != 0 {
		if d.counterSetByUID[opts.CounterSetUID] == nil {
			return nil, fmt.Errorf("%w: uid %d", ErrUnknownCounterSet, opts.CounterSetUID)
		}
	}

	cores := d.coresFor(opts, device, parent)
	uid, err := d.peekUIDs(cores)
	if err != nil {
		return nil, err
	}
	d.commitUIDs(cores)

	counter := &Counter{
		BackendID:     backendID,
		UID:           uid,
		MaxUID:        uid + uint16(cores) - 1,
		Class:         class,
		Interpolation: interpolation,
		Multiplier:    multiplier,
		Name:          name,
		Description:   description,
		Units:         opts.Units,
		DeviceUID:     opts.DeviceUID,
		CounterSetUID: opts.CounterSetUID,
	}
	d.counters = append(d.counters, counter)
	for i := 0; i < cores; i++ {
		d.counterByUID[uid+uint16(i)] = counter
		parent.Counters = append(parent.Counters, uid+uint16(i))
	}
	return counter, nil
}

// coresFor resolves the number of UIDs a new counter occupies. Called with d.mu held.
func (d *Directory) coresFor(opts CounterOptions, device *Device, parent *Category) int {
	switch {
	case opts.NumberOfCores > 0:
		return int(opts.NumberOfCores)
	case device != nil && device.Cores > 0:
		return int(device.Cores)
	case parent.DeviceUID != 0:
		if dev := d.deviceByUID[parent.DeviceUID]; dev != nil && dev.Cores > 0 {
			return int(dev.Cores)
		}
	}
	return 1
}

// GetCategory returns the named category.
func (d *Directory) GetCategory(name string) (Category, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.categoryByName[name]
	if !ok {
		return Category{}, false
	}
	return copyCategory(c), true
}

// GetDevice returns the device with the given UID.
func (d *Directory) GetDevice(uid uint16) (Device, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.deviceByUID[uid]
	if !ok {
		return Device{}, false
	}
	return *dev, true
}

// GetCounterSet returns the counter set with the given UID.
func (d *Directory) GetCounterSet(uid uint16) (CounterSet, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cs, ok := d.counterSetByUID[uid]
	if !ok {
		return CounterSet{}, false
	}
	return *cs, true
}

// GetCounter returns the counter indexed by uid. Every UID of a multi-core
// counter returns the same pointer.
func (d *Directory) GetCounter(uid uint16) (*Counter, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.counterByUID[uid]
	return c, ok
}

// IsCategoryRegistered reports whether a category with this name exists.
func (d *Directory) IsCategoryRegistered(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.categoryByName[name]
	return ok
}

// IsDeviceRegistered reports whether a device with this name exists.
func (d *Directory) IsDeviceRegistered(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.deviceByName[name]
	return ok
}

// IsCounterSetRegistered reports whether a counter set with this name exists.
func (d *Directory) IsCounterSetRegistered(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.counterSetByName[name]
	return ok
}

// IsCounterRegistered reports whether a counter with this name exists in any category.
func (d *Directory) IsCounterRegistered(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.counters {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Categories returns every category in registration order.
func (d *Directory) Categories() []Category {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Category, 0, len(d.categories))
	for _, c := range d.categories {
		out = append(out, copyCategory(c))
	}
	return out
}

// Devices returns every device in registration order.
func (d *Directory) Devices() []Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Device, 0, len(d.devices))
	for _, dev := range d.devices {
		out = append(out, *dev)
	}
	return out
}

// CounterSets returns every counter set in registration order.
func (d *Directory) CounterSets() []CounterSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]CounterSet, 0, len(d.counterSets))
	for _, cs := range d.counterSets {
		out = append(out, *cs)
	}
	return out
}

// Counters returns every counter UID mapped to its shared record.
func (d *Directory) Counters() map[uint16]*Counter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[uint16]*Counter, len(d.counterByUID))
	for uid, c := range d.counterByUID {
		out[uid] = c
	}
	return out
}

// CounterUIDs returns every registered counter UID in ascending order.
func (d *Directory) CounterUIDs() []uint16 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]uint16, 0, len(d.counterByUID))
	for _, c := range d.counters {
		for uid := int(c.UID); uid <= int(c.MaxUID); uid++ {
			out = append(out, uint16(uid))
		}
	}
	return out
}

// CategoryCount returns the number of categories.
func (d *Directory) CategoryCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.categories)
}

// DeviceCount returns the number of devices.
func (d *Directory) DeviceCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.devices)
}

// CounterSetCount returns the number of counter sets.
func (d *Directory) CounterSetCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.counterSets)
}

// CounterCount returns the number of counter UIDs, aliases included.
func (d *Directory) CounterCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.counterByUID)
}

func copyCategory(c *Category) Category {
	out := *c
	out.Counters = append([]uint16(nil), c.Counters...)
	return out
}
