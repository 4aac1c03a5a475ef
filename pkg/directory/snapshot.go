package directory

// Snapshot is a plain copy of the directory suitable for encoding.
type Snapshot struct {
	Devices     []Device
	CounterSets []CounterSet
	Categories  []CategorySnapshot
}

// CategorySnapshot is a category with its counters inlined. Counters holds one
// record per shared counter; multi-core counters cover UID..MaxUID.
type CategorySnapshot struct {
	Name          string
	DeviceUID     uint16
	CounterSetUID uint16
	Counters      []CounterRecord
}

// CounterRecord is the wire view of a Counter.
type CounterRecord struct {
	UID           uint16
	MaxUID        uint16
	DeviceUID     uint16
	CounterSetUID uint16
	Class         CounterClass
	Interpolation Interpolation
	Multiplier    float64
	Name          string
	Description   string
	Units         string
}

// UIDs expands the category's counter records into individual UIDs.
func (c CategorySnapshot) UIDs() []uint16 {
	var out []uint16
	for _, rec := range c.Counters {
		for uid := int(rec.UID); uid <= int(rec.MaxUID); uid++ {
			out = append(out, uint16(uid))
		}
	}
	return out
}

// CounterCount returns the number of counter UIDs in the snapshot.
func (s Snapshot) CounterCount() int {
	n := 0
	for _, c := range s.Categories {
		for _, rec := range c.Counters {
			n += int(rec.MaxUID) - int(rec.UID) + 1
		}
	}
	return n
}

// FindCounter returns the record covering uid.
func (s Snapshot) FindCounter(uid uint16) (CounterRecord, bool) {
	for _, c := range s.Categories {
		for _, rec := range c.Counters {
			if uid >= rec.UID && uid <= rec.MaxUID {
				return rec, true
			}
		}
	}
	return CounterRecord{}, false
}

// Snapshot copies the current directory contents.
func (d *Directory) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Snapshot{
		Devices:     make([]Device, 0, len(d.devices)),
		CounterSets: make([]CounterSet, 0, len(d.counterSets)),
		Categories:  make([]CategorySnapshot, 0, len(d.categories)),
	}
	for _, dev := range d.devices {
		s.Devices = append(s.Devices, *dev)
	}
	for _, cs := range d.counterSets {
		s.CounterSets = append(s.CounterSets, *cs)
	}
	for _, cat := range d.categories {
		cs := CategorySnapshot{
			Name:          cat.Name,
			DeviceUID:     cat.DeviceUID,
			CounterSetUID: cat.CounterSetUID,
		}
		for _, uid := range cat.Counters {
			c := d.counterByUID[uid]
			if c.UID != uid {
				continue
			}
			cs.Counters = append(cs.Counters, recordOf(c))
		}
		s.Categories = append(s.Categories, cs)
	}
	return s
}

func recordOf(c *Counter) CounterRecord {
	return CounterRecord{
		UID:           c.UID,
		MaxUID:        c.MaxUID,
		DeviceUID:     c.DeviceUID,
		CounterSetUID: c.CounterSetUID,
		Class:         c.Class,
		Interpolation: c.Interpolation,
		Multiplier:    c.Multiplier,
		Name:          c.Name,
		Description:   c.Description,
		Units:         c.Units,
	}
}
