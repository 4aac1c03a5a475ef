package directory

import (
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

const (
	tableHeaderSize    = 8
	deviceRecordSize   = 8
	setRecordSize      = 8
	categoryRecordSize = 16
	counterRecordSize  = 32
)

// Size returns the encoded body size of s.
func Size(s Snapshot) int {
	n := 3 * tableHeaderSize
	n += 4 * (len(s.Devices) + len(s.CounterSets) + len(s.Categories))
	for _, dev := range s.Devices {
		n += deviceRecordSize + wire.StringSize(dev.Name)
	}
	for _, cs := range s.CounterSets {
		n += setRecordSize + wire.StringSize(cs.Name)
	}
	for _, cat := range s.Categories {
		n += categoryRecordSize + wire.StringSize(cat.Name) + 4*len(cat.Counters)
		for _, rec := range cat.Counters {
			n += counterRecordSize + wire.StringSize(rec.Name) + wire.StringSize(rec.Description)
			if rec.Units != "" {
				n += wire.StringSize(rec.Units)
			}
		}
	}
	return n
}

// Encode appends the counter directory body for s to w. All offsets are
// relative to the position of w when Encode is called.
func Encode(s Snapshot, w *wire.Writer) {
	base := w.Len()
	rel := func() uint32 { return uint32(w.Len() - base) }

	w.Uint16(uint16(len(s.Devices)))
	w.Uint16(0)
	deviceTable := w.Placeholder32()
	w.Uint16(uint16(len(s.CounterSets)))
	w.Uint16(0)
	setTable := w.Placeholder32()
	w.Uint16(uint16(len(s.Categories)))
	w.Uint16(0)
	categoryTable := w.Placeholder32()

	w.PatchUint32(deviceTable, rel())
	slots := placeholders(w, len(s.Devices))
	for i, dev := range s.Devices {
		w.PatchUint32(slots[i], rel())
		w.Uint16(dev.UID)
		w.Uint16(dev.Cores)
		nameOff := w.Placeholder32()
		w.PatchUint32(nameOff, rel())
		w.String(dev.Name)
	}

	w.PatchUint32(setTable, rel())
	slots = placeholders(w, len(s.CounterSets))
	for i, cs := range s.CounterSets {
		w.PatchUint32(slots[i], rel())
		w.Uint16(cs.UID)
		w.Uint16(cs.Count)
		nameOff := w.Placeholder32()
		w.PatchUint32(nameOff, rel())
		w.String(cs.Name)
	}

	w.PatchUint32(categoryTable, rel())
	slots = placeholders(w, len(s.Categories))
	for i, cat := range s.Categories {
		w.PatchUint32(slots[i], rel())
		w.Uint16(cat.DeviceUID)
		w.Uint16(cat.CounterSetUID)
		w.Uint16(uint16(len(cat.Counters)))
		w.Uint16(0)
		counterTable := w.Placeholder32()
		nameOff := w.Placeholder32()
		w.PatchUint32(nameOff, rel())
		w.String(cat.Name)

		w.PatchUint32(counterTable, rel())
		counterSlots := placeholders(w, len(cat.Counters))
		for j, rec := range cat.Counters {
			w.PatchUint32(counterSlots[j], rel())
			encodeCounter(w, rec, rel)
		}
	}
}

func encodeCounter(w *wire.Writer, rec CounterRecord, rel func() uint32) {
	w.Uint16(rec.UID)
	w.Uint16(rec.MaxUID)
	w.Uint16(rec.DeviceUID)
	w.Uint16(rec.CounterSetUID)
	w.Uint16(uint16(rec.Class))
	w.Uint16(uint16(rec.Interpolation))
	w.Float64(rec.Multiplier)
	nameOff := w.Placeholder32()
	descOff := w.Placeholder32()
	unitsOff := w.Placeholder32()

	w.PatchUint32(nameOff, rel())
	w.String(rec.Name)
	w.PatchUint32(descOff, rel())
	w.String(rec.Description)
	if rec.Units != "" {
		w.PatchUint32(unitsOff, rel())
		w.String(rec.Units)
	}
}

func placeholders(w *wire.Writer, n int) []int {
	slots := make([]int, n)
	for i := range slots {
		slots[i] = w.Placeholder32()
	}
	return slots
}

// EncodeBody returns the counter directory body for s in byte order e.
func EncodeBody(s Snapshot, e wire.Endianness) []byte {
	w := wire.NewWriter(make([]byte, 0, Size(s)), e)
	Encode(s, w)
	return w.Bytes()
}

// Decode parses a counter directory body. Every offset is bounds checked;
// malformed bodies return an error classified as errdefs.ErrProtocol.
func Decode(body []byte, e wire.Endianness) (Snapshot, error) {
	r := wire.NewReader(body, e)
	var s Snapshot

	deviceCount, deviceTable, err := tableHeader(r, 0)
	if err != nil {
		return Snapshot{}, err
	}
	setCount, setTable, err := tableHeader(r, tableHeaderSize)
	if err != nil {
		return Snapshot{}, err
	}
	categoryCount, categoryTable, err := tableHeader(r, 2*tableHeaderSize)
	if err != nil {
		return Snapshot{}, err
	}

	s.Devices = make([]Device, 0, deviceCount)
	for i := 0; i < deviceCount; i++ {
		off, err := pointer(r, deviceTable, i)
		if err != nil {
			return Snapshot{}, err
		}
		var dev Device
		if dev.UID, err = r.Uint16(off); err != nil {
			return Snapshot{}, err
		}
		if dev.Cores, err = r.Uint16(off + 2); err != nil {
			return Snapshot{}, err
		}
		if dev.Name, err = stringAt(r, off+4); err != nil {
			return Snapshot{}, err
		}
		s.Devices = append(s.Devices, dev)
	}

	s.CounterSets = make([]CounterSet, 0, setCount)
	for i := 0; i < setCount; i++ {
		off, err := pointer(r, setTable, i)
		if err != nil {
			return Snapshot{}, err
		}
		var cs CounterSet
		if cs.UID, err = r.Uint16(off); err != nil {
			return Snapshot{}, err
		}
		if cs.Count, err = r.Uint16(off + 2); err != nil {
			return Snapshot{}, err
		}
		if cs.Name, err = stringAt(r, off+4); err != nil {
			return Snapshot{}, err
		}
		s.CounterSets = append(s.CounterSets, cs)
	}

	s.Categories = make([]CategorySnapshot, 0, categoryCount)
	for i := 0; i < categoryCount; i++ {
		off, err := pointer(r, categoryTable, i)
		if err != nil {
			return Snapshot{}, err
		}
		cat, err := decodeCategory(r, off)
		if err != nil {
			return Snapshot{}, err
		}
		s.Categories = append(s.Categories, cat)
	}
	return s, nil
}

func decodeCategory(r *wire.Reader, off int) (CategorySnapshot, error) {
	var cat CategorySnapshot
	var err error
	if cat.DeviceUID, err = r.Uint16(off); err != nil {
		return cat, err
	}
	if cat.CounterSetUID, err = r.Uint16(off + 2); err != nil {
		return cat, err
	}
	count, err := r.Uint16(off + 4)
	if err != nil {
		return cat, err
	}
	table, err := r.Uint32(off + 8)
	if err != nil {
		return cat, err
	}
	if cat.Name, err = stringAt(r, off+12); err != nil {
		return cat, err
	}

	cat.Counters = make([]CounterRecord, 0, count)
	for j := 0; j < int(count); j++ {
		recOff, err := pointer(r, int(table), j)
		if err != nil {
			return cat, err
		}
		rec, err := decodeCounter(r, recOff)
		if err != nil {
			return cat, err
		}
		cat.Counters = append(cat.Counters, rec)
	}
	return cat, nil
}

func decodeCounter(r *wire.Reader, off int) (CounterRecord, error) {
	var rec CounterRecord
	if _, err := r.Bytes(off, counterRecordSize); err != nil {
		return rec, err
	}
	rec.UID, _ = r.Uint16(off)
	rec.MaxUID, _ = r.Uint16(off + 2)
	rec.DeviceUID, _ = r.Uint16(off + 4)
	rec.CounterSetUID, _ = r.Uint16(off + 6)
	class, _ := r.Uint16(off + 8)
	interp, _ := r.Uint16(off + 10)
	rec.Class = CounterClass(class)
	rec.Interpolation = Interpolation(interp)
	rec.Multiplier, _ = r.Float64(off + 12)

	if rec.UID == 0 || rec.MaxUID < rec.UID {
		return rec, errdefs.Protocolf("counter uid range %d..%d", rec.UID, rec.MaxUID)
	}

	var err error
	if rec.Name, err = stringAt(r, off+20); err != nil {
		return rec, err
	}
	if rec.Description, err = stringAt(r, off+24); err != nil {
		return rec, err
	}
	unitsOff, _ := r.Uint32(off + 28)
	if unitsOff != 0 {
		if rec.Units, err = r.String(int(unitsOff)); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func tableHeader(r *wire.Reader, off int) (count, table int, err error) {
	c, err := r.Uint16(off)
	if err != nil {
		return 0, 0, err
	}
	t, err := r.Uint32(off + 4)
	if err != nil {
		return 0, 0, err
	}
	if c > 0 {
		if _, err := r.Bytes(int(t), 4*int(c)); err != nil {
			return 0, 0, err
		}
	}
	return int(c), int(t), nil
}

func pointer(r *wire.Reader, table, i int) (int, error) {
	off, err := r.Uint32(table + 4*i)
	if err != nil {
		return 0, err
	}
	return int(off), nil
}

// stringAt follows the string offset stored at field.
func stringAt(r *wire.Reader, field int) (string, error) {
	off, err := r.Uint32(field)
	if err != nil {
		return "", err
	}
	if off == 0 {
		return "", errdefs.Protocolf("missing string at field offset %d", field)
	}
	return r.String(int(off))
}
