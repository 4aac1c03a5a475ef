package protocol

import (
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/version"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// streamMetadataFixedSize covers magic, version, max length, pid and five offsets.
const (
	streamMetadataMinSize   = 16
	streamMetadataFixedSize = 36
)

// PacketVersion advertises the version of one packet kind.
type PacketVersion struct {
	Header  uint32
	Version version.Version
}

// StreamMetadata is the handshake packet body.
type StreamMetadata struct {
	Version         version.Version
	MaxDataLength   uint32
	PID             uint32
	Info            string
	HardwareVersion string
	SoftwareVersion string
	ProcessName     string
	PacketVersions  []PacketVersion
}

// DefaultPacketVersions lists every packet this library speaks at 1.0.0.
func DefaultPacketVersions() []PacketVersion {
	v := version.New(1, 0, 0)
	return []PacketVersion{
		{Header: packet.StreamMetadataHeader, Version: v},
		{Header: packet.ConnectionAckHeader, Version: v},
		{Header: packet.CounterDirectoryHeader, Version: v},
		{Header: packet.RequestCounterDirectoryHeader, Version: v},
		{Header: packet.PeriodicCounterSelectionHeader, Version: v},
		{Header: packet.PeriodicCounterCaptureHeader, Version: v},
	}
}

// StreamMetadataSize returns the encoded body size of m.
func StreamMetadataSize(m StreamMetadata) int {
	n := streamMetadataFixedSize
	for _, s := range []string{m.Info, m.HardwareVersion, m.SoftwareVersion, m.ProcessName} {
		if s != "" {
			n += wire.StringSize(s)
		}
	}
	if len(m.PacketVersions) > 0 {
		n += 4 + 8*len(m.PacketVersions)
	}
	return n
}

// WriteStreamMetadata appends the body of m to w, magic first.
func WriteStreamMetadata(w *wire.Writer, m StreamMetadata) {
	base := w.Len()
	w.Uint32(wire.PipeMagic)
	w.Uint32(m.Version.Encoded())
	w.Uint32(m.MaxDataLength)
	w.Uint32(m.PID)

	var slots [5]int
	for i := range slots {
		slots[i] = w.Placeholder32()
	}

	for i, s := range []string{m.Info, m.HardwareVersion, m.SoftwareVersion, m.ProcessName} {
		if s == "" {
			continue
		}
		w.PatchUint32(slots[i], uint32(w.Len()-base))
		w.String(s)
	}

	if len(m.PacketVersions) > 0 {
		w.PatchUint32(slots[4], uint32(w.Len()-base))
		w.Uint16(0)
		w.Uint16(uint16(len(m.PacketVersions)))
		for _, pv := range m.PacketVersions {
			w.Uint32(pv.Header)
			w.Uint32(pv.Version.Encoded())
		}
	}
}

// EncodeStreamMetadata returns the body of m in byte order e.
func EncodeStreamMetadata(m StreamMetadata, e wire.Endianness) []byte {
	w := wire.NewWriter(make([]byte, 0, StreamMetadataSize(m)), e)
	WriteStreamMetadata(w, m)
	return w.Bytes()
}

// DecodeStreamMetadata detects the byte order from the magic and decodes body.
// A body holding only the first four words is accepted.
func DecodeStreamMetadata(body []byte) (StreamMetadata, wire.Endianness, error) {
	e, err := wire.DetectEndianness(body)
	if err != nil {
		return StreamMetadata{}, e, err
	}
	if len(body) < streamMetadataMinSize {
		return StreamMetadata{}, e, errdefs.Protocolf("stream metadata too short: %d bytes", len(body))
	}

	r := wire.NewReader(body, e)
	var m StreamMetadata
	v, _ := r.Uint32(4)
	m.Version = version.Decode(v)
	m.MaxDataLength, _ = r.Uint32(8)
	m.PID, _ = r.Uint32(12)

	if len(body) < streamMetadataFixedSize {
		return m, e, nil
	}

	targets := []*string{&m.Info, &m.HardwareVersion, &m.SoftwareVersion, &m.ProcessName}
	for i, target := range targets {
		off, _ := r.Uint32(16 + 4*i)
		if off == 0 {
			continue
		}
		if *target, err = r.String(int(off)); err != nil {
			return StreamMetadata{}, e, err
		}
	}

	tableOff, _ := r.Uint32(32)
	if tableOff == 0 {
		return m, e, nil
	}
	count, err := r.Uint16(int(tableOff) + 2)
	if err != nil {
		return StreamMetadata{}, e, err
	}
	m.PacketVersions = make([]PacketVersion, 0, count)
	for i := 0; i < int(count); i++ {
		entry := int(tableOff) + 4 + 8*i
		header, err := r.Uint32(entry)
		if err != nil {
			return StreamMetadata{}, e, err
		}
		encoded, err := r.Uint32(entry + 4)
		if err != nil {
			return StreamMetadata{}, e, err
		}
		m.PacketVersions = append(m.PacketVersions, PacketVersion{Header: header, Version: version.Decode(encoded)})
	}
	return m, e, nil
}
