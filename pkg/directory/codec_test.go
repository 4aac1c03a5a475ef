package directory

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDirectory(t *testing.T) *Directory {
	t.Helper()
	d := New()
	_, err := d.RegisterCategory("gpu")
	require.NoError(t, err)
	_, err = d.RegisterCategory("memory")
	require.NoError(t, err)
	dev, err := d.RegisterDevice("GPU0", 2, "gpu")
	require.NoError(t, err)
	cs, err := d.RegisterCounterSet("alloc set", 3, "memory")
	require.NoError(t, err)

	_, err = d.RegisterCounter("gpu_backend", "gpu", ClassDelta, InterpolationLinear, 0.5,
		"cycles", "core cycles", CounterOptions{Units: "cycles", DeviceUID: dev.UID})
	require.NoError(t, err)
	_, err = d.RegisterCounter("", "memory", ClassAbsolute, InterpolationStep, 1,
		"bytes allocated", "live heap bytes", CounterOptions{CounterSetUID: cs.UID})
	require.NoError(t, err)
	return d
}

func TestCodecRoundTrip(t *testing.T) {
	d := sampleDirectory(t)
	snap := d.Snapshot()

	for _, e := range []wire.Endianness{wire.BigEndian, wire.LittleEndian} {
		t.Run(e.String(), func(t *testing.T) {
			body := EncodeBody(snap, e)
			assert.Len(t, body, Size(snap))
			assert.Zero(t, len(body)%4)

			got, err := Decode(body, e)
			require.NoError(t, err)
			assert.Equal(t, snap, got)
			assert.Equal(t, d.CounterCount(), got.CounterCount())
		})
	}
}

func TestSnapshotSharesMultiCoreRecord(t *testing.T) {
	snap := sampleDirectory(t).Snapshot()

	require.Len(t, snap.Categories, 2)
	gpu := snap.Categories[0]
	require.Len(t, gpu.Counters, 1)
	assert.Equal(t, []uint16{3, 4}, gpu.UIDs())

	rec, ok := snap.FindCounter(4)
	require.True(t, ok)
	assert.Equal(t, "cycles", rec.Name)
	assert.Equal(t, 0.5, rec.Multiplier)

	_, ok = snap.FindCounter(99)
	assert.False(t, ok)
}

func TestEncodeEmpty(t *testing.T) {
	body := EncodeBody(Snapshot{}, wire.BigEndian)
	assert.Len(t, body, 24)

	got, err := Decode(body, wire.BigEndian)
	require.NoError(t, err)
	assert.Empty(t, got.Devices)
	assert.Empty(t, got.Categories)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	body := EncodeBody(sampleDirectory(t).Snapshot(), wire.BigEndian)

	tests := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"truncated header", body[:10]},
		{"truncated records", body[:len(body)-8]},
		{"bad device table offset", patch32(body, 4, 0xFFFFFF00)},
		{"bad category count", patch16(body, 16, 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.body, wire.BigEndian)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errdefs.ErrProtocol), "got %v", err)
		})
	}
}

func TestDecodeRejectsInvertedUIDRange(t *testing.T) {
	snap := Snapshot{Categories: []CategorySnapshot{{
		Name:     "cat",
		Counters: []CounterRecord{{UID: 5, MaxUID: 4, Multiplier: 1, Name: "c", Description: "d"}},
	}}}
	_, err := Decode(EncodeBody(snap, wire.LittleEndian), wire.LittleEndian)
	assert.True(t, errors.Is(err, errdefs.ErrProtocol))
}

func patch32(b []byte, off int, v uint32) []byte {
	out := append([]byte(nil), b...)
	binary.BigEndian.PutUint32(out[off:], v)
	return out
}

func patch16(b []byte, off int, v uint16) []byte {
	out := append([]byte(nil), b...)
	binary.BigEndian.PutUint16(out[off:], v)
	return out
}
