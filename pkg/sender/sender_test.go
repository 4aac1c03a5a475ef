package sender

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/buffer"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (w *recordingWriter) WritePacket(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.packets = append(w.packets, append([]byte(nil), b...))
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.packets)
}

func (w *recordingWriter) decoded(t *testing.T, e wire.Endianness) []packet.Packet {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]packet.Packet, 0, len(w.packets))
	for _, b := range w.packets {
		p, err := packet.Decode(b, e)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestCounterPacketSenderEncodes(t *testing.T) {
	for _, e := range []wire.Endianness{wire.BigEndian, wire.LittleEndian} {
		t.Run(e.String(), func(t *testing.T) {
			m := buffer.NewManager(buffer.Config{Count: 8, Size: 1024})
			s := NewCounterPacketSender(m, e)

			require.NoError(t, s.SendStreamMetadata(protocol.StreamMetadata{PID: 9, ProcessName: "proc"}))
			require.NoError(t, s.SendConnectionAck())
			require.NoError(t, s.SendRequestCounterDirectory())
			require.NoError(t, s.SendPeriodicCounterSelection(protocol.PeriodicCounterSelection{Period: 500000, CounterIDs: []uint16{1, 2}}))
			require.NoError(t, s.SendPeriodicCounterCapture(protocol.PeriodicCounterCapture{
				Timestamp: 42,
				Values:    []protocol.CounterValue{{UID: 1, Value: 7}},
			}))

			d := directory.New()
			_, err := d.RegisterCategory("cat")
			require.NoError(t, err)
			require.NoError(t, s.SendCounterDirectory(d.Snapshot()))

			var got []packet.Packet
			for buf := m.ReadableBuffer(); buf != nil; buf = m.ReadableBuffer() {
				p, err := packet.Decode(append([]byte(nil), buf.Data()...), e)
				require.NoError(t, err)
				got = append(got, p)
				m.MarkRead(buf)
			}
			require.Len(t, got, 6)

			meta, detected, err := protocol.DecodeStreamMetadata(got[0].Data())
			require.NoError(t, err)
			assert.Equal(t, e, detected)
			assert.Equal(t, uint32(9), meta.PID)
			assert.Equal(t, "proc", meta.ProcessName)
			assert.Equal(t, uint32(1024-packet.HeaderSize), meta.MaxDataLength)

			assert.Equal(t, packet.ConnectionAckHeader, got[1].Header())
			assert.Zero(t, got[1].Length())
			assert.Equal(t, packet.RequestCounterDirectoryHeader, got[2].Header())

			sel, err := protocol.DecodePeriodicCounterSelection(got[3].Data(), e)
			require.NoError(t, err)
			assert.Equal(t, uint32(500000), sel.Period)
			assert.Equal(t, []uint16{1, 2}, sel.CounterIDs)

			capture, err := protocol.DecodePeriodicCounterCapture(got[4].Data(), e)
			require.NoError(t, err)
			assert.Equal(t, uint64(42), capture.Timestamp)

			snap, err := directory.Decode(got[5].Data(), e)
			require.NoError(t, err)
			require.Len(t, snap.Categories, 1)
			assert.Equal(t, "cat", snap.Categories[0].Name)
		})
	}
}

func TestCounterPacketSenderTooLarge(t *testing.T) {
	m := buffer.NewManager(buffer.Config{Count: 1, Size: 16})
	s := NewCounterPacketSender(m, wire.BigEndian)

	err := s.SendPeriodicCounterCapture(protocol.PeriodicCounterCapture{
		Values: []protocol.CounterValue{{UID: 1}, {UID: 2}},
	})
	assert.ErrorIs(t, err, errdefs.ErrBufferExhausted)
	assert.Equal(t, 1, m.Free())
}

func TestSendThreadDrainsInOrder(t *testing.T) {
	m := buffer.NewManager(buffer.Config{Count: 4, Size: 64})
	w := &recordingWriter{}
	th := NewSendThread(SendThreadConfig{Buffers: m, Writer: w, FlushTimeout: time.Hour})
	s := NewCounterPacketSender(m, wire.BigEndian)

	th.Start()
	th.Start()
	assert.True(t, th.IsRunning())

	for i := range uint64(10) {
		require.NoError(t, s.SendPeriodicCounterCapture(protocol.PeriodicCounterCapture{Timestamp: i}))
	}
	require.Eventually(t, func() bool { return w.count() == 10 }, time.Second, time.Millisecond)

	for i, p := range w.decoded(t, wire.BigEndian) {
		c, err := protocol.DecodePeriodicCounterCapture(p.Data(), wire.BigEndian)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), c.Timestamp)
	}

	th.Stop()
	th.Stop()
	assert.False(t, th.IsRunning())
	assert.Equal(t, uint64(10), th.Sent())
}

func TestSendThreadFlushTimeout(t *testing.T) {
	m := buffer.NewManager(buffer.Config{Count: 2, Size: 64})
	w := &recordingWriter{}
	th := NewSendThread(SendThreadConfig{Buffers: m, Writer: w, FlushTimeout: 10 * time.Millisecond})
	th.Start()
	defer th.Stop()

	buf, _, err := m.Reserve(packet.HeaderSize)
	require.NoError(t, err)
	copy(buf.Bytes(), packet.Encode(packet.ConnectionAckHeader, nil, wire.BigEndian))
	require.NoError(t, m.Commit(buf, packet.HeaderSize, false))

	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, time.Millisecond)
}

func TestSendThreadStopDrains(t *testing.T) {
	m := buffer.NewManager(buffer.Config{Count: 4, Size: 64})
	w := &recordingWriter{}
	th := NewSendThread(SendThreadConfig{Buffers: m, Writer: w, FlushTimeout: time.Hour})
	th.Start()

	buf, _, err := m.Reserve(packet.HeaderSize)
	require.NoError(t, err)
	copy(buf.Bytes(), packet.Encode(packet.ConnectionAckHeader, nil, wire.BigEndian))
	require.NoError(t, m.Commit(buf, packet.HeaderSize, false))

	th.Stop()
	assert.Equal(t, 1, w.count())
}

func TestSendThreadWriteError(t *testing.T) {
	m := buffer.NewManager(buffer.Config{Count: 2, Size: 64})
	boom := errors.New("broken pipe")
	w := &recordingWriter{err: boom}

	reported := make(chan error, 1)
	th := NewSendThread(SendThreadConfig{
		Buffers: m,
		Writer:  w,
		OnError: func(err error) {
			reported <- err
		},
	})
	th.Start()

	require.NoError(t, NewCounterPacketSender(m, wire.BigEndian).SendConnectionAck())

	select {
	case err := <-reported:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("write error not reported")
	}
	assert.ErrorIs(t, th.Err(), boom)
	assert.False(t, th.IsRunning())
	th.Stop()
	assert.Equal(t, 2, m.Free())
}

func TestSendThreadStopNeverStarted(t *testing.T) {
	m := buffer.NewManager(buffer.Config{})
	th := NewSendThread(SendThreadConfig{Buffers: m, Writer: &recordingWriter{}})
	th.Stop()
	th.Stop()
	assert.Equal(t, "STOPPED", th.State().String())
}
