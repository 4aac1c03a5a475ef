package mockserver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/client"
	"github.com/pulse-protocol/pulse-go/pkg/config"
	"github.com/pulse-protocol/pulse-go/pkg/counters"
	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/discovery"
	"github.com/pulse-protocol/pulse-go/pkg/errdefs"
	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/transport"
	"github.com/pulse-protocol/pulse-go/pkg/version"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Network = "tcp"
	cfg.Address = "127.0.0.1:0"
	cfg.ReadTimeout = 20 * time.Millisecond

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)
	return srv
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func dial(t *testing.T, srv *Server, e wire.Endianness) *transport.StreamConnection {
	t.Helper()
	conn, err := transport.Dial("tcp", srv.Addr().String(), time.Second, transport.StreamConfig{Endianness: e})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn *transport.StreamConnection) packet.Packet {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p, err := conn.ReadPacket(50 * time.Millisecond)
		if errors.Is(err, errdefs.ErrTimeout) {
			continue
		}
		require.NoError(t, err)
		return p
	}
	t.Fatal("no packet received")
	return packet.Packet{}
}

func metadata() protocol.StreamMetadata {
	return protocol.StreamMetadata{
		Version:        version.MustParse(version.Current),
		PID:            42,
		ProcessName:    "scenario",
		PacketVersions: protocol.DefaultPacketVersions(),
	}
}

func TestHandshakeAndSelectionScenario(t *testing.T) {
	srv := startServer(t, Config{})
	ctx := testContext(t)

	conn := dial(t, srv, wire.BigEndian)
	require.NoError(t, conn.Send(packet.StreamMetadataHeader, protocol.EncodeStreamMetadata(metadata(), wire.BigEndian)))

	ack := readPacket(t, conn)
	assert.Equal(t, packet.ConnectionAckHeader, ack.Header())
	assert.Zero(t, ack.Length())

	sess, err := srv.WaitForSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.BigEndian, sess.Endianness())
	m, ok := sess.Metadata()
	require.True(t, ok)
	assert.Equal(t, "scenario", m.ProcessName)
	assert.Equal(t, uint32(42), m.PID)

	sel := protocol.PeriodicCounterSelection{Period: 500000, CounterIDs: []uint16{1, 2, 5, 10}}
	require.NoError(t, conn.Send(packet.PeriodicCounterSelectionHeader,
		protocol.EncodePeriodicCounterSelection(sel, wire.BigEndian)))

	got, err := sess.WaitForSelection(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(500000), got.Period)
	assert.Equal(t, []uint16{1, 2, 5, 10}, got.CounterIDs)
}

func TestLittleEndianClientAndCaptures(t *testing.T) {
	var seen atomic.Int32
	srv := startServer(t, Config{
		RequestDirectory: true,
		MaxCaptures:      2,
		OnCapture:        func(*Session, protocol.PeriodicCounterCapture) { seen.Add(1) },
	})
	ctx := testContext(t)

	conn := dial(t, srv, wire.LittleEndian)
	require.NoError(t, conn.Send(packet.StreamMetadataHeader, protocol.EncodeStreamMetadata(metadata(), wire.LittleEndian)))
	assert.Equal(t, packet.ConnectionAckHeader, readPacket(t, conn).Header())
	assert.Equal(t, packet.RequestCounterDirectoryHeader, readPacket(t, conn).Header())

	sess, err := srv.WaitForSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, wire.LittleEndian, sess.Endianness())

	for ts := uint64(1); ts <= 3; ts++ {
		c := protocol.PeriodicCounterCapture{Timestamp: ts, Values: []protocol.CounterValue{{UID: 7, Value: uint32(ts * 10)}}}
		require.NoError(t, conn.Send(packet.PeriodicCounterCaptureHeader, protocol.EncodePeriodicCounterCapture(c, wire.LittleEndian)))
	}

	caps, err := sess.WaitForCapture(ctx, 3)
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, uint64(2), caps[0].Timestamp)
	assert.Equal(t, uint64(3), caps[1].Timestamp)
	assert.Equal(t, uint32(30), caps[1].Values[0].Value)
	assert.Equal(t, uint64(3), sess.CaptureCount())
	assert.Eventually(t, func() bool { return seen.Load() == 3 }, time.Second, time.Millisecond)
}

func TestFirstPacketMustBeMetadata(t *testing.T) {
	srv := startServer(t, Config{})
	ctx := testContext(t)

	conn := dial(t, srv, wire.BigEndian)
	// A selection body whose first word is not the magic.
	require.NoError(t, conn.Send(packet.PeriodicCounterSelectionHeader,
		protocol.EncodePeriodicCounterSelection(protocol.PeriodicCounterSelection{Period: 1, CounterIDs: []uint16{1}}, wire.BigEndian)))

	sess, err := srv.WaitForSession(ctx)
	require.NoError(t, err)
	select {
	case <-sess.Done():
	case <-ctx.Done():
		t.Fatal("session did not end")
	}
	assert.ErrorIs(t, sess.Err(), errdefs.ErrProtocol)
	assert.ErrorIs(t, sess.SendRequestCounterDirectory(), ErrSessionClosed)

	_, err = sess.WaitForDirectory(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)

	// The server keeps accepting.
	conn2 := dial(t, srv, wire.BigEndian)
	require.NoError(t, conn2.Send(packet.StreamMetadataHeader, protocol.EncodeStreamMetadata(metadata(), wire.BigEndian)))
	assert.Equal(t, packet.ConnectionAckHeader, readPacket(t, conn2).Header())
}

func TestClientServiceEndToEnd(t *testing.T) {
	srv := startServer(t, Config{})
	ctx := testContext(t)

	dir := directory.New()
	_, err := dir.RegisterCategory("Inference")
	require.NoError(t, err)
	c, err := dir.RegisterCounter("", "Inference", directory.ClassDelta, directory.InterpolationStep, 1,
		"Inferences", "Completed inferences", directory.CounterOptions{Units: "runs"})
	require.NoError(t, err)

	store := counters.NewStore()
	store.TrackDirectory(dir)
	_, err = store.Add(c.UID, 5)
	require.NoError(t, err)

	svc := client.New(client.Config{
		ProcessName:  "e2e",
		Endianness:   wire.LittleEndian,
		Directory:    dir,
		Counters:     store,
		ReadTimeout:  20 * time.Millisecond,
		FlushTimeout: 5 * time.Millisecond,
		Factory:      client.DialFactory{Network: "tcp", Address: srv.Addr().String(), Timeout: time.Second},
	})
	defer svc.Stop()
	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.WaitForState(ctx, client.StateActive))

	sess, err := srv.WaitForSession(ctx)
	require.NoError(t, err)

	snap, err := sess.WaitForDirectory(ctx)
	require.NoError(t, err)
	rec, ok := snap.FindCounter(c.UID)
	require.True(t, ok)
	assert.Equal(t, "Inferences", rec.Name)
	assert.Equal(t, "runs", rec.Units)

	require.NoError(t, sess.SendPeriodicCounterSelection(protocol.PeriodicCounterSelection{
		Period:     10000,
		CounterIDs: []uint16{c.UID, 999},
	}))
	echo, err := sess.WaitForSelection(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint16{c.UID}, echo.CounterIDs)

	caps, err := sess.WaitForCapture(ctx, 2)
	require.NoError(t, err)
	require.NotEmpty(t, caps[0].Values)
	assert.Equal(t, c.UID, caps[0].Values[0].UID)
	assert.Equal(t, uint32(5), caps[0].Values[0].Value)

	svc.Stop()
	select {
	case <-sess.Done():
	case <-ctx.Done():
		t.Fatal("session did not end after client stop")
	}
	assert.NoError(t, sess.Err())
	assert.Eventually(t, func() bool { return len(srv.ActiveSessions()) == 0 }, time.Second, time.Millisecond)
	assert.Len(t, srv.Sessions(), 1)
}

type mockAdvertiser struct {
	mock.Mock
}

func (m *mockAdvertiser) Advertise(ctx context.Context, info *discovery.ServerInfo) error {
	return m.Called(ctx, info).Error(0)
}

func (m *mockAdvertiser) Update(info *discovery.ServerInfo) error {
	return m.Called(info).Error(0)
}

func (m *mockAdvertiser) Stop() {
	m.Called()
}

func TestAdvertiseOnStart(t *testing.T) {
	adv := &mockAdvertiser{}
	adv.On("Advertise", mock.Anything, mock.MatchedBy(func(info *discovery.ServerInfo) bool {
		return info.InstanceName == "lab" && info.Port != 0
	})).Return(nil)
	adv.On("Stop").Return()

	srv := startServer(t, Config{Advertise: true, InstanceName: "lab", Advertiser: adv})
	srv.Stop()

	adv.AssertExpectations(t)
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Config{Network: "unix", Advertise: true})
	assert.ErrorIs(t, err, ErrNoListener)

	_, err = NewServer(Config{Network: "udp"})
	assert.ErrorIs(t, err, ErrNoListener)
}

func TestWaitForSessionNotRunning(t *testing.T) {
	srv, err := NewServer(Config{Network: "tcp", Address: "127.0.0.1:0"})
	require.NoError(t, err)
	_, err = srv.WaitForSession(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestConfigFromFile(t *testing.T) {
	s := config.DefaultServer()
	s.RequestDirectory = true
	s.Selection = &config.Selection{PeriodUs: 20000, Counters: []uint16{3, 4}}

	cfg := ConfigFromFile(s)
	assert.Equal(t, s.Network, cfg.Network)
	assert.True(t, cfg.RequestDirectory)
	require.NotNil(t, cfg.Selection)
	assert.Equal(t, uint32(20000), cfg.Selection.Period)
	assert.Equal(t, []uint16{3, 4}, cfg.Selection.CounterIDs)
}
