package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.plog")

	logger, err := log.NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func sampleEvents() []log.Event {
	period := uint32(10000)
	return []log.Event{
		{
			Timestamp: base, ConnectionID: "aaaaaaaa-1111", LocalRole: log.RoleServer,
			Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryPacket,
			Packet: &log.PacketEvent{Family: 0, ID: 0, Length: 40, Endianness: "big"},
		},
		{
			Timestamp: base.Add(time.Millisecond), ConnectionID: "aaaaaaaa-1111", LocalRole: log.RoleServer,
			Direction: log.DirectionOut, Layer: log.LayerTransport, Category: log.CategoryPacket,
			Packet: &log.PacketEvent{Family: 0, ID: 1, Endianness: "big"},
		},
		{
			Timestamp: base.Add(2 * time.Millisecond), ConnectionID: "aaaaaaaa-1111", LocalRole: log.RoleServer,
			Direction: log.DirectionOut, Layer: log.LayerProtocol, Category: log.CategoryPacket,
			Decoded: &log.DecodedEvent{Name: "PeriodicCounterSelection", Period: &period, CounterIDs: []uint16{1, 2}},
		},
		{
			Timestamp: base.Add(time.Second), ConnectionID: "aaaaaaaa-1111", LocalRole: log.RoleServer,
			Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryPacket,
			Packet: &log.PacketEvent{Family: 3, ID: 0, Length: 20, Endianness: "big"},
		},
		{
			Timestamp: base.Add(2 * time.Second), ConnectionID: "aaaaaaaa-1111", LocalRole: log.RoleServer,
			Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryPacket,
			Packet: &log.PacketEvent{Family: 3, ID: 0, Length: 20, Endianness: "big"},
		},
		{
			Timestamp: base.Add(3 * time.Second), ConnectionID: "bbbbbbbb-2222", LocalRole: log.RoleClient,
			Layer: log.LayerTransport, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerTransport, Message: "connection reset", Kind: "transport"},
		},
	}
}

func TestRunView(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{}, &buf))
	out := buf.String()

	assert.Contains(t, out, "[conn:aaaaaaaa] SERVER IN  TRANSPORT StreamMetadata")
	assert.Contains(t, out, "ConnectionAck")
	assert.Contains(t, out, "Period: 10000us")
	assert.Contains(t, out, "Counters: 1,2")
	assert.Contains(t, out, "Kind: transport")
}

func TestRunViewFiltered(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	filter, err := FilterOptions{Family: 3}.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RunView(path, filter, &buf))
	assert.Equal(t, 2, strings.Count(buf.String(), "PeriodicCounterCapture"))
	assert.NotContains(t, buf.String(), "StreamMetadata")
}

func TestFilterOptionsBuild(t *testing.T) {
	f, err := FilterOptions{
		Layer: "protocol", Direction: "OUT", Category: "packet", Role: "server",
		TimeStart: "2026-03-02T09:00:00Z", Family: -1,
	}.Build()
	require.NoError(t, err)
	assert.Equal(t, log.LayerProtocol, *f.Layer)
	assert.Equal(t, log.DirectionOut, *f.Direction)
	assert.Equal(t, log.RoleServer, *f.Role)
	assert.Nil(t, f.Family)
	assert.True(t, f.TimeStart.Equal(base))

	tests := []FilterOptions{
		{Layer: "wire", Family: -1},
		{Direction: "sideways", Family: -1},
		{Category: "message", Family: -1},
		{Role: "peer", Family: -1},
		{TimeEnd: "yesterday", Family: -1},
		{Family: 64},
	}
	for _, o := range tests {
		_, err := o.Build()
		assert.Error(t, err, "%+v", o)
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "client.plog")

	role := log.RoleClient
	n, err := RunFilter(path, out, log.Filter{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := log.ReadAll(out, log.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "bbbbbbbb-2222", events[0].ConnectionID)
}

func TestStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	stats, err := Collect(path)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.TotalEvents)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, stats.PacketsByName["PeriodicCounterCapture"])
	require.Contains(t, stats.Connections, "aaaaaaaa-1111")

	conn := stats.Connections["aaaaaaaa-1111"]
	assert.Equal(t, 2, conn.Captures)
	assert.Equal(t, "big", conn.Endianness)
	assert.InDelta(t, 1.0, conn.CaptureRate(), 0.001)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	out := buf.String()
	assert.Contains(t, out, "Total Events: 6")
	assert.Contains(t, out, "PROTOCOL:")
	assert.Contains(t, out, "Captures: 2 (1.0/s)")
	assert.Contains(t, out, "Errors: 1")
}

func TestExport(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	t.Run("jsonl", func(t *testing.T) {
		r, err := log.NewReader(path)
		require.NoError(t, err)
		defer r.Close()

		var buf bytes.Buffer
		require.NoError(t, export(r, "jsonl", &buf))

		lines := 0
		sc := bufio.NewScanner(&buf)
		for sc.Scan() {
			var m map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
			lines++
		}
		assert.Equal(t, 6, lines)
	})

	t.Run("csv", func(t *testing.T) {
		r, err := log.NewReader(path)
		require.NoError(t, err)
		defer r.Close()

		var buf bytes.Buffer
		require.NoError(t, export(r, "csv", &buf))
		rows := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, rows, 7)
		assert.True(t, strings.HasPrefix(rows[0], "timestamp,connection_id,role"))
		assert.True(t, strings.HasSuffix(rows[1], "StreamMetadata,40,0,0"), rows[1])
		assert.True(t, strings.HasSuffix(rows[2], ",0,0,1"), rows[2])
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, RunExport(path, "xml", ""))
	})
}
