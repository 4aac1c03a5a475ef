package interactive

import (
	"bytes"
	"testing"

	"github.com/pulse-protocol/pulse-go/pkg/directory"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelection(t *testing.T) {
	sel, err := ParseSelection([]string{"500000", "1", "2", "5", "10"})
	require.NoError(t, err)
	assert.Equal(t, uint32(500000), sel.Period)
	assert.Equal(t, []uint16{1, 2, 5, 10}, sel.CounterIDs)

	off, err := ParseSelection([]string{"0"})
	require.NoError(t, err)
	assert.False(t, off.Enabled())

	tests := []struct {
		name string
		args []string
	}{
		{"empty", nil},
		{"bad period", []string{"fast", "1"}},
		{"bad uid", []string{"1000", "70000"}},
		{"no uids", []string{"1000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSelection(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestFormatDirectory(t *testing.T) {
	snap := directory.Snapshot{
		Devices: []directory.Device{{UID: 1, Name: "GPU", Cores: 2}},
		Categories: []directory.CategorySnapshot{{
			Name:      "Compute",
			DeviceUID: 1,
			Counters: []directory.CounterRecord{
				{UID: 2, MaxUID: 3, Name: "Busy", Description: "Busy cycles", Units: "cycles", Class: directory.ClassDelta},
			},
		}},
	}

	var buf bytes.Buffer
	FormatDirectory(&buf, snap)
	out := buf.String()
	assert.Contains(t, out, `Device 1 "GPU" cores=2`)
	assert.Contains(t, out, `Category "Compute" device=1`)
	assert.Contains(t, out, "[2-3] Busy")
	assert.Contains(t, out, "cycles) Busy cycles")
}

func TestFormatCapture(t *testing.T) {
	var buf bytes.Buffer
	FormatCapture(&buf, protocol.PeriodicCounterCapture{
		Timestamp: 99,
		Values:    []protocol.CounterValue{{UID: 1, Value: 7}, {UID: 4, Value: 0}},
	})
	assert.Equal(t, "t=99 1=7 4=0\n", buf.String())
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "12345678", shortID("1234567890"))
}
