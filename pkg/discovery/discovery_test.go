package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerTXTRoundTrip(t *testing.T) {
	info := &ServerInfo{InstanceName: "pulse-mock", MaxBodyLength: 1 << 20, ProcessName: "mock"}
	strs := TXTRecordsToStrings(EncodeServerTXT(info))
	assert.Equal(t, []string{"mbl=1048576", "pn=mock", "v=1.0.0"}, strs)

	got, err := DecodeServerTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version)
	assert.Equal(t, uint32(1<<20), got.MaxBodyLength)
	assert.Equal(t, "mock", got.ProcessName)
}

func TestDecodeServerTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"missing version", TXTRecordMap{TXTKeyMaxBodyLength: "10"}, ErrMissingRequired},
		{"bad version", TXTRecordMap{TXTKeyVersion: "one"}, ErrInvalidTXTRecord},
		{"bad max body", TXTRecordMap{TXTKeyVersion: "1.0.0", TXTKeyMaxBodyLength: "-1"}, ErrInvalidTXTRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeServerTXT(tt.txt)
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeServerTXT() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "", "b=x=y"})
	assert.Equal(t, TXTRecordMap{"a": "1", "flag": "", "b": "x=y"}, txt)
}

func TestServiceEntryToServerService(t *testing.T) {
	e := &ServiceEntry{
		Instance: "lab",
		Host:     "lab.local.",
		Port:     7400,
		Text:     []string{"v=1.0.0", "mbl=4096"},
		Addrs:    []string{"192.0.2.1"},
	}
	svc, err := e.ToServerService()
	require.NoError(t, err)
	assert.Equal(t, "lab", svc.InstanceName)
	assert.Equal(t, uint16(7400), svc.Port)
	assert.Equal(t, uint32(4096), svc.MaxBodyLength)
	assert.Equal(t, []string{"192.0.2.1"}, svc.Addresses)

	_, err = (&ServiceEntry{Text: []string{"mbl=1"}}).ToServerService()
	assert.ErrorIs(t, err, ErrMissingRequired)
}

func TestAddressAggregation(t *testing.T) {
	addrs := mergeAddresses([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, addrs)
	assert.Equal(t, []string{"a"}, removeAddresses(addrs, []string{"b", "c", "z"}))
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("pulse-mock"))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrInstanceNameTooLong)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("x", 64)), ErrInstanceNameTooLong)
}

func TestAdvertiserUpdateWithoutAdvertise(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	assert.ErrorIs(t, a.Update(&ServerInfo{}), ErrNotAdvertising)
	a.Stop()
}

func TestAdvertiseRejectsBadName(t *testing.T) {
	a := NewMDNSAdvertiser(DefaultAdvertiserConfig())
	err := a.Advertise(context.Background(), &ServerInfo{InstanceName: strings.Repeat("x", 64)})
	assert.ErrorIs(t, err, ErrInstanceNameTooLong)
}

func TestFindFirstCancelled(t *testing.T) {
	b := NewMDNSBrowser(BrowserConfig{Interface: "does-not-exist0"})
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	cancel()

	_, err := b.FindFirst(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}
