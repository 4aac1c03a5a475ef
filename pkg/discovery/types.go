package discovery

import (
	"errors"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of a monitoring server.
	ServiceType = "_pulse._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default TCP port of a monitoring server.
	DefaultPort = 7400

	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyVersion       = "v"
	TXTKeyMaxBodyLength = "mbl"
	TXTKeyProcessName   = "pn"
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// ServerInfo is what a monitoring server advertises.
type ServerInfo struct {
	InstanceName  string
	Port          uint16
	Version       string
	MaxBodyLength uint32
	ProcessName   string
}

// ServerService is a discovered monitoring server.
type ServerService struct {
	InstanceName  string
	Host          string
	Port          uint16
	Addresses     []string
	Version       string
	MaxBodyLength uint32
	ProcessName   string
}

// ServiceEntry is a raw browse result, independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToServerService decodes the entry's TXT records.
func (e *ServiceEntry) ToServerService() (*ServerService, error) {
	info, err := DecodeServerTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	return &ServerService{
		InstanceName:  e.Instance,
		Host:          e.Host,
		Port:          e.Port,
		Addresses:     append([]string(nil), e.Addrs...),
		Version:       info.Version,
		MaxBodyLength: info.MaxBodyLength,
		ProcessName:   info.ProcessName,
	}, nil
}
