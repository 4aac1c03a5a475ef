package command

import (
	"sync"

	"github.com/pulse-protocol/pulse-go/pkg/packet"
	"github.com/pulse-protocol/pulse-go/pkg/protocol"
	"github.com/pulse-protocol/pulse-go/pkg/version"
)

// VersionResolver decides which packet version to expect for a family/id.
type VersionResolver interface {
	ResolvePacketVersion(family, id uint32) version.Version
}

// DefaultVersion is the version of every packet this library implements.
var DefaultVersion = version.New(1, 0, 0)

// DefaultVersionResolver resolves every packet to DefaultVersion.
type DefaultVersionResolver struct{}

// ResolvePacketVersion returns DefaultVersion.
func (DefaultVersionResolver) ResolvePacketVersion(uint32, uint32) version.Version {
	return DefaultVersion
}

// TableVersionResolver resolves versions from a peer's advertised packet
// version table. Headers missing from the table resolve to DefaultVersion.
// It is safe for concurrent use; Update replaces the table.
type TableVersionResolver struct {
	mu       sync.RWMutex
	versions map[uint32]version.Version
}

// NewTableVersionResolver builds a resolver from a packet version table.
func NewTableVersionResolver(table []protocol.PacketVersion) *TableVersionResolver {
	r := &TableVersionResolver{}
	r.Update(table)
	return r
}

// Update replaces the resolver's table.
func (r *TableVersionResolver) Update(table []protocol.PacketVersion) {
	versions := make(map[uint32]version.Version, len(table))
	for _, pv := range table {
		versions[pv.Header] = pv.Version
	}
	r.mu.Lock()
	r.versions = versions
	r.mu.Unlock()
}

// ResolvePacketVersion returns the advertised version for family/id.
func (r *TableVersionResolver) ResolvePacketVersion(family, id uint32) version.Version {
	r.mu.RLock()
	v, ok := r.versions[packet.Header(family, id)]
	r.mu.RUnlock()
	if !ok {
		return DefaultVersion
	}
	return v
}

// Compile-time interface satisfaction checks.
var (
	_ VersionResolver = DefaultVersionResolver{}
	_ VersionResolver = (*TableVersionResolver)(nil)
)
