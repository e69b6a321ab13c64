package websocket

import (
	"sync"

	"callboard/pkg/interfaces"
)

// Registry tracks live classroom sockets per channel.
// ARCHITECTURAL DISCOVERY: Pure connection tracking without business logic; the
// router decides what to send and the handler decides when sockets come and go
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[string]interfaces.Connection // channel -> connID -> Connection
}

// RegistryStats is a point-in-time view of the registry.
type RegistryStats struct {
	TotalConnections int `json:"total_connections"`
	ActiveChannels   int `json:"active_channels"`
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[string]interfaces.Connection),
	}
}

// Connect adds a socket to its channel, creating the channel entry on first use.
func (r *Registry) Connect(channel string, conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if channel == "" {
		return interfaces.ErrChannelRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.channels[channel]
	if !exists {
		members = make(map[string]interfaces.Connection)
		r.channels[channel] = members
	}
	members[conn.ID()] = conn
	return nil
}

// Disconnect removes a socket from its channel and drops the channel entry
// once empty. It reports whether this call removed the socket, so cleanup
// racing between a failed send and the read loop happens exactly once.
func (r *Registry) Disconnect(channel string, conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.channels[channel]
	if !exists {
		return false
	}
	registered, exists := members[conn.ID()]
	// RACE CONDITION FIX: only remove the exact instance that was registered
	if !exists || registered != conn {
		return false
	}

	delete(members, conn.ID())
	// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
	if len(members) == 0 {
		delete(r.channels, channel)
	}
	return true
}

// Snapshot returns a copy of the channel's sockets. Sends iterate the copy
// so they never hold the registry lock.
func (r *Registry) Snapshot(channel string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.channels[channel]
	snapshot := make([]interfaces.Connection, 0, len(members))
	for _, conn := range members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// Channels lists channels that currently have at least one socket.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// Stats returns registry statistics for the health endpoint
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{ActiveChannels: len(r.channels)}
	for _, members := range r.channels {
		stats.TotalConnections += len(members)
	}
	return stats
}
