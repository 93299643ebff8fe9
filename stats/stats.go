// Package stats tracks counters for the room daemon: scaffolding traffic,
// roster churn, registry activity and overlay child restarts.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats collects runtime counters for one RoomController.
type Stats struct {
	// Scaffolding connections
	TotalConnections  atomic.Uint64
	ActiveConnections atomic.Uint64
	FailedConnections atomic.Uint64

	// Scaffolding requests, by c:* kind
	requestsMu sync.RWMutex
	requests   map[string]uint64

	// Roster churn
	HeartbeatEvictions atomic.Uint64
	GuestJoins         atomic.Uint64
	HostRejections     atomic.Uint64

	// Registry
	RegistryObserves atomic.Uint64
	RegistrySweeps   atomic.Uint64
	RegistryDrops    atomic.Uint64

	// Overlay supervision
	OverlayRestarts atomic.Uint64

	StartTime    time.Time
	LastActivity atomic.Value // time.Time
}

// New returns a fresh, zeroed Stats with its clock started now.
func New() *Stats {
	s := &Stats{
		StartTime: time.Now(),
		requests:  make(map[string]uint64),
	}
	s.LastActivity.Store(time.Now())
	return s
}

func (s *Stats) updateActivity() {
	s.LastActivity.Store(time.Now())
}

// Connection tracking

func (s *Stats) IncrementConnections() {
	s.TotalConnections.Add(1)
	s.ActiveConnections.Add(1)
	s.updateActivity()
}

func (s *Stats) DecrementConnections() {
	s.ActiveConnections.Add(^uint64(0))
}

func (s *Stats) IncrementFailedConnections() {
	s.FailedConnections.Add(1)
}

// RecordRequest tallies one dispatched Scaffolding request by its c:* kind.
func (s *Stats) RecordRequest(kind string) {
	s.updateActivity()
	s.requestsMu.Lock()
	s.requests[kind]++
	s.requestsMu.Unlock()
}

// Roster tracking

func (s *Stats) IncrementHeartbeatEvictions() {
	s.HeartbeatEvictions.Add(1)
}

func (s *Stats) IncrementGuestJoins() {
	s.GuestJoins.Add(1)
}

func (s *Stats) IncrementHostRejections() {
	s.HostRejections.Add(1)
}

// Registry tracking

func (s *Stats) IncrementRegistryObserves() {
	s.RegistryObserves.Add(1)
}

func (s *Stats) IncrementRegistrySweeps() {
	s.RegistrySweeps.Add(1)
}

func (s *Stats) AddRegistryDrops(n uint64) {
	s.RegistryDrops.Add(n)
}

// Overlay tracking

func (s *Stats) IncrementOverlayRestarts() {
	s.OverlayRestarts.Add(1)
}

// Snapshot is an immutable copy of Stats taken at a point in time.
type Snapshot struct {
	TotalConnections  uint64
	ActiveConnections uint64
	FailedConnections uint64

	Requests map[string]uint64

	HeartbeatEvictions uint64
	GuestJoins         uint64
	HostRejections     uint64

	RegistryObserves uint64
	RegistrySweeps   uint64
	RegistryDrops    uint64

	OverlayRestarts uint64

	Uptime       time.Duration
	LastActivity time.Time
}

// GetSnapshot returns a point-in-time copy of s.
func (s *Stats) GetSnapshot() Snapshot {
	s.requestsMu.RLock()
	requestsCopy := make(map[string]uint64, len(s.requests))
	for k, v := range s.requests {
		requestsCopy[k] = v
	}
	s.requestsMu.RUnlock()

	lastActivity := s.LastActivity.Load().(time.Time)

	return Snapshot{
		TotalConnections:  s.TotalConnections.Load(),
		ActiveConnections: s.ActiveConnections.Load(),
		FailedConnections: s.FailedConnections.Load(),

		Requests: requestsCopy,

		HeartbeatEvictions: s.HeartbeatEvictions.Load(),
		GuestJoins:         s.GuestJoins.Load(),
		HostRejections:     s.HostRejections.Load(),

		RegistryObserves: s.RegistryObserves.Load(),
		RegistrySweeps:   s.RegistrySweeps.Load(),
		RegistryDrops:    s.RegistryDrops.Load(),

		OverlayRestarts: s.OverlayRestarts.Load(),

		Uptime:       time.Since(s.StartTime),
		LastActivity: lastActivity,
	}
}
