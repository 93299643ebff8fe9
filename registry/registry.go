// Package registry tracks Minecraft servers discovered via LAN beacon,
// their verification state via the modern status probe, and staleness.
package registry

import (
	stdnet "net"
	"strconv"
	"strings"
	"sync"
	"time"

	"lanbridge/logger"
	"lanbridge/mcnet"
	"lanbridge/stats"
)

const (
	sweepInterval        = 5 * time.Second
	unverifiedStaleAfter = 30 * time.Second
	verifiedStaleAfter   = 120 * time.Second
	pingerInterval       = 10 * time.Second
)

// Endpoint is a Minecraft server's address.
type Endpoint struct {
	IP   stdnet.IP
	Port uint16
}

func (e Endpoint) String() string {
	return stdnet.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
}

// PingResult is the decoded outcome of a modern status probe.
type PingResult struct {
	VersionName string
	Protocol    int
	Online      int
	Max         int
	Description string
}

// Entry is one tracked Minecraft server.
type Entry struct {
	Endpoint       Endpoint
	MOTD           string
	RawMOTD        string
	BroadcastSeen  time.Time
	LastPingAt     *time.Time
	PingResult     *PingResult
}

// IsVerified reports whether this entry has ever answered a status probe.
func (e Entry) IsVerified() bool { return e.LastPingAt != nil }

// IsLocalHost reports whether the entry's address is the loopback interface.
func (e Entry) IsLocalHost() bool { return e.Endpoint.IP.IsLoopback() }

// Registry tracks discovered servers, keyed by endpoint.
type Registry struct {
	log   *logger.Logger
	stats *stats.Stats

	mu      sync.RWMutex
	entries map[string]*Entry
}

// New returns an empty Registry.
func New(st *stats.Stats) *Registry {
	return &Registry{
		log:     logger.New("registry"),
		stats:   st,
		entries: make(map[string]*Entry),
	}
}

// Observe records or refreshes a sighting from the LAN beacon listener.
func (r *Registry) Observe(ep Endpoint, motd, raw string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ep.String()
	e, ok := r.entries[key]
	if !ok {
		e = &Entry{Endpoint: ep}
		r.entries[key] = e
	}
	e.MOTD = motd
	e.RawMOTD = raw
	e.BroadcastSeen = time.Now()

	r.stats.IncrementRegistryObserves()
}

// ObserveSighting is a convenience wrapper around Observe for a
// mcnet.Sighting produced by the beacon listener.
func (r *Registry) ObserveSighting(s mcnet.Sighting) {
	r.Observe(Endpoint{IP: s.From, Port: s.Beacon.Port}, s.Beacon.MOTD, s.Beacon.MOTD)
}

// SetPing records the outcome of a successful status probe against addr.
func (r *Registry) SetPing(ep Endpoint, result PingResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[ep.String()]
	if !ok {
		return // server must already have a broadcast sighting
	}
	now := time.Now()
	e.LastPingAt = &now
	e.PingResult = &result
}

// All returns every tracked entry, in no particular order.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

// Verified returns every entry that has answered at least one status probe.
func (r *Registry) Verified() []Entry {
	var out []Entry
	for _, e := range r.All() {
		if e.IsVerified() {
			out = append(out, e)
		}
	}
	return out
}

// Get looks up a single entry by endpoint.
func (r *Registry) Get(ep Endpoint) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[ep.String()]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// FindByMOTDSubstring returns every entry whose MOTD contains substr.
func (r *Registry) FindByMOTDSubstring(substr string) []Entry {
	var out []Entry
	for _, e := range r.All() {
		if strings.Contains(e.MOTD, substr) {
			out = append(out, e)
		}
	}
	return out
}

// FindLocalNetwork returns every entry whose address sits in the same /24
// as one of this host's own up, non-loopback, non-link-local,
// non-overlay-range IPv4 addresses.
func (r *Registry) FindLocalNetwork(localIPv4s []stdnet.IP, overlayCIDR *stdnet.IPNet) []Entry {
	var out []Entry
	for _, e := range r.All() {
		if IsLocalNetwork(e.Endpoint.IP, localIPv4s, overlayCIDR) {
			out = append(out, e)
		}
	}
	return out
}

// IsLocalNetwork reports whether addr shares a /24 with any address in
// localIPv4s, excluding any address inside overlayCIDR (nil disables that
// exclusion).
func IsLocalNetwork(addr stdnet.IP, localIPv4s []stdnet.IP, overlayCIDR *stdnet.IPNet) bool {
	addr4 := addr.To4()
	if addr4 == nil {
		return false
	}
	for _, local := range localIPv4s {
		local4 := local.To4()
		if local4 == nil {
			continue
		}
		if overlayCIDR != nil && overlayCIDR.Contains(local4) {
			continue
		}
		if same24(addr4, local4) {
			return true
		}
	}
	return false
}

func same24(a, b stdnet.IP) bool {
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2]
}

// LocalIPv4s returns every up, non-loopback IPv4 address bound to this host.
func LocalIPv4s() ([]stdnet.IP, error) {
	ifaces, err := stdnet.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []stdnet.IP
	for _, iface := range ifaces {
		if iface.Flags&stdnet.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*stdnet.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
				continue
			}
			out = append(out, ip4)
		}
	}
	return out, nil
}

// Sweep drops entries that are stale: unverified entries not seen in 30s,
// and verified entries not successfully pinged in 120s.
func (r *Registry) Sweep() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := uint64(0)
	for key, e := range r.entries {
		if !e.IsVerified() && now.Sub(e.BroadcastSeen) > unverifiedStaleAfter {
			delete(r.entries, key)
			dropped++
			continue
		}
		if e.IsVerified() && now.Sub(*e.LastPingAt) > verifiedStaleAfter {
			delete(r.entries, key)
			dropped++
		}
	}

	r.stats.IncrementRegistrySweeps()
	if dropped > 0 {
		r.stats.AddRegistryDrops(dropped)
		r.log.Debugf("sweep dropped %d stale entries", dropped)
	}
}

// RunSweepLoop runs Sweep every 5s until done is closed.
func (r *Registry) RunSweepLoop(done <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// RunPingerLoop probes every known server every 10s via the modern status
// protocol, updating successes and leaving failures untouched for Sweep to
// eventually expire.
func (r *Registry) RunPingerLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.pingAll()
		}
	}
}

func (r *Registry) pingAll() {
	for _, e := range r.All() {
		result, err := mcnet.StatusProbe(e.Endpoint.IP.String(), e.Endpoint.Port)
		if err != nil {
			r.log.Debugf("status probe for %s failed: %v", e.Endpoint, err)
			continue
		}
		r.SetPing(e.Endpoint, PingResult{
			VersionName: result.VersionName,
			Protocol:    result.Protocol,
			Online:      result.Online,
			Max:         result.Max,
			Description: result.Description,
		})
	}
}
