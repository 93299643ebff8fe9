package registry

import (
	stdnet "net"
	"testing"
	"time"

	"lanbridge/stats"
)

func TestObserveThenGet(t *testing.T) {
	r := New(stats.New())
	ep := Endpoint{IP: stdnet.ParseIP("192.168.1.50"), Port: 25565}

	r.Observe(ep, "Hi", "[MOTD]Hi[/MOTD][AD]25565[/AD]")

	e, ok := r.Get(ep)
	if !ok {
		t.Fatal("Get returned false after Observe")
	}
	if e.MOTD != "Hi" || e.IsVerified() {
		t.Errorf("entry = %+v, want unverified with MOTD Hi", e)
	}
}

func TestSetPingMarksVerified(t *testing.T) {
	r := New(stats.New())
	ep := Endpoint{IP: stdnet.ParseIP("192.168.1.50"), Port: 25565}
	r.Observe(ep, "Hi", "raw")

	r.SetPing(ep, PingResult{VersionName: "1.20", Online: 1, Max: 20})

	e, _ := r.Get(ep)
	if !e.IsVerified() {
		t.Fatal("entry not verified after SetPing")
	}
	if got := r.Verified(); len(got) != 1 {
		t.Fatalf("Verified() len = %d, want 1", len(got))
	}
}

func TestSweepDropsUnverifiedStaleEntry(t *testing.T) {
	r := New(stats.New())
	ep := Endpoint{IP: stdnet.ParseIP("192.168.1.50"), Port: 25565}
	r.Observe(ep, "Hi", "raw")

	// Force staleness directly; Sweep compares against wall time.
	r.mu.Lock()
	r.entries[ep.String()].BroadcastSeen = time.Now().Add(-31 * time.Second)
	r.mu.Unlock()

	r.Sweep()

	if _, ok := r.Get(ep); ok {
		t.Fatal("stale unverified entry survived Sweep")
	}
}

func TestSweepKeepsFreshVerifiedEntry(t *testing.T) {
	r := New(stats.New())
	ep := Endpoint{IP: stdnet.ParseIP("192.168.1.50"), Port: 25565}
	r.Observe(ep, "Hi", "raw")
	r.SetPing(ep, PingResult{})

	// Broadcast itself is old, but the ping is fresh: should survive.
	r.mu.Lock()
	r.entries[ep.String()].BroadcastSeen = time.Now().Add(-1 * time.Hour)
	r.mu.Unlock()

	r.Sweep()

	if _, ok := r.Get(ep); !ok {
		t.Fatal("fresh verified entry dropped by Sweep")
	}
}

func TestFindByMOTDSubstring(t *testing.T) {
	r := New(stats.New())
	r.Observe(Endpoint{IP: stdnet.ParseIP("192.168.1.50"), Port: 1}, "Alice's World", "raw")
	r.Observe(Endpoint{IP: stdnet.ParseIP("192.168.1.51"), Port: 2}, "Bob's Place", "raw")

	got := r.FindByMOTDSubstring("World")
	if len(got) != 1 || got[0].MOTD != "Alice's World" {
		t.Fatalf("FindByMOTDSubstring = %+v", got)
	}
}

func TestIsLocalNetworkExcludesOverlayRange(t *testing.T) {
	_, overlayCIDR, _ := stdnet.ParseCIDR("10.144.144.0/24")
	local := []stdnet.IP{stdnet.ParseIP("10.144.144.5"), stdnet.ParseIP("192.168.1.10")}

	if !IsLocalNetwork(stdnet.ParseIP("192.168.1.50"), local, overlayCIDR) {
		t.Error("expected 192.168.1.50 to match the 192.168.1.0/24 local address")
	}
	if IsLocalNetwork(stdnet.ParseIP("10.144.144.99"), local, overlayCIDR) {
		t.Error("expected overlay-range address to be excluded from is_local_network")
	}
}
