package room

import (
	"fmt"
	stdnet "net"
	"strings"
	"testing"
	"time"

	"lanbridge/config"
	"lanbridge/overlay"
	"lanbridge/registry"
	"lanbridge/roomcode"
	"lanbridge/scaffold"
	"lanbridge/stats"
)

// shrinkTimings lowers every internal polling/retry knob so a full track
// runs in well under a second, restoring the originals on test cleanup.
func shrinkTimings(t *testing.T) {
	t.Helper()
	origPoll, origDiscInt := overlayPollInterval, discoveryInterval
	origRetries, origBackoff, origRun := scaffoldingRetries, scaffoldingBackoff, runningTick

	overlayPollInterval = 5 * time.Millisecond
	discoveryInterval = 5 * time.Millisecond
	scaffoldingRetries = 5
	scaffoldingBackoff = 5 * time.Millisecond
	runningTick = 20 * time.Millisecond

	t.Cleanup(func() {
		overlayPollInterval, discoveryInterval = origPoll, origDiscInt
		scaffoldingRetries, scaffoldingBackoff, runningTick = origRetries, origBackoff, origRun
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.OverlayStartupTimeout = 500 * time.Millisecond
	cfg.DiscoveryTimeout = 200 * time.Millisecond
	cfg.DataDir = t.TempDir()
	// A resolvable, unprobed relay so ValidateRelays has something to keep
	// without reaching out over the network.
	cfg.RelayURLs = []string{"127.0.0.1:12345"}
	cfg.RelayProbeTimeout = 0
	return cfg
}

func waitForState(t *testing.T, c *Controller, want State, timeout time.Duration) RoomStatus {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last RoomStatus
	for time.Now().Before(deadline) {
		last = c.GetStatus()
		if last.State == want {
			return last
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s after %v, want %s (error=%q)", last.State, timeout, want, last.Error)
	return last
}

func TestHostReachesRunningWithDetectedMinecraftPort(t *testing.T) {
	shrinkTimings(t)
	cfg := testConfig(t)

	local, err := registry.LocalIPv4s()
	if err != nil || len(local) == 0 {
		t.Skip("no routable local IPv4 address on this host")
	}
	base := local[0].To4()
	entryIP := stdnet.IPv4(base[0], base[1], base[2], 99)

	reg := registry.New(stats.New())
	reg.Observe(registry.Endpoint{IP: entryIP, Port: 25565}, "Alice's World", "raw")

	fake := overlay.NewFake()
	ctrl := New(cfg, stats.New(), reg, func() overlay.NetworkNode { return fake })

	if err := ctrl.StartHost(13448, "Alice", ""); err != nil {
		t.Fatalf("StartHost: %v", err)
	}
	t.Cleanup(ctrl.Stop)

	waitForState(t, ctrl, StateHostOverlayStarting, time.Second)
	fake.SetNodeInfo(&overlay.NodeInfo{IPv4Addr: "10.144.144.1/24", Hostname: "scaffolding-mc-server-13448", ID: "host-1"})

	status := waitForState(t, ctrl, StateHostRunning, time.Second)
	deadline := time.Now().Add(time.Second)
	for status.MinecraftPort == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		status = ctrl.GetStatus()
	}
	if status.MinecraftPort == nil || *status.MinecraftPort != 25565 {
		t.Fatalf("MinecraftPort = %v, want 25565", status.MinecraftPort)
	}
	if len(fake.TCPWhitelist) == 0 {
		t.Fatal("expected scaffolding port to be whitelisted on the overlay")
	}
}

func TestGuestJoinsAndRecordsForwards(t *testing.T) {
	shrinkTimings(t)
	cfg := testConfig(t)

	centerSrv := scaffold.NewServer(stats.New())
	if err := centerSrv.Listen("127.0.0.1", 0); err != nil {
		t.Fatalf("centerSrv.Listen: %v", err)
	}
	t.Cleanup(centerSrv.Stop)
	go centerSrv.Serve()
	centerSrv.SetHost("Alice", "host-machine-id", "lanbridge")
	mcPort := uint16(25565)
	centerSrv.SetMinecraftPort(&mcPort)

	centerPort := uint16(centerSrv.Addr().(*stdnet.TCPAddr).Port)

	reg := registry.New(stats.New())
	fake := overlay.NewFake()
	ctrl := New(cfg, stats.New(), reg, func() overlay.NetworkNode { return fake })

	code, err := roomcode.Generate()
	if err != nil {
		t.Fatalf("roomcode.Generate: %v", err)
	}
	if err := ctrl.StartGuest(code, "Bob", ""); err != nil {
		t.Fatalf("StartGuest: %v", err)
	}
	t.Cleanup(ctrl.Stop)

	waitForState(t, ctrl, StateGuestOverlayStarting, time.Second)
	fake.SetNodeInfo(&overlay.NodeInfo{IPv4Addr: "10.144.144.5/24", Hostname: "guest-node", ID: "guest-1"})

	waitForState(t, ctrl, StateGuestDiscoveringCenter, time.Second)
	fake.SetPeers([]overlay.PeerInfo{
		{Hostname: fmt.Sprintf("scaffolding-mc-server-%d", centerPort), IPv4: "10.144.144.1", ID: "host-1"},
	})

	waitForState(t, ctrl, StateGuestRunning, 2*time.Second)

	deadline := time.Now().Add(time.Second)
	for len(fake.Forwards) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(fake.Forwards) < 3 {
		t.Fatalf("got %d forward calls, want at least 3: %+v", len(fake.Forwards), fake.Forwards)
	}
	for _, fc := range fake.Forwards {
		if !strings.HasPrefix(fc.Remote, "10.144.144.1:") {
			t.Fatalf("forward remote = %q, want it to target the center's virtual IP", fc.Remote)
		}
	}
}

func TestHostFailsAfterRepeatedOfflineProbes(t *testing.T) {
	shrinkTimings(t)
	cfg := testConfig(t)

	local, err := registry.LocalIPv4s()
	if err != nil || len(local) == 0 {
		t.Skip("no routable local IPv4 address on this host")
	}
	base := local[0].To4()
	entryIP := stdnet.IPv4(base[0], base[1], base[2], 98)

	reg := registry.New(stats.New())
	// Port 25566 has nothing listening on it: every 0xFE probe fails.
	reg.Observe(registry.Endpoint{IP: entryIP, Port: 25566}, "Alice's World", "raw")

	fake := overlay.NewFake()
	ctrl := New(cfg, stats.New(), reg, func() overlay.NetworkNode { return fake })

	if err := ctrl.StartHost(13449, "Alice", ""); err != nil {
		t.Fatalf("StartHost: %v", err)
	}
	t.Cleanup(ctrl.Stop)

	waitForState(t, ctrl, StateHostOverlayStarting, time.Second)
	fake.SetNodeInfo(&overlay.NodeInfo{IPv4Addr: "10.144.144.2/24", Hostname: "scaffolding-mc-server-13449", ID: "host-2"})

	waitForState(t, ctrl, StateHostRunning, time.Second)

	status := waitForState(t, ctrl, StateError, 2*time.Second)
	if status.Reason != ReasonMCOffline {
		t.Fatalf("Reason = %s, want %s", status.Reason, ReasonMCOffline)
	}
	if !strings.Contains(status.Error, "offline") {
		t.Fatalf("Error = %q, want it to mention offline", status.Error)
	}
}

func TestGuestFailsWithMultipleCenters(t *testing.T) {
	shrinkTimings(t)
	cfg := testConfig(t)

	reg := registry.New(stats.New())
	fake := overlay.NewFake()
	ctrl := New(cfg, stats.New(), reg, func() overlay.NetworkNode { return fake })

	code, err := roomcode.Generate()
	if err != nil {
		t.Fatalf("roomcode.Generate: %v", err)
	}

	if err := ctrl.StartGuest(code, "Bob", ""); err != nil {
		t.Fatalf("StartGuest: %v", err)
	}
	t.Cleanup(ctrl.Stop)

	waitForState(t, ctrl, StateGuestOverlayStarting, time.Second)
	fake.SetNodeInfo(&overlay.NodeInfo{IPv4Addr: "10.144.144.5/24", Hostname: "guest-node", ID: "guest-1"})

	waitForState(t, ctrl, StateGuestDiscoveringCenter, time.Second)
	fake.SetPeers([]overlay.PeerInfo{
		{Hostname: "scaffolding-mc-server-13001", IPv4: "10.144.144.1", ID: "host-1"},
		{Hostname: "scaffolding-mc-server-13002", IPv4: "10.144.144.2", ID: "host-2"},
	})

	status := waitForState(t, ctrl, StateError, time.Second)
	if status.Reason != ReasonMultipleCenters {
		t.Fatalf("Reason = %s, want %s", status.Reason, ReasonMultipleCenters)
	}
	if !strings.Contains(status.Error, "multiple centers") {
		t.Fatalf("Error = %q, want it to mention multiple centers", status.Error)
	}
}

func TestGuestDiscoveryTimesOutWithNoCenters(t *testing.T) {
	shrinkTimings(t)
	cfg := testConfig(t)

	reg := registry.New(stats.New())
	fake := overlay.NewFake()
	ctrl := New(cfg, stats.New(), reg, func() overlay.NetworkNode { return fake })

	code, err := roomcode.Generate()
	if err != nil {
		t.Fatalf("roomcode.Generate: %v", err)
	}
	if err := ctrl.StartGuest(code, "Bob", ""); err != nil {
		t.Fatalf("StartGuest: %v", err)
	}
	t.Cleanup(ctrl.Stop)

	waitForState(t, ctrl, StateGuestOverlayStarting, time.Second)
	fake.SetNodeInfo(&overlay.NodeInfo{IPv4Addr: "10.144.144.5/24", Hostname: "guest-node", ID: "guest-1"})

	status := waitForState(t, ctrl, StateError, time.Second)
	if status.Reason != ReasonDiscoveryTimeout {
		t.Fatalf("Reason = %s, want %s", status.Reason, ReasonDiscoveryTimeout)
	}
	if !strings.Contains(status.Error, "discovery timeout") {
		t.Fatalf("Error = %q, want it to mention discovery timeout", status.Error)
	}
}

func TestRetryResetsToIdle(t *testing.T) {
	shrinkTimings(t)
	cfg := testConfig(t)

	reg := registry.New(stats.New())
	fake := overlay.NewFake()
	ctrl := New(cfg, stats.New(), reg, func() overlay.NetworkNode { return fake })

	code, err := roomcode.Generate()
	if err != nil {
		t.Fatalf("roomcode.Generate: %v", err)
	}
	if err := ctrl.StartGuest(code, "Bob", ""); err != nil {
		t.Fatalf("StartGuest: %v", err)
	}

	waitForState(t, ctrl, StateError, 2*time.Second)

	start := time.Now()
	ctrl.Retry()
	status := ctrl.GetStatus()
	if status.State != StateIdle {
		t.Fatalf("State = %s after Retry, want Idle", status.State)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("Retry took %v, want under 2s", time.Since(start))
	}
}

func TestStartHostRejectedWhenNotIdle(t *testing.T) {
	shrinkTimings(t)
	cfg := testConfig(t)

	reg := registry.New(stats.New())
	fake := overlay.NewFake()
	ctrl := New(cfg, stats.New(), reg, func() overlay.NetworkNode { return fake })

	if err := ctrl.StartHost(13448, "Alice", ""); err != nil {
		t.Fatalf("StartHost: %v", err)
	}
	t.Cleanup(ctrl.Stop)

	if err := ctrl.StartHost(13449, "Alice", ""); err == nil {
		t.Fatal("expected second StartHost to be rejected")
	}
}
