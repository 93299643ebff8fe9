package scaffold

import (
	stdnet "net"
	"strconv"
	"testing"
	"time"

	"lanbridge/stats"
)

func startTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()

	srv := NewServer(stats.New())
	srv.SetHeartbeatTimeout(50 * time.Millisecond)
	srv.SetHost("Alice", "host-machine", "lanbridge-1.0")

	if err := srv.Listen("127.0.0.1", 0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(srv.Stop)

	host, portStr, err := stdnet.SplitHostPort(srv.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", srv.Addr().String(), err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("parse port %q: %v", portStr, err)
	}

	cl, err := Connect(host, uint16(port))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { cl.Close() })

	return srv, cl
}

func TestPingRoundTrip(t *testing.T) {
	_, cl := startTestServer(t)

	ok, err := cl.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !ok {
		t.Fatal("Ping returned false, want true")
	}
}

func TestProtocolsListsAllKinds(t *testing.T) {
	_, cl := startTestServer(t)

	kinds, err := cl.Protocols()
	if err != nil {
		t.Fatalf("Protocols: %v", err)
	}
	if len(kinds) != len(SupportedKinds) {
		t.Fatalf("Protocols() = %v, want %v", kinds, SupportedKinds)
	}
}

func TestServerPortSoftFailsWithoutMinecraft(t *testing.T) {
	_, cl := startTestServer(t)

	port, err := cl.ServerPort()
	if err != nil {
		t.Fatalf("ServerPort: %v", err)
	}
	if port != nil {
		t.Fatalf("ServerPort() = %v, want nil", port)
	}
}

func TestServerPortReturnsConfiguredPort(t *testing.T) {
	srv, cl := startTestServer(t)

	want := uint16(25565)
	srv.SetMinecraftPort(&want)

	port, err := cl.ServerPort()
	if err != nil {
		t.Fatalf("ServerPort: %v", err)
	}
	if port == nil || *port != want {
		t.Fatalf("ServerPort() = %v, want %d", port, want)
	}
}

func TestPlayerPingRejectsEmptyMachineID(t *testing.T) {
	_, cl := startTestServer(t)

	err := cl.PlayerPing("Bob", "", "lanbridge-1.0")
	if err == nil {
		t.Fatal("PlayerPing with empty machine_id succeeded, want error")
	}
}

func TestPlayerPingRejectsHostCollision(t *testing.T) {
	_, cl := startTestServer(t)

	err := cl.PlayerPing("Mallory", "host-machine", "lanbridge-1.0")
	if err == nil {
		t.Fatal("PlayerPing colliding with host machine_id succeeded, want error")
	}
}

func TestPlayerPingAddsGuestToRoster(t *testing.T) {
	_, cl := startTestServer(t)

	if err := cl.PlayerPing("Bob", "guest-machine", "lanbridge-1.0"); err != nil {
		t.Fatalf("PlayerPing: %v", err)
	}

	profiles, err := cl.PlayerProfilesList()
	if err != nil {
		t.Fatalf("PlayerProfilesList: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("len(profiles) = %d, want 2 (host + guest)", len(profiles))
	}
	if profiles[0].Kind != ProfileHost || profiles[0].MachineID != "host-machine" {
		t.Errorf("profiles[0] = %+v, want host entry first", profiles[0])
	}
	if profiles[1].MachineID != "guest-machine" || profiles[1].Kind != ProfileGuest {
		t.Errorf("profiles[1] = %+v, want guest entry", profiles[1])
	}
}

func TestHeartbeatSweepEvictsStaleGuest(t *testing.T) {
	srv, cl := startTestServer(t)

	if err := cl.PlayerPing("Bob", "guest-machine", "lanbridge-1.0"); err != nil {
		t.Fatalf("PlayerPing: %v", err)
	}

	srv.sweep() // immediate sweep: entry is fresh, should survive
	profiles, _ := cl.PlayerProfilesList()
	if len(profiles) != 2 {
		t.Fatalf("guest evicted immediately, len(profiles) = %d", len(profiles))
	}

	time.Sleep(100 * time.Millisecond) // exceeds the 50ms test heartbeat timeout
	srv.sweep()

	profiles, err := cl.PlayerProfilesList()
	if err != nil {
		t.Fatalf("PlayerProfilesList: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("len(profiles) = %d after sweep, want 1 (host only)", len(profiles))
	}
}

func TestUnknownCommandReturnsUnknownStatus(t *testing.T) {
	_, cl := startTestServer(t)

	resp, err := cl.call("c:bogus", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if resp.Status != StatusUnknown {
		t.Errorf("Status = %d, want %d", resp.Status, StatusUnknown)
	}
}
