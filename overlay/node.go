// Package overlay hides the external P2P overlay daemon behind an
// interface the room controller can drive and tests can fake.
package overlay

import "context"

// NodeInfo describes the overlay control plane once it is reachable.
type NodeInfo struct {
	IPv4Addr string // "x.x.x.x/cidr"
	Hostname string
	ID       string
}

// PeerInfo describes one other node visible in the overlay.
type PeerInfo struct {
	Hostname string
	IPv4     string
	ID       string
}

// Proto is a forwarded transport protocol.
type Proto string

const (
	ProtoTCP Proto = "tcp"
	ProtoUDP Proto = "udp"
)

// Config configures a child overlay daemon at startup.
type Config struct {
	NetworkName       string
	NetworkSecret     string
	Hostname          string
	FixedIPv4         string // empty means DHCP-assigned
	IsHost            bool
	ScaffoldingPort   *uint16 // whitelisted at startup when set
	RelayURLs         []string
	BinaryPath        string
}

// NetworkNode is the contract the room controller drives: version/status
// queries, peer discovery, and forward/whitelist mutation. Implementations
// may be a real child process, an RPC client, or (in tests) an in-memory
// fake that never touches a subprocess.
type NetworkNode interface {
	// Start launches the overlay child with cfg and begins surfacing its
	// output as log events.
	Start(ctx context.Context, cfg Config) error

	// Version returns the overlay daemon's self-reported version string.
	Version(ctx context.Context) (string, error)

	// NodeInfo returns nil while the control plane isn't answering yet.
	NodeInfo(ctx context.Context) (*NodeInfo, error)

	// Peers returns nil while the control plane isn't answering yet.
	Peers(ctx context.Context) ([]PeerInfo, error)

	// AddPortForward adds one forward; the overlay decides idempotency.
	AddPortForward(ctx context.Context, proto Proto, local, remote string) (bool, error)

	// SetTCPWhitelist/SetUDPWhitelist replace semantics: an empty slice
	// means "deny all".
	SetTCPWhitelist(ctx context.Context, ports []string) error
	SetUDPWhitelist(ctx context.Context, ports []string) error

	// Stop tears down the child process tree.
	Stop() error
}
