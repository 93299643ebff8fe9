package overlay

import (
	"context"
	"sync"
)

var _ NetworkNode = (*Fake)(nil)

// Fake is an in-memory NetworkNode used by room controller tests: it lets a
// test script drive peer lists and port-forward acknowledgments without
// ever spawning a subprocess.
type Fake struct {
	mu sync.Mutex

	started bool
	cfg     Config

	info  *NodeInfo
	peers []PeerInfo

	Forwards      []ForwardCall
	TCPWhitelist  []string
	UDPWhitelist  []string
	ForwardResult bool // returned by every AddPortForward call unless overridden
}

// ForwardCall records one AddPortForward invocation for test assertions.
type ForwardCall struct {
	Proto  Proto
	Local  string
	Remote string
}

// NewFake returns a Fake with no NodeInfo yet (as if the control plane
// hasn't answered).
func NewFake() *Fake {
	return &Fake{ForwardResult: true}
}

func (f *Fake) Start(ctx context.Context, cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.cfg = cfg
	return nil
}

// SetNodeInfo lets a test simulate the control plane becoming reachable.
func (f *Fake) SetNodeInfo(info *NodeInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
}

// SetPeers lets a test simulate the overlay's current peer list.
func (f *Fake) SetPeers(peers []PeerInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers = peers
}

func (f *Fake) Version(ctx context.Context) (string, error) {
	return "fake-overlay/1.0", nil
}

func (f *Fake) NodeInfo(ctx context.Context) (*NodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, nil
}

func (f *Fake) Peers(ctx context.Context) ([]PeerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers, nil
}

func (f *Fake) AddPortForward(ctx context.Context, proto Proto, local, remote string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Forwards = append(f.Forwards, ForwardCall{Proto: proto, Local: local, Remote: remote})
	return f.ForwardResult, nil
}

func (f *Fake) SetTCPWhitelist(ctx context.Context, ports []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TCPWhitelist = ports
	return nil
}

func (f *Fake) SetUDPWhitelist(ctx context.Context, ports []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UDPWhitelist = ports
	return nil
}

func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}

// Started reports whether Start has been called without a matching Stop.
func (f *Fake) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}
