package overlay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	stdnet "net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/yamux"

	"lanbridge/logger"
)

// controlPortLinePrefix is what the child overlay daemon writes to its own
// stdout, exactly once, to announce the loopback port this adapter should
// dial to establish the yamux control-plane session.
const controlPortLinePrefix = "CONTROL_PORT "

const controlDialTimeout = 5 * time.Second

// ProcessAdapter drives a real child overlay process. Its control-plane
// connection is a single TCP socket, multiplexed with yamux into a command
// stream (request/reply) and an event stream (async log/peer-change
// pushes), replacing the teacher's bespoke stream multiplexer for exactly
// this purpose.
type ProcessAdapter struct {
	log   *logger.Logger
	group ProcessGroupAdopter

	mu      sync.Mutex
	cmd     *exec.Cmd
	session *yamux.Session
	cmdConn stdnet.Conn

	LogLines chan string // child stdout/stderr, line-buffered
}

var _ NetworkNode = (*ProcessAdapter)(nil)

// ProcessGroupAdopter is the subset of room.ProcessGroup the adapter needs,
// kept narrow so overlay does not import room (which would be a cycle:
// room drives overlay, not the reverse).
type ProcessGroupAdopter interface {
	Prepare(cmd *exec.Cmd)
	Adopt(cmd *exec.Cmd) error
	Kill() error
}

// NewProcessAdapter builds an adapter whose child will be assigned to
// group, so a tree-kill always takes the whole child down.
func NewProcessAdapter(group ProcessGroupAdopter) *ProcessAdapter {
	return &ProcessAdapter{
		log:      logger.New("overlay.process"),
		group:    group,
		LogLines: make(chan string, 256),
	}
}

func (a *ProcessAdapter) Start(ctx context.Context, cfg Config) error {
	args := buildArgs(cfg)
	cmd := exec.CommandContext(ctx, cfg.BinaryPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("overlay: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("overlay: stderr pipe: %w", err)
	}

	a.group.Prepare(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("overlay: start %s: %w", cfg.BinaryPath, err)
	}
	if err := a.group.Adopt(cmd); err != nil {
		cmd.Process.Kill()
		return fmt.Errorf("overlay: adopt into process group: %w", err)
	}

	a.mu.Lock()
	a.cmd = cmd
	a.mu.Unlock()

	portCh := make(chan int, 1)
	go a.pumpLines(stdout, portCh)
	go a.pumpLines(stderr, nil)

	var port int
	select {
	case port = <-portCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(controlDialTimeout):
		return fmt.Errorf("overlay: child never announced its control port")
	}

	conn, err := stdnet.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), controlDialTimeout)
	if err != nil {
		return fmt.Errorf("overlay: dial control port %d: %w", port, err)
	}

	session, err := yamux.Client(conn, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("overlay: yamux client: %w", err)
	}

	a.mu.Lock()
	a.session = session
	a.cmdConn = conn
	a.mu.Unlock()

	go a.pumpEvents()

	return nil
}

func buildArgs(cfg Config) []string {
	args := []string{
		"--network-name", cfg.NetworkName,
		"--network-secret", cfg.NetworkSecret,
		"--hostname", cfg.Hostname,
	}
	if cfg.FixedIPv4 != "" {
		args = append(args, "--ipv4", cfg.FixedIPv4)
	}
	if cfg.IsHost {
		args = append(args, "--host")
	}
	for _, relay := range cfg.RelayURLs {
		args = append(args, "--relay", relay)
	}
	if cfg.ScaffoldingPort != nil {
		args = append(args, "--whitelist-tcp", strconv.Itoa(int(*cfg.ScaffoldingPort)))
	}
	return args
}

func (a *ProcessAdapter) pumpLines(r interface{ Read([]byte) (int, error) }, portCh chan<- int) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if portCh != nil && strings.HasPrefix(line, controlPortLinePrefix) {
			if port, err := strconv.Atoi(strings.TrimPrefix(line, controlPortLinePrefix)); err == nil {
				select {
				case portCh <- port:
				default:
				}
				continue
			}
		}
		select {
		case a.LogLines <- line:
		default:
			a.log.Debugf("log line channel full, dropping: %s", line)
		}
	}
}

// rpcRequest/rpcResponse are the line-delimited JSON envelopes exchanged on
// the command stream. The overlay is agnostic to wire format by the
// specification's own admission; this is the adapter's private choice.
type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (a *ProcessAdapter) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return fmt.Errorf("overlay: control plane not connected")
	}

	stream, err := session.Open()
	if err != nil {
		return fmt.Errorf("overlay: open command stream: %w", err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	}

	var paramsJSON json.RawMessage
	if params != nil {
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("overlay: marshal params: %w", err)
		}
	}

	req := rpcRequest{Method: method, Params: paramsJSON}
	enc := json.NewEncoder(stream)
	if err := enc.Encode(req); err != nil {
		return fmt.Errorf("overlay: write request: %w", err)
	}

	var resp rpcResponse
	dec := json.NewDecoder(stream)
	if err := dec.Decode(&resp); err != nil {
		return fmt.Errorf("overlay: read response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("overlay: %s: %s", method, resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("overlay: unmarshal result: %w", err)
		}
	}
	return nil
}

func (a *ProcessAdapter) pumpEvents() {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return
	}

	stream, err := session.AcceptStream()
	if err != nil {
		return // session closed; nothing more to read
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		select {
		case a.LogLines <- scanner.Text():
		default:
		}
	}
}

func (a *ProcessAdapter) Version(ctx context.Context) (string, error) {
	var version string
	err := a.call(ctx, "version", nil, &version)
	return version, err
}

func (a *ProcessAdapter) NodeInfo(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := a.call(ctx, "node_info", nil, &info); err != nil {
		return nil, err
	}
	if info.ID == "" && info.Hostname == "" {
		return nil, nil // control plane answered but has nothing to report yet
	}
	return &info, nil
}

func (a *ProcessAdapter) Peers(ctx context.Context) ([]PeerInfo, error) {
	var peers []PeerInfo
	if err := a.call(ctx, "peers", nil, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

type addForwardParams struct {
	Proto  Proto  `json:"proto"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

func (a *ProcessAdapter) AddPortForward(ctx context.Context, proto Proto, local, remote string) (bool, error) {
	var ok bool
	err := a.call(ctx, "add_port_forward", addForwardParams{Proto: proto, Local: local, Remote: remote}, &ok)
	return ok, err
}

func (a *ProcessAdapter) SetTCPWhitelist(ctx context.Context, ports []string) error {
	return a.call(ctx, "set_tcp_whitelist", ports, nil)
}

func (a *ProcessAdapter) SetUDPWhitelist(ctx context.Context, ports []string) error {
	return a.call(ctx, "set_udp_whitelist", ports, nil)
}

func (a *ProcessAdapter) Stop() error {
	a.mu.Lock()
	session := a.session
	conn := a.cmdConn
	a.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if conn != nil {
		conn.Close()
	}
	return a.group.Kill()
}
