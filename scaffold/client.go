package scaffold

import (
	"bytes"
	"encoding/json"
	"fmt"
	stdnet "net"
	"sync"
	"time"

	cnet "lanbridge/common/net"
)

// ConnectTimeout bounds how long Connect waits for the TCP handshake.
const ConnectTimeout = 64 * time.Second

// Client speaks the Scaffolding protocol as a caller: one request in
// flight at a time over a single persistent connection.
type Client struct {
	mu   sync.Mutex
	conn stdnet.Conn
}

// Connect dials host:port and returns a ready Client.
func Connect(host string, port uint16) (*Client, error) {
	conn, err := stdnet.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("scaffold: connect: %w", err)
	}
	if err := cnet.OptimizeTCPConn(conn); err != nil {
		// Non-fatal: tuning is best-effort.
		_ = err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// call sends one request and waits for its matching response. The Client's
// mutex serializes every call: the wire protocol allows no pipelining.
func (c *Client) call(kind string, body []byte) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteRequest(c.conn, Request{Kind: kind, Body: body}); err != nil {
		return Response{}, err
	}
	return ReadResponse(c.conn)
}

// Ping sends c:ping with the 16-byte fingerprint and reports whether the
// reply echoed it back byte-for-byte.
func (c *Client) Ping() (bool, error) {
	resp, err := c.call("c:ping", FingerprintBytes())
	if err != nil {
		return false, err
	}
	if resp.Status != StatusOK {
		return false, resp.Error()
	}
	return bytes.Equal(resp.Data, FingerprintBytes()), nil
}

// Protocols returns the server's supported c:* kinds.
func (c *Client) Protocols() ([]string, error) {
	resp, err := c.call("c:protocols", nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, resp.Error()
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return splitNUL(resp.Data), nil
}

func splitNUL(data []byte) []string {
	var out []string
	start := 0
	for i, b := range data {
		if b == 0 {
			out = append(out, string(data[start:i]))
			start = i + 1
		}
	}
	out = append(out, string(data[start:]))
	return out
}

// ServerPort returns the host's detected Minecraft port, or nil if none has
// been detected yet.
func (c *Client) ServerPort() (*uint16, error) {
	resp, err := c.call("c:server_port", nil)
	if err != nil {
		return nil, err
	}
	if resp.Status == StatusNotReady {
		return nil, nil
	}
	if resp.Status != StatusOK {
		return nil, resp.Error()
	}
	if len(resp.Data) < 2 {
		return nil, fmt.Errorf("scaffold: c:server_port reply too short (%d bytes)", len(resp.Data))
	}
	port := uint16(resp.Data[0])<<8 | uint16(resp.Data[1])
	return &port, nil
}

// PlayerPing announces or refreshes this client's roster entry.
func (c *Client) PlayerPing(name, machineID, vendor string) error {
	body, err := json.Marshal(playerPingBody{Name: name, MachineID: machineID, Vendor: vendor})
	if err != nil {
		return fmt.Errorf("scaffold: marshal player_ping: %w", err)
	}

	resp, err := c.call("c:player_ping", body)
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return resp.Error()
	}
	return nil
}

// PlayerProfilesList returns the full roster in insertion order.
func (c *Client) PlayerProfilesList() ([]PlayerProfile, error) {
	resp, err := c.call("c:player_profiles_list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, resp.Error()
	}

	var profiles []PlayerProfile
	if err := json.Unmarshal(resp.Data, &profiles); err != nil {
		return nil, fmt.Errorf("scaffold: unmarshal player_profiles_list: %w", err)
	}
	return profiles, nil
}
