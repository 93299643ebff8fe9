package mcnet

import (
	"fmt"
	stdnet "net"
	"time"

	"lanbridge/protocol/minecraft"
	"lanbridge/protocol/minecraft/packets/c2s"
	"lanbridge/protocol/minecraft/packets/common"
	"lanbridge/protocol/minecraft/packets/s2c"
)

const (
	legacyProbeTimeout = 5 * time.Second
	statusProbeTimeout = 3 * time.Second

	// handshakeProtocolVersion is the value sent in the modern status
	// handshake. Status queries don't negotiate a protocol, but every
	// server implementation accepts this as a well-known "query" sentinel.
	handshakeProtocolVersion = 47
	statusNextState          = 1
)

// LegacyProbe connects to 127.0.0.1:port, sends the 0xFE liveness byte and
// reports whether the reply byte equals 0xFF. Any connection or I/O error,
// or a non-0xFF reply, returns false.
func LegacyProbe(port uint16) bool {
	conn, err := stdnet.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), legacyProbeTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(legacyProbeTimeout))

	if _, err := conn.Write([]byte{0xFE}); err != nil {
		return false
	}

	reply := make([]byte, 1)
	if _, err := conn.Read(reply); err != nil {
		return false
	}

	return reply[0] == 0xFF
}

// StatusResult is the decoded reply to a modern status probe.
type StatusResult struct {
	VersionName string
	Protocol    int
	Online      int
	Max         int
	Description string
}

// StatusProbe performs the modern Server List Ping handshake against
// addr:port and decodes the JSON status response. Anything it can't parse
// cleanly is reported as an error, matching the spec's "anything else
// returns unknown" instruction at the caller.
func StatusProbe(addr string, port uint16) (StatusResult, error) {
	conn, err := stdnet.DialTimeout("tcp", fmt.Sprintf("%s:%d", addr, port), statusProbeTimeout)
	if err != nil {
		return StatusResult{}, fmt.Errorf("mcnet: dial: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(statusProbeTimeout))

	handshake := &common.HandshakePacket{
		ProtocolVersion: handshakeProtocolVersion,
		ServerAddress:   addr,
		ServerPort:      port,
		NextState:       statusNextState,
	}
	if err := minecraft.WritePacket(conn, handshake); err != nil {
		return StatusResult{}, fmt.Errorf("mcnet: write handshake: %w", err)
	}

	if err := minecraft.WritePacket(conn, &c2s.StatusRequestPacket{}); err != nil {
		return StatusResult{}, fmt.Errorf("mcnet: write status request: %w", err)
	}

	var resp s2c.StatusResponsePacket
	if err := minecraft.ReadPacket(conn, &resp); err != nil {
		return StatusResult{}, fmt.Errorf("mcnet: read status response: %w", err)
	}

	decoded, err := resp.Decoded()
	if err != nil {
		return StatusResult{}, fmt.Errorf("mcnet: decode status JSON: %w", err)
	}

	return StatusResult{
		VersionName: decoded.Version.Name,
		Protocol:    decoded.Version.Protocol,
		Online:      decoded.Players.Online,
		Max:         decoded.Players.Max,
		Description: decoded.Description.Text,
	}, nil
}
