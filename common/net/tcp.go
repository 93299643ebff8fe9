package net

import (
	"net"
	"time"
)

// OptimizeTCPConn tunes a freshly accepted or dialed Scaffolding connection
// for low-latency request/response traffic: Nagle off, keep-alive on, and
// generous send/receive buffers for the occasional player-profile-list
// reply. Non-TCP connections are left untouched.
func OptimizeTCPConn(conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if err := tcpConn.SetNoDelay(true); err != nil {
		return err
	}

	if err := tcpConn.SetKeepAlive(true); err != nil {
		return err
	}

	if err := tcpConn.SetKeepAlivePeriod(30 * time.Second); err != nil {
		return err
	}

	// 512KB buffers: a single player_profiles_list reply can carry a roster
	// of JSON-encoded profiles well past the OS default buffer size.
	if err := tcpConn.SetReadBuffer(512 * 1024); err != nil {
		return err
	}

	return tcpConn.SetWriteBuffer(512 * 1024)
}
