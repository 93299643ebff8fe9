package net

import (
	"net"
	"strconv"
)

// Network identifies a transport protocol for a forwarded endpoint.
type Network string

const (
	TCP Network = "tcp"
	UDP Network = "udp"
)

// Destination is a protocol-tagged host:port pair. room builds these for
// every NetworkNode.AddPortForward call instead of formatting addr:port
// strings ad hoc at each call site.
type Destination struct {
	Network Network
	Address string
	Port    uint16
}

// NetAddr renders the destination as the "host:port" string the overlay
// adapter's forward calls expect.
func (d Destination) NetAddr() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(int(d.Port)))
}

// TCPDestination builds a TCP Destination.
func TCPDestination(host string, port uint16) Destination {
	return Destination{Network: TCP, Address: host, Port: port}
}

// UDPDestination builds a UDP Destination.
func UDPDestination(host string, port uint16) Destination {
	return Destination{Network: UDP, Address: host, Port: port}
}
