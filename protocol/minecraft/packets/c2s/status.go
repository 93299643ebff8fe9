// Package c2s holds the client-to-server packets used by the status ping.
package c2s

import (
	"io"

	"lanbridge/protocol/minecraft"
)

// StatusRequestPacket asks the server to describe itself (Server List Ping).
type StatusRequestPacket struct{}

func (p *StatusRequestPacket) PacketID() minecraft.PacketType {
	return minecraft.PacketTypeStatusRequest
}

func (p *StatusRequestPacket) Encode(w io.Writer) error { return nil }
func (p *StatusRequestPacket) Decode(r io.Reader) error { return nil }

// PingRequestPacket carries an opaque payload the server must echo back.
type PingRequestPacket struct {
	Payload int64
}

func (p *PingRequestPacket) PacketID() minecraft.PacketType {
	return minecraft.PacketTypeStatusPing
}

func (p *PingRequestPacket) Encode(w io.Writer) error {
	return minecraft.WriteLong(w, p.Payload)
}

func (p *PingRequestPacket) Decode(r io.Reader) error {
	v, err := minecraft.ReadLong(r)
	if err != nil {
		return err
	}
	p.Payload = v
	return nil
}
