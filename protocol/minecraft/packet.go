package minecraft

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// PacketType identifies a packet within its current protocol phase.
type PacketType int32

const (
	PacketTypeHandshake     PacketType = 0x00
	PacketTypeStatusRequest PacketType = 0x00
	PacketTypeStatusPing    PacketType = 0x01
)

// NetworkPhase is the client/server protocol phase, per the handshake's
// next-state field.
type NetworkPhase int

const (
	PhaseHandshaking NetworkPhase = iota
	PhaseStatus
)

// Packet is the base interface implemented by every wire packet.
type Packet interface {
	PacketID() PacketType
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

// ReadPacketRaw reads one length-prefixed packet and splits off its ID.
// Wire format: [VarInt length][VarInt packet ID][payload].
func ReadPacketRaw(r io.Reader) (PacketType, []byte, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return 0, nil, fmt.Errorf("read packet length: %w", err)
	}

	if length <= 0 || length > 2097151 { // 2^21-1, the protocol's max packet size
		return 0, nil, fmt.Errorf("invalid packet length: %d", length)
	}

	packetData := make([]byte, length)
	if _, err := io.ReadFull(r, packetData); err != nil {
		return 0, nil, fmt.Errorf("read packet data: %w", err)
	}

	buf := bytes.NewReader(packetData)
	packetID, err := ReadVarInt(buf)
	if err != nil {
		return 0, nil, fmt.Errorf("read packet ID: %w", err)
	}

	remaining := make([]byte, buf.Len())
	buf.Read(remaining)

	return PacketType(packetID), remaining, nil
}

// ReadPacket reads a packet and decodes it into packet, verifying the ID matches.
func ReadPacket(r io.Reader, packet Packet) error {
	packetID, data, err := ReadPacketRaw(r)
	if err != nil {
		return err
	}

	if packetID != packet.PacketID() {
		return fmt.Errorf("unexpected packet ID: got 0x%02X, expected 0x%02X", packetID, packet.PacketID())
	}

	if err := packet.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode packet: %w", err)
	}

	return nil
}

// WritePacket encodes and writes a length-prefixed packet.
func WritePacket(w io.Writer, packet Packet) error {
	var buf bytes.Buffer

	if err := WriteVarInt(&buf, int32(packet.PacketID())); err != nil {
		return fmt.Errorf("write packet ID: %w", err)
	}

	if err := packet.Encode(&buf); err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}

	packetData := buf.Bytes()
	if err := WriteVarInt(w, int32(len(packetData))); err != nil {
		return fmt.Errorf("write packet length: %w", err)
	}

	_, err := w.Write(packetData)
	return err
}

// DecodePacket decodes packet from a standalone byte slice (no length/ID prefix).
func DecodePacket(packet Packet, data []byte) error {
	return packet.Decode(bytes.NewReader(data))
}

// ReadString reads a VarInt-length-prefixed UTF-8 string, rejecting anything
// over maxLength bytes.
func ReadString(r io.Reader, maxLength int) (string, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}

	if length < 0 || length > int32(maxLength) {
		return "", fmt.Errorf("string length out of range: %d", length)
	}

	if length == 0 {
		return "", nil
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

// WriteString writes a VarInt-length-prefixed UTF-8 string.
func WriteString(w io.Writer, s string, maxLength int) error {
	if len(s) > maxLength {
		return fmt.Errorf("string too long: %d > %d", len(s), maxLength)
	}

	if err := WriteVarInt(w, int32(len(s))); err != nil {
		return err
	}

	_, err := w.Write([]byte(s))
	return err
}

// ReadLong reads a big-endian signed 64-bit integer.
func ReadLong(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// WriteLong writes a big-endian signed 64-bit integer.
func WriteLong(w io.Writer, v int64) error {
	return binary.Write(w, binary.BigEndian, v)
}
