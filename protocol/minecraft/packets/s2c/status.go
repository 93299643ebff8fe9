// Package s2c holds the server-to-client packets used by the status ping.
package s2c

import (
	"encoding/json"
	"io"

	"lanbridge/protocol/minecraft"
)

// StatusResponsePacket carries the server's self-description as a JSON string.
type StatusResponsePacket struct {
	JSONResponse string
}

// StatusResponse is the decoded form of StatusResponsePacket.JSONResponse.
type StatusResponse struct {
	Version     StatusVersion     `json:"version"`
	Players     StatusPlayers     `json:"players"`
	Description StatusDescription `json:"description"`
	Favicon     string            `json:"favicon,omitempty"`
}

type StatusVersion struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type StatusPlayers struct {
	Max    int                  `json:"max"`
	Online int                  `json:"online"`
	Sample []StatusPlayerSample `json:"sample,omitempty"`
}

type StatusPlayerSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type StatusDescription struct {
	Text string `json:"text"`
}

func (p *StatusResponsePacket) PacketID() minecraft.PacketType {
	return minecraft.PacketTypeStatusRequest
}

func (p *StatusResponsePacket) Encode(w io.Writer) error {
	return minecraft.WriteString(w, p.JSONResponse, 32767)
}

func (p *StatusResponsePacket) Decode(r io.Reader) error {
	s, err := minecraft.ReadString(r, 32767)
	if err != nil {
		return err
	}
	p.JSONResponse = s
	return nil
}

// Decoded unmarshals JSONResponse, tolerating the occasional server that
// wraps description in a plain string instead of a chat component.
func (p *StatusResponsePacket) Decoded() (StatusResponse, error) {
	var resp StatusResponse
	if err := json.Unmarshal([]byte(p.JSONResponse), &resp); err == nil {
		return resp, nil
	}

	var alt struct {
		Version     StatusVersion `json:"version"`
		Players     StatusPlayers `json:"players"`
		Description string        `json:"description"`
	}
	if err := json.Unmarshal([]byte(p.JSONResponse), &alt); err != nil {
		return StatusResponse{}, err
	}
	return StatusResponse{
		Version:     alt.Version,
		Players:     alt.Players,
		Description: StatusDescription{Text: alt.Description},
	}, nil
}

// PongResponsePacket echoes the PingRequestPacket.Payload back to the client.
type PongResponsePacket struct {
	Payload int64
}

func (p *PongResponsePacket) PacketID() minecraft.PacketType {
	return minecraft.PacketTypeStatusPing
}

func (p *PongResponsePacket) Encode(w io.Writer) error {
	return minecraft.WriteLong(w, p.Payload)
}

func (p *PongResponsePacket) Decode(r io.Reader) error {
	v, err := minecraft.ReadLong(r)
	if err != nil {
		return err
	}
	p.Payload = v
	return nil
}
