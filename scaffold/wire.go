// Package scaffold implements the Scaffolding rendezvous protocol: its
// length-prefixed TCP frame format, and the server/client that speak it.
package scaffold

import (
	"encoding/binary"
	"fmt"
	"io"

	"lanbridge/common/bufpool"
)

// MaxBodyLen is the hard cap on a request body or response data payload.
const MaxBodyLen = 1 << 20 // 1 MiB

// MaxKindLen is the hard cap on a request kind string, imposed by its
// single-byte length prefix.
const MaxKindLen = 255

// Status codes carried by a Response.
const (
	StatusOK        uint8 = 0
	StatusNotReady  uint8 = 32
	StatusUnknown   uint8 = 255
)

// Request is one Scaffolding call: a namespaced command plus its body.
type Request struct {
	Kind string
	Body []byte
}

// Response is the single reply to a Request.
type Response struct {
	Status uint8
	Data   []byte
}

// Error returns the response as an error if its status is neither OK nor
// NotReady — the two statuses callers are expected to branch on explicitly.
func (r Response) Error() error {
	switch r.Status {
	case StatusOK, StatusNotReady:
		return nil
	case StatusUnknown:
		return fmt.Errorf("scaffolding: unknown command")
	default:
		return fmt.Errorf("scaffolding: status %d: %s", r.Status, r.Data)
	}
}

// WriteRequest encodes req onto w: kind_len:u8 | kind | body_len:u32be | body.
func WriteRequest(w io.Writer, req Request) error {
	if len(req.Kind) > MaxKindLen {
		return fmt.Errorf("scaffolding: kind %q too long (%d bytes)", req.Kind, len(req.Kind))
	}
	if len(req.Body) > MaxBodyLen {
		return fmt.Errorf("scaffolding: body too large (%d bytes)", len(req.Body))
	}

	if _, err := w.Write([]byte{byte(len(req.Kind))}); err != nil {
		return fmt.Errorf("write kind length: %w", err)
	}
	if _, err := io.WriteString(w, req.Kind); err != nil {
		return fmt.Errorf("write kind: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(req.Body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write body length: %w", err)
	}
	if len(req.Body) > 0 {
		if _, err := w.Write(req.Body); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
	}

	return nil
}

// ReadRequest decodes one Request from r. Short reads are fatal: the
// connection cannot be resynchronized and must be closed by the caller.
func ReadRequest(r io.Reader) (Request, error) {
	var kindLenBuf [1]byte
	if _, err := io.ReadFull(r, kindLenBuf[:]); err != nil {
		return Request{}, fmt.Errorf("read kind length: %w", err)
	}
	kindLen := int(kindLenBuf[0])

	kindBuf := make([]byte, kindLen)
	if kindLen > 0 {
		if _, err := io.ReadFull(r, kindBuf); err != nil {
			return Request{}, fmt.Errorf("read kind: %w", err)
		}
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Request{}, fmt.Errorf("read body length: %w", err)
	}
	bodyLen := binary.BigEndian.Uint32(lenBuf[:])
	if bodyLen > MaxBodyLen {
		return Request{}, fmt.Errorf("scaffolding: body length %d exceeds max %d", bodyLen, MaxBodyLen)
	}

	body := bufpool.Get(int(bodyLen))
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Request{}, fmt.Errorf("read body: %w", err)
		}
	}

	return Request{Kind: string(kindBuf), Body: body}, nil
}

// WriteResponse encodes resp onto w: status:u8 | data_len:u32be | data.
func WriteResponse(w io.Writer, resp Response) error {
	if len(resp.Data) > MaxBodyLen {
		return fmt.Errorf("scaffolding: response data too large (%d bytes)", len(resp.Data))
	}

	if _, err := w.Write([]byte{resp.Status}); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(resp.Data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write data length: %w", err)
	}
	if len(resp.Data) > 0 {
		if _, err := w.Write(resp.Data); err != nil {
			return fmt.Errorf("write data: %w", err)
		}
	}

	return nil
}

// ReadResponse decodes one Response from r. Short reads are fatal.
func ReadResponse(r io.Reader) (Response, error) {
	var statusBuf [1]byte
	if _, err := io.ReadFull(r, statusBuf[:]); err != nil {
		return Response{}, fmt.Errorf("read status: %w", err)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Response{}, fmt.Errorf("read data length: %w", err)
	}
	dataLen := binary.BigEndian.Uint32(lenBuf[:])
	if dataLen > MaxBodyLen {
		return Response{}, fmt.Errorf("scaffolding: data length %d exceeds max %d", dataLen, MaxBodyLen)
	}

	data := bufpool.Get(int(dataLen))
	if dataLen > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return Response{}, fmt.Errorf("read data: %w", err)
		}
	}

	return Response{Status: statusBuf[0], Data: data}, nil
}
