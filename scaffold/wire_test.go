package scaffold

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"empty body", Request{Kind: "c:protocols", Body: nil}},
		{"ping body", Request{Kind: "c:ping", Body: FingerprintBytes()}},
		{"long kind", Request{Kind: "c:player_profiles_list", Body: []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteRequest(&buf, tt.req); err != nil {
				t.Fatalf("WriteRequest: %v", err)
			}

			got, err := ReadRequest(&buf)
			if err != nil {
				t.Fatalf("ReadRequest: %v", err)
			}

			if got.Kind != tt.req.Kind {
				t.Errorf("Kind = %q, want %q", got.Kind, tt.req.Kind)
			}
			if !bytes.Equal(got.Body, tt.req.Body) {
				t.Errorf("Body = %v, want %v", got.Body, tt.req.Body)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := Response{Status: StatusOK, Data: []byte("hello")}

	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}

	if got.Status != resp.Status {
		t.Errorf("Status = %d, want %d", got.Status, resp.Status)
	}
	if !bytes.Equal(got.Data, resp.Data) {
		t.Errorf("Data = %v, want %v", got.Data, resp.Data)
	}
}

func TestReadRequestRejectsOversizeBody(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0) // kind_len = 0
	lenBuf := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(lenBuf)

	if _, err := ReadRequest(&buf); err == nil {
		t.Fatal("ReadRequest accepted a body_len over 1 MiB")
	}
}

func TestWriteRequestRejectsOversizeBody(t *testing.T) {
	req := Request{Kind: "c:ping", Body: make([]byte, MaxBodyLen+1)}
	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err == nil {
		t.Fatal("WriteRequest accepted a body over 1 MiB")
	}
}

func TestShortReadIsFatal(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(5) // claims a 5-byte kind
	buf.WriteString("ab")  // but only provides 2

	if _, err := ReadRequest(&buf); err == nil {
		t.Fatal("ReadRequest tolerated a short read")
	}
}

func TestResponseErrorClassification(t *testing.T) {
	tests := []struct {
		status  uint8
		wantErr bool
	}{
		{StatusOK, false},
		{StatusNotReady, false},
		{StatusUnknown, true},
		{1, true},
	}

	for _, tt := range tests {
		r := Response{Status: tt.status, Data: []byte("msg")}
		if (r.Error() != nil) != tt.wantErr {
			t.Errorf("status %d: Error() = %v, wantErr %v", tt.status, r.Error(), tt.wantErr)
		}
	}
}
