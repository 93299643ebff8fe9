// Package roomcode implements the RoomCode codec: generation, parsing, and
// the mod-7 checksum that lets a human-typed code be rejected locally before
// ever touching the network.
package roomcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// alphabet is the 34-symbol base, the full alnum set minus the visually
// ambiguous I and O.
const alphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	prefix       = "U/"
	payloadLen   = 19 // "AAAA-BBBB-CCCC-DDDD"
	symbolCount  = 16
	groupLen     = 4
	dashPosA     = 4
	dashPosB     = 9
	dashPosC     = 14
	networkBase  = 7 // the checksum modulus
	alphabetBase = int64(len(alphabet))
)

// ErrorKind distinguishes why Parse rejected a string, for diagnostics.
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrEmpty
	ErrBadPrefix
	ErrBadLength
	ErrBadDash
	ErrBadPart
	ErrBadChar
	ErrBadChecksum
)

func (k ErrorKind) String() string {
	switch k {
	case ErrEmpty:
		return "empty"
	case ErrBadPrefix:
		return "bad_prefix"
	case ErrBadLength:
		return "bad_length"
	case ErrBadDash:
		return "bad_dash"
	case ErrBadPart:
		return "bad_part"
	case ErrBadChar:
		return "bad_char"
	case ErrBadChecksum:
		return "bad_checksum"
	default:
		return "none"
	}
}

// ParseError reports a rejected room code with a machine-distinguishable Kind.
type ParseError struct {
	Kind ErrorKind
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("room code: %s", e.Kind)
}

var symbolIndex = func() map[byte]int {
	m := make(map[byte]int, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = i
	}
	return m
}()

// Code is a parsed, valid room code, derived into the values the overlay
// and Scaffolding need.
type Code struct {
	Raw           string
	NetworkName   string
	NetworkSecret string
}

// Generate draws a fresh 16-symbol room code whose checksum holds, and
// returns its canonical string form.
func Generate() (string, error) {
	indices := make([]int, symbolCount)
	for i := 0; i < symbolCount-1; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(alphabetBase))
		if err != nil {
			return "", fmt.Errorf("draw symbol: %w", err)
		}
		indices[i] = int(n.Int64())
	}

	// Adjust the final symbol so the positional base-34 value is 0 mod 7.
	// A solution always exists: 34 symbols map onto 7 residue classes, so by
	// pigeonhole every residue is hit by at least four of them.
	partialMod := checksumMod(indices[:symbolCount-1])
	pow := modPow34(symbolCount - 1)

	var candidates []int
	for v := 0; v < int(alphabetBase); v++ {
		if (partialMod+v*pow)%networkBase == 0 {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no checksum-valid final symbol found")
	}
	pick, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
	if err != nil {
		return "", fmt.Errorf("pick final symbol: %w", err)
	}
	indices[symbolCount-1] = candidates[pick.Int64()]

	symbols := make([]byte, symbolCount)
	for i, idx := range indices {
		symbols[i] = alphabet[idx]
	}

	return format(symbols), nil
}

// MustGenerate is Generate but panics on failure (crypto/rand exhaustion is
// not a condition callers can meaningfully recover from).
func MustGenerate() string {
	s, err := Generate()
	if err != nil {
		panic(err)
	}
	return s
}

// Parse validates s and derives its NetworkName/NetworkSecret. On failure the
// returned error is always a *ParseError.
func Parse(s string) (*Code, error) {
	if s == "" {
		return nil, &ParseError{Kind: ErrEmpty}
	}

	if !strings.HasPrefix(s, prefix) {
		return nil, &ParseError{Kind: ErrBadPrefix}
	}

	rest := s[len(prefix):]
	if len(rest) != payloadLen {
		return nil, &ParseError{Kind: ErrBadLength}
	}

	if rest[dashPosA] != '-' || rest[dashPosB] != '-' || rest[dashPosC] != '-' {
		return nil, &ParseError{Kind: ErrBadDash}
	}

	parts := strings.Split(rest, "-")
	if len(parts) != 4 {
		return nil, &ParseError{Kind: ErrBadDash}
	}
	for _, p := range parts {
		if len(p) != groupLen {
			return nil, &ParseError{Kind: ErrBadPart}
		}
	}

	symbols := strings.Join(parts, "")
	indices := make([]int, symbolCount)
	for i := 0; i < symbolCount; i++ {
		idx, ok := symbolIndex[symbols[i]]
		if !ok {
			return nil, &ParseError{Kind: ErrBadChar}
		}
		indices[i] = idx
	}

	if checksumMod(indices) != 0 {
		return nil, &ParseError{Kind: ErrBadChecksum}
	}

	return &Code{
		Raw:           s,
		NetworkName:   fmt.Sprintf("scaffolding-mc-%s-%s", parts[0], parts[1]),
		NetworkSecret: fmt.Sprintf("%s-%s", parts[2], parts[3]),
	}, nil
}

// checksumMod computes the little-endian base-34 value of indices, mod 7,
// without ever forming the (huge) full integer.
func checksumMod(indices []int) int {
	mod := 0
	pow := 1
	for _, v := range indices {
		mod = (mod + v*pow) % networkBase
		pow = (pow * int(alphabetBase)) % networkBase
	}
	return mod
}

// modPow34 returns 34^position mod 7.
func modPow34(position int) int {
	pow := 1
	for i := 0; i < position; i++ {
		pow = (pow * int(alphabetBase)) % networkBase
	}
	return pow
}

func format(symbols []byte) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i, c := range symbols {
		if i > 0 && i%groupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(c)
	}
	return b.String()
}
