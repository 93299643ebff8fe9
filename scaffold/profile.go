package scaffold

import "github.com/google/uuid"

// ProfileKind is a closed, three-valued enumeration — not open to extension.
type ProfileKind string

const (
	ProfileHost  ProfileKind = "HOST"
	ProfileGuest ProfileKind = "GUEST"
	ProfileLocal ProfileKind = "LOCAL"
)

// PlayerProfile identifies one participant in the room, keyed by MachineID.
type PlayerProfile struct {
	Name      string      `json:"name"`
	MachineID string      `json:"machine_id"`
	Vendor    string      `json:"vendor"`
	Kind      ProfileKind `json:"kind"`
}

// Fingerprint is the fixed 16-byte constant used as both challenge and
// expected reply for c:ping. Held as a uuid.UUID for readable construction,
// the same way the teacher threads user identity through uuid.UUID.
var Fingerprint = uuid.MustParse("5cf37a1e-9b6e-4e61-8c0a-1d2f7a9e4b6d")

// FingerprintBytes returns the 16 raw bytes of Fingerprint.
func FingerprintBytes() []byte {
	b := Fingerprint // value copy
	return b[:]
}
