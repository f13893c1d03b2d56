// Package ids defines the identity types shared across the ENR bridge
// subsystems. NodeID is opaque and supplied by an external identity
// module; nothing in this package forges or derives one.
package ids

import (
	"crypto/rand"
	"encoding/hex"
)

// Len is the byte width of a NodeID.
const Len = 32

// NodeID identifies a peer in the economic network. It is
// equality-comparable, hashable, and totally orderable by its byte
// representation, which is all the subsystems that key maps by NodeID
// require.
type NodeID [Len]byte

// Empty is the zero NodeID. It is never a valid peer identity; it is
// useful as a sentinel in tests and default-valued structs.
var Empty NodeID

// String returns the hex encoding of the NodeID.
func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// Less reports whether id sorts before other, using big-endian byte
// comparison. Used for the deterministic tie-break rule in candidate and
// vote selection (smaller NodeID wins ties).
func (id NodeID) Less(other NodeID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// IsEmpty reports whether id is the zero value.
func (id NodeID) IsEmpty() bool {
	return id == Empty
}

// GenerateTestID returns a random NodeID for use in tests. It must never
// be used to mint a production identity.
func GenerateTestID() NodeID {
	var id NodeID
	_, _ = rand.Read(id[:])
	return id
}
