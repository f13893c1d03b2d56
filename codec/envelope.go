// Package codec implements the ENR bridge's self-describing wire
// envelope: a one-byte discriminator plus a versioned, schema-tolerant
// payload. The framing is adapted from the Codec abstraction in
// github.com/luxfi/consensus/codec, which marshals payloads through an
// explicit version gate; this package adds the discriminator byte the
// tagged union in spec.md §6 needs on top of that.
//
// The payload codec itself is JSON. No available third-party
// serialization library can encode arbitrary Go structs without either
// hand authoring struct tags it doesn't already have
// (protobuf/ssz, which need a .proto/.ssz schema and a code generator
// this environment cannot run) or dropping forward-compatible
// unknown-field tolerance (gob, which errors on field mismatches
// instead of ignoring them). JSON already gives "unknown fields within a
// known tag are ignored" for free, which spec.md §6 requires, so it
// stays the payload format even though the envelope framing around it is
// a true binary discriminator.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the envelope's wire discriminator.
type Kind uint8

// Discriminators for every variant in the EnrMessage tagged union.
// Unknown discriminators (values not listed here) are ignored by the
// router rather than rejected, so the wire format can grow new variants.
const (
	KindGradientUpdate Kind = iota + 1
	KindCreditTransfer
	KindBalanceQuery
	KindBalanceResponse
	KindElectionAnnouncement
	KindElectionCandidacy
	KindElectionVote
	KindElectionResult
	KindSeptalStateChange
	KindHealthProbe
	KindHealthResponse
)

func (k Kind) String() string {
	switch k {
	case KindGradientUpdate:
		return "GradientUpdate"
	case KindCreditTransfer:
		return "CreditTransfer"
	case KindBalanceQuery:
		return "BalanceQuery"
	case KindBalanceResponse:
		return "BalanceResponse"
	case KindElectionAnnouncement:
		return "ElectionAnnouncement"
	case KindElectionCandidacy:
		return "ElectionCandidacy"
	case KindElectionVote:
		return "ElectionVote"
	case KindElectionResult:
		return "ElectionResult"
	case KindSeptalStateChange:
		return "SeptalStateChange"
	case KindHealthProbe:
		return "HealthProbe"
	case KindHealthResponse:
		return "HealthResponse"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// ErrUnknownVariant is returned by Decode when the discriminator byte
// does not match any known Kind. Per §7, the router logs and discards
// rather than escalating this to a caller-visible failure.
var ErrUnknownVariant = errors.New("codec: unknown envelope variant")

// ErrDecodeError wraps payload-level decode failures (truncated frame,
// malformed JSON payload).
var ErrDecodeError = errors.New("codec: envelope decode error")

// header is [kind:1][version:2 big-endian].
const headerLen = 3

// Version is the payload codec's schema version.
type Version uint16

// CurrentVersion is the version this build emits. Peek reports an
// inbound frame's version; Decode does not check it.
const CurrentVersion Version = 0

// payload does the actual struct<->bytes work. It is swappable so tests
// can inject a codec that fails deterministically.
type payload interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// jsonPayload is the default payload codec.
type jsonPayload struct{}

func (jsonPayload) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonPayload) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

var defaultPayload payload = jsonPayload{}

// Encode frames v as an envelope of the given kind: discriminator byte,
// version, then the marshaled payload. Unknown fields on the decode side
// are tolerated because the underlying payload codec is JSON.
func Encode(kind Kind, v interface{}) ([]byte, error) {
	body, err := defaultPayload.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeError, err)
	}
	out := make([]byte, headerLen+len(body))
	out[0] = byte(kind)
	binary.BigEndian.PutUint16(out[1:3], uint16(CurrentVersion))
	copy(out[headerLen:], body)
	return out, nil
}

// Peek reads just the discriminator and version off the front of an
// envelope, without decoding the payload. The router uses this to
// dispatch before committing to a concrete payload type.
func Peek(data []byte) (kind Kind, version Version, err error) {
	if len(data) < headerLen {
		return 0, 0, fmt.Errorf("%w: short frame (%d bytes)", ErrDecodeError, len(data))
	}
	kind = Kind(data[0])
	version = Version(binary.BigEndian.Uint16(data[1:3]))
	return kind, version, nil
}

// Decode reads an envelope's header and unmarshals its payload into v.
// It returns ErrUnknownVariant for a discriminator the caller did not
// expect to see at this call site. Callers pass the Kind they required so
// a confused dispatch can't silently decode into the wrong struct.
func Decode(data []byte, want Kind, v interface{}) error {
	kind, _, err := Peek(data)
	if err != nil {
		return err
	}
	if kind != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnknownVariant, kind, want)
	}
	if err := defaultPayload.Unmarshal(data[headerLen:], v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeError, err)
	}
	return nil
}

// IsKnownKind reports whether kind is one this build recognizes.
func IsKnownKind(kind Kind) bool {
	return kind >= KindGradientUpdate && kind <= KindHealthResponse
}
