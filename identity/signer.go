// Package identity defines the pluggable signing and verification hooks
// every outbound/inbound envelope passes through. Keys and signature
// schemes are an external collaborator's concern (the identity module
// referenced in spec.md §1); this package only defines the seam,
// mirroring the crypto/bls package, which stubs Sign/Verify the same way
// until real keys are wired in.
package identity

import "go.uber.org/zap"

// Signer produces a signature over an encoded envelope. The default
// Signer returns an empty signature, matching spec.md's "signature is a
// pluggable hook; may be empty" requirement for broadcast_local.
type Signer interface {
	Sign(msg []byte) []byte
}

// Verifier checks a signature produced by a (possibly remote) Signer.
// The default Verifier always accepts, exactly as crypto/bls.Verify
// always returns true until wired to real keys. This package makes that
// behavior explicit and named rather than silently absent, so production
// builds know to replace it.
type Verifier interface {
	Verify(msg, sig []byte, nodePubKey []byte) bool
}

// NoOpSigner never signs. It is the default for every subsystem that
// accepts a Signer and is told the production identity module isn't
// wired in yet.
type NoOpSigner struct{}

// Sign always returns an empty signature.
func (NoOpSigner) Sign([]byte) []byte { return nil }

// NoOpVerifier accepts every signature, including an empty one. SHOULD be
// replaced before production use; spec.md §7 notes signature verification
// absence SHOULD be flagged.
type NoOpVerifier struct{}

// Verify always reports success.
func (NoOpVerifier) Verify(_, _, _ []byte) bool { return true }

// Enabled reports whether v is something other than the no-op default,
// so callers can flag (log, count) an unauthenticated deployment per
// spec.md §7's "SHOULD be flagged" guidance.
func Enabled(v Verifier) bool {
	_, isNoOp := v.(NoOpVerifier)
	return !isNoOp
}

// WarnIfUnverified logs a structured warning, via zap fields, when
// component is running with the unauthenticated no-op Verifier default.
// A nil logger is a no-op, so callers can pass a construction-time
// optional zap.Logger without a nil check at every call site.
func WarnIfUnverified(zl *zap.Logger, component string, v Verifier) {
	if zl == nil || Enabled(v) {
		return
	}
	zl.Warn("signature verification disabled", zap.String("component", component))
}
