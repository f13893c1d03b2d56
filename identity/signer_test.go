package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoOpSignerProducesEmptySignature(t *testing.T) {
	var s Signer = NoOpSigner{}
	require.Empty(t, s.Sign([]byte("anything")))
}

func TestNoOpVerifierAlwaysAccepts(t *testing.T) {
	var v Verifier = NoOpVerifier{}
	require.True(t, v.Verify([]byte("msg"), []byte("garbage-sig"), []byte("pubkey")))
	require.True(t, v.Verify(nil, nil, nil))
}

func TestEnabledFlagsNoOpVerifier(t *testing.T) {
	require.False(t, Enabled(NoOpVerifier{}))

	type realVerifier struct{ NoOpVerifier }
	require.True(t, Enabled(realVerifier{}))
}
