package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeIDLess(t *testing.T) {
	require := require.New(t)

	var a, b NodeID
	a[31] = 1
	b[31] = 2

	require.True(a.Less(b))
	require.False(b.Less(a))
	require.False(a.Less(a))
}

func TestNodeIDEmpty(t *testing.T) {
	require := require.New(t)

	require.True(Empty.IsEmpty())

	id := GenerateTestID()
	require.False(id.IsEmpty())
}

func TestNodeIDString(t *testing.T) {
	require := require.New(t)

	id := GenerateTestID()
	require.Len(id.String(), Len*2)
}
