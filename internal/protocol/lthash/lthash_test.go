package lthash_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssouza/wamd/internal/crypto"
	"github.com/ssouza/wamd/internal/protocol/lthash"
)

func TestAddSubtract_Inverse(t *testing.T) {
	acc := make([]byte, lthash.Size)
	zero := make([]byte, lthash.Size)
	item := crypto.Random(32)

	require.NoError(t, lthash.Add(acc, item))
	require.NotEqual(t, zero, acc)
	require.NoError(t, lthash.Subtract(acc, item))
	require.Equal(t, zero, acc)
}

func TestAdd_OrderIndependent(t *testing.T) {
	a := crypto.Random(32)
	b := crypto.Random(32)
	c := crypto.Random(32)

	acc1 := make([]byte, lthash.Size)
	require.NoError(t, lthash.Add(acc1, a, b, c))

	acc2 := make([]byte, lthash.Size)
	require.NoError(t, lthash.Add(acc2, c, a))
	require.NoError(t, lthash.Add(acc2, b))

	require.Equal(t, acc1, acc2)
}

func TestMix_EqualsSubtractThenAdd(t *testing.T) {
	old := crypto.Random(32)
	new1 := crypto.Random(32)

	acc1 := make([]byte, lthash.Size)
	require.NoError(t, lthash.Add(acc1, old))
	require.NoError(t, lthash.Mix(acc1, [][]byte{old}, [][]byte{new1}))

	acc2 := make([]byte, lthash.Size)
	require.NoError(t, lthash.Add(acc2, new1))

	require.Equal(t, acc2, acc1)
}

func TestHistoryIndependence(t *testing.T) {
	// Two different SET/REMOVE sequences converging on the same live
	// set must converge on the same hash.
	a := crypto.Random(32)
	b := crypto.Random(32)
	c := crypto.Random(32)

	acc1 := make([]byte, lthash.Size)
	require.NoError(t, lthash.Add(acc1, a))
	require.NoError(t, lthash.Add(acc1, b))
	require.NoError(t, lthash.Subtract(acc1, a))
	require.NoError(t, lthash.Add(acc1, c))

	acc2 := make([]byte, lthash.Size)
	require.NoError(t, lthash.Add(acc2, c, b))

	require.Equal(t, acc2, acc1)
}
