package merkletree

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"
)

func testLeaves(n int) [][32]byte {
	leaves := make([][32]byte, n)
	for i := 0; i < n; i++ {
		leaves[i] = blake3.Sum256([]byte(fmt.Sprintf("chunk-%d", i)))
	}
	return leaves
}

func TestRoundTrip(t *testing.T) {
	hasher := Sha256Hasher{}

	// cover power-of-two, odd and single-leaf shapes
	for _, n := range []int{1, 2, 3, 7, 8, 13} {
		t.Run(fmt.Sprintf("%d leaves", n), func(t *testing.T) {
			leaves := testLeaves(n)
			tree, err := New(hasher, leaves)
			require.NoError(t, err)
			root := tree.Root()

			for i := 0; i < n; i++ {
				proof, err := tree.Prove(uint64(i))
				require.NoError(t, err)
				require.True(t, Verify(hasher, root, proof), "leaf %d", i)
			}
		})
	}
}

func TestCorruptedProofFails(t *testing.T) {
	hasher := Sha256Hasher{}
	leaves := testLeaves(8)
	tree, err := New(hasher, leaves)
	require.NoError(t, err)
	root := tree.Root()

	proof, err := tree.Prove(3)
	require.NoError(t, err)

	// flip one byte of the leaf
	bad := proof
	bad.Leaf[0] ^= 0x01
	require.False(t, Verify(hasher, root, bad))

	// flip one byte of each branch element in turn
	for i := range proof.Branch {
		bad := proof
		bad.Branch = append([][32]byte{}, proof.Branch...)
		bad.Branch[i][7] ^= 0x80
		require.False(t, Verify(hasher, root, bad), "branch element %d", i)
	}

	// wrong index changes the hashing order
	bad = proof
	bad.Index = 4
	require.False(t, Verify(hasher, root, bad))
}

func TestProveOutOfRange(t *testing.T) {
	tree, err := New(Sha256Hasher{}, testLeaves(4))
	require.NoError(t, err)
	_, err = tree.Prove(4)
	require.Error(t, err)
}

func TestVerifyBatch(t *testing.T) {
	hasher := Sha256Hasher{}
	leaves := testLeaves(8)
	tree, err := New(hasher, leaves)
	require.NoError(t, err)
	root := tree.Root()

	var ls [][32]byte
	var idxs []uint64
	var branches [][][32]byte
	for _, i := range []uint64{0, 3, 7} {
		p, err := tree.Prove(i)
		require.NoError(t, err)
		ls = append(ls, p.Leaf)
		idxs = append(idxs, p.Index)
		branches = append(branches, p.Branch)
	}

	require.NoError(t, VerifyBatch(hasher, root, ls, idxs, branches))

	// mismatched array lengths must be rejected up front
	err = VerifyBatch(hasher, root, ls, idxs[:2], branches)
	require.ErrorIs(t, err, ErrMalformedBatchInput)

	err = VerifyBatch(hasher, root, ls, idxs, branches[:1])
	require.ErrorIs(t, err, ErrMalformedBatchInput)

	// one bad opening fails the batch
	ls[1][0] ^= 0xff
	err = VerifyBatch(hasher, root, ls, idxs, branches)
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestPoseidonTree(t *testing.T) {
	hasher, err := NewPoseidonHasher()
	require.NoError(t, err)

	leaves := testLeaves(4)
	tree, err := New(hasher, leaves)
	require.NoError(t, err)
	root := tree.Root()

	proof, err := tree.Prove(2)
	require.NoError(t, err)
	require.True(t, Verify(hasher, root, proof))

	proof.Leaf[0] ^= 0x01
	require.False(t, Verify(hasher, root, proof))

	// distinct hasher family yields a distinct root
	shaTree, err := New(Sha256Hasher{}, leaves)
	require.NoError(t, err)
	require.NotEqual(t, shaTree.Root(), root)
}
