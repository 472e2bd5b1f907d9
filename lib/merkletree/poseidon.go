package merkletree

import (
	"math/big"

	"github.com/triplewz/poseidon"
	ff "github.com/triplewz/poseidon/bls12_381"
)

// PoseidonHasher pair-hashes with poseidon over BLS12-381, so inclusion
// proofs against its roots can be opened inside an arithmetic circuit.
// Digests are interpreted as big-endian integers and reduced into the
// scalar field.
type PoseidonHasher struct {
	cons *poseidon.PoseidonConst
}

func NewPoseidonHasher() (*PoseidonHasher, error) {
	// width 3 = two inputs plus capacity element
	cons, err := poseidon.GenPoseidonConstants(3)
	if err != nil {
		return nil, err
	}
	return &PoseidonHasher{cons: cons}, nil
}

func (h *PoseidonHasher) Pair(left, right [32]byte) [32]byte {
	a := new(big.Int).SetBytes(left[:])
	b := new(big.Int).SetBytes(right[:])

	digest, err := poseidon.Hash([]*big.Int{a, b}, h.cons, poseidon.OptimizedStatic)
	if err != nil {
		// GenPoseidonConstants fixed the width; Hash only fails on input
		// arity mismatch, which Pair cannot produce.
		panic(err)
	}

	return new(ff.Element).SetBigInt(digest).Bytes()
}
