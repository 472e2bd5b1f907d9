package merkletree

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrMalformedBatchInput is returned by VerifyBatch when the parallel input
// arrays don't have matching lengths. Batch inputs come from untrusted
// callers, so the shape is validated before anything is indexed.
var ErrMalformedBatchInput = errors.New("malformed batch input: array length mismatch")

var ErrInvalidProof = errors.New("invalid merkle proof")

// PairHasher combines two sibling digests into a parent digest. The sha256
// hasher is used for bulk addressing; the poseidon hasher produces roots
// that are cheap to open inside an arithmetic circuit.
type PairHasher interface {
	Pair(left, right [32]byte) [32]byte
}

type Sha256Hasher struct{}

func (Sha256Hasher) Pair(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Proof opens a single leaf against a root. Branch holds the sibling
// digests from the leaf up to (but excluding) the root.
type Proof struct {
	Leaf   [32]byte
	Index  uint64
	Branch [][32]byte
}

// Tree is a full in-memory merkle tree over a fixed set of leaves.
// Odd nodes at any level are paired with a copy of themselves, so every
// proof branch has the same length.
type Tree struct {
	hasher PairHasher
	levels [][][32]byte
}

func New(hasher PairHasher, leaves [][32]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errors.New("merkle tree requires at least one leaf")
	}

	levels := [][][32]byte{append([][32]byte{}, leaves...)}
	for len(levels[len(levels)-1]) > 1 {
		prev := levels[len(levels)-1]
		next := make([][32]byte, 0, (len(prev)+1)/2)
		for i := 0; i < len(prev); i += 2 {
			left := prev[i]
			right := left
			if i+1 < len(prev) {
				right = prev[i+1]
			}
			next = append(next, hasher.Pair(left, right))
		}
		levels = append(levels, next)
	}

	return &Tree{hasher: hasher, levels: levels}, nil
}

func (t *Tree) Root() [32]byte {
	return t.levels[len(t.levels)-1][0]
}

func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Prove builds the inclusion proof for the leaf at index.
func (t *Tree) Prove(index uint64) (Proof, error) {
	if index >= uint64(len(t.levels[0])) {
		return Proof{}, fmt.Errorf("leaf index %d out of range (%d leaves)", index, len(t.levels[0]))
	}

	proof := Proof{
		Leaf:  t.levels[0][index],
		Index: index,
	}

	idx := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= uint64(len(level)) {
			// odd node pairs with itself
			sibling = idx
		}
		proof.Branch = append(proof.Branch, level[sibling])
		idx /= 2
	}

	return proof, nil
}

// Verify recomputes the root from the proof and compares. The index parity
// at each level decides the hashing order: an even index is a left child.
func Verify(hasher PairHasher, root [32]byte, p Proof) bool {
	current := p.Leaf
	idx := p.Index
	for _, sibling := range p.Branch {
		if idx%2 == 0 {
			current = hasher.Pair(current, sibling)
		} else {
			current = hasher.Pair(sibling, current)
		}
		idx /= 2
	}
	return current == root
}

// VerifyBatch verifies several openings against the same root in one call.
// The input arrays are parallel; a length mismatch fails with
// ErrMalformedBatchInput before any proof is touched.
func VerifyBatch(hasher PairHasher, root [32]byte, leaves [][32]byte, indexes []uint64, branches [][][32]byte) error {
	if len(leaves) != len(indexes) || len(leaves) != len(branches) {
		return fmt.Errorf("%w: leaves=%d indexes=%d branches=%d",
			ErrMalformedBatchInput, len(leaves), len(indexes), len(branches))
	}

	for i := range leaves {
		p := Proof{Leaf: leaves[i], Index: indexes[i], Branch: branches[i]}
		if !Verify(hasher, root, p) {
			return fmt.Errorf("%w: opening %d (leaf index %d)", ErrInvalidProof, i, indexes[i])
		}
	}
	return nil
}
