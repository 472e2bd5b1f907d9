package chunkstore

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// PoseidonCodec tags CIDs whose digest is a poseidon field element rather
// than a blake3 multihash. Inclusion proofs against such roots are meant
// for zero-knowledge verification, and callers pick the proof system by
// inspecting the codec alone.
const PoseidonCodec = 0x4001

// ChunkCid derives the content identifier for raw chunk bytes: blake3
// multihash under the raw codec.
func ChunkCid(data []byte) (cid.Cid, error) {
	digest, err := mh.Sum(data, mh.BLAKE3, 32)
	if err != nil {
		return cid.Undef, fmt.Errorf("hashing chunk: %w", err)
	}
	return cid.NewCidV1(cid.Raw, digest), nil
}

// ManifestCid derives the content identifier for canonical manifest JSON.
func ManifestCid(encoded []byte) (cid.Cid, error) {
	digest, err := mh.Sum(encoded, mh.BLAKE3, 32)
	if err != nil {
		return cid.Undef, fmt.Errorf("hashing manifest: %w", err)
	}
	return cid.NewCidV1(cid.DagJSON, digest), nil
}

// PoseidonCid wraps a 32-byte poseidon digest in an identity multihash so
// the element survives the CID round trip bit for bit.
func PoseidonCid(element [32]byte) (cid.Cid, error) {
	digest, err := mh.Sum(element[:], mh.IDENTITY, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("wrapping poseidon digest: %w", err)
	}
	return cid.NewCidV1(PoseidonCodec, digest), nil
}

// IsCircuitFriendly reports whether proofs against this CID are meant for
// zero-knowledge verification.
func IsCircuitFriendly(c cid.Cid) bool {
	return c.Prefix().Codec == PoseidonCodec
}
