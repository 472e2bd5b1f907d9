package chunkstore

import (
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
	"lukechampine.com/blake3"

	"github.com/svdb-project/svdb/lib/erasure"
	"github.com/svdb-project/svdb/lib/merkletree"
)

// ChunkSize is the stripe size files are split into on ingest.
const ChunkSize = 8 << 20

// Default erasure parameters: 8 data shards + 2 parity shards.
const (
	DefaultDataShards   = 8
	DefaultParityShards = 2
)

// EncryptionEnvelope carries the parameters a client used to encrypt the
// payload before upload. The store never decrypts; it round-trips the
// envelope so a downloader can.
type EncryptionEnvelope struct {
	Algorithm string `json:"algorithm"`
	Salt      []byte `json:"salt,omitempty"`
	Nonce     []byte `json:"nonce,omitempty"`
	AAD       []byte `json:"aad,omitempty"`
}

// Manifest describes one stored file: its chunks in upload order, the
// merkle root all storage proofs anchor to, and the erasure-coding
// commitment repairs are verified against. Manifests are immutable; the
// manifest CID is the hash of its canonical JSON.
type Manifest struct {
	Chunks    []cid.Cid `json:"chunks"`
	ChunkSize uint64    `json:"chunkSize"`
	TotalSize uint64    `json:"totalSize"`

	// MerkleRoot is the sha256 tree over blake3 chunk digests.
	MerkleRoot [32]byte `json:"merkleRoot"`
	// PoseidonRoot is the circuit-friendly tree over the same digests.
	PoseidonRoot [32]byte `json:"poseidonRoot"`

	DataShards   int        `json:"dataShards"`
	ParityShards int        `json:"parityShards"`
	ShardHashes  [][32]byte `json:"shardHashes"`
	// ShardProviders maps shard index to the provider holding it. Entries
	// may be empty until placement completes.
	ShardProviders []string `json:"shardProviders,omitempty"`

	Envelope *EncryptionEnvelope `json:"envelope,omitempty"`
}

func (m *Manifest) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}

// ChunkLeaves returns the blake3 digest of each chunk's CID multihash
// digest, in upload order. These are the merkle leaves every storage proof
// opens.
func (m *Manifest) ChunkLeaves() [][32]byte {
	leaves := make([][32]byte, len(m.Chunks))
	for i, c := range m.Chunks {
		leaves[i] = LeafForChunkCid(c)
	}
	return leaves
}

// LeafForChunkCid collapses a chunk CID into a fixed-size merkle leaf.
func LeafForChunkCid(c cid.Cid) [32]byte {
	return blake3.Sum256(c.Bytes())
}

// buildRoots computes both proof roots over the chunk leaves.
func buildRoots(leaves [][32]byte) (merkleRoot, poseidonRoot [32]byte, err error) {
	sha, err := merkletree.New(merkletree.Sha256Hasher{}, leaves)
	if err != nil {
		return merkleRoot, poseidonRoot, fmt.Errorf("building merkle tree: %w", err)
	}

	ph, err := merkletree.NewPoseidonHasher()
	if err != nil {
		return merkleRoot, poseidonRoot, fmt.Errorf("creating poseidon hasher: %w", err)
	}
	pos, err := merkletree.New(ph, leaves)
	if err != nil {
		return merkleRoot, poseidonRoot, fmt.Errorf("building poseidon tree: %w", err)
	}

	return sha.Root(), pos.Root(), nil
}

// shardCommitment erasure-codes the full payload and returns the per-shard
// hash list the repair auction verifies submissions against.
func shardCommitment(data []byte, k, m int) ([][32]byte, error) {
	coder, err := erasure.NewCoder(k, m)
	if err != nil {
		return nil, err
	}
	shards, err := coder.Split(data)
	if err != nil {
		return nil, err
	}
	return erasure.ShardHashes(shards), nil
}
