package chunkstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("chunkstore")

var ErrNotFound = errors.New("not found")

// Store is the content-addressed chunk and manifest store. Chunks are
// immutable byte ranges keyed by CID; manifests are immutable JSON
// documents keyed by their own content hash.
type Store struct {
	ds datastore.Batching
}

func NewStore(ds datastore.Batching) *Store {
	return &Store{ds: ds}
}

func chunkKey(c cid.Cid) datastore.Key {
	return datastore.NewKey("/chunks/" + c.Hash().B58String())
}

func manifestKey(c cid.Cid) datastore.Key {
	return datastore.NewKey("/manifests/" + c.Hash().B58String())
}

// Put stores chunk bytes and returns their CID. Re-putting the same bytes
// is a no-op that yields the same CID.
func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	c, err := ChunkCid(data)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.ds.Put(ctx, chunkKey(c), data); err != nil {
		return cid.Undef, fmt.Errorf("storing chunk %s: %w", c, err)
	}
	return c, nil
}

func (s *Store) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	data, err := s.ds.Get(ctx, chunkKey(c))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, fmt.Errorf("chunk %s: %w", c, ErrNotFound)
		}
		return nil, fmt.Errorf("reading chunk %s: %w", c, err)
	}
	return data, nil
}

func (s *Store) Has(ctx context.Context, c cid.Cid) (bool, error) {
	return s.ds.Has(ctx, chunkKey(c))
}

func (s *Store) Delete(ctx context.Context, c cid.Cid) error {
	return s.ds.Delete(ctx, chunkKey(c))
}

type ChunkStat struct {
	Cid         cid.Cid
	StoredBytes uint64
}

func (s *Store) Stat(ctx context.Context, c cid.Cid) (ChunkStat, error) {
	sz, err := s.ds.GetSize(ctx, chunkKey(c))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return ChunkStat{}, fmt.Errorf("chunk %s: %w", c, ErrNotFound)
		}
		return ChunkStat{}, err
	}
	return ChunkStat{Cid: c, StoredBytes: uint64(sz)}, nil
}

// PutManifest content-addresses the manifest and stores it. The returned
// CID is the manifest root all deals and proofs reference.
func (s *Store) PutManifest(ctx context.Context, m *Manifest) (cid.Cid, error) {
	encoded, err := m.Encode()
	if err != nil {
		return cid.Undef, fmt.Errorf("encoding manifest: %w", err)
	}
	root, err := ManifestCid(encoded)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.ds.Put(ctx, manifestKey(root), encoded); err != nil {
		return cid.Undef, fmt.Errorf("storing manifest %s: %w", root, err)
	}
	log.Debugw("stored manifest", "root", root, "chunks", len(m.Chunks), "size", m.TotalSize)
	return root, nil
}

func (s *Store) GetManifest(ctx context.Context, root cid.Cid) (*Manifest, error) {
	encoded, err := s.ds.Get(ctx, manifestKey(root))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return nil, fmt.Errorf("manifest %s: %w", root, ErrNotFound)
		}
		return nil, fmt.Errorf("reading manifest %s: %w", root, err)
	}
	return DecodeManifest(encoded)
}

// AddDataParams tunes ingest. Zero values fall back to the defaults.
type AddDataParams struct {
	ChunkSize    uint64
	DataShards   int
	ParityShards int
	Envelope     *EncryptionEnvelope
}

// AddData ingests a payload: splits it into chunks, stores them, computes
// both proof roots and the erasure commitment, and stores the manifest.
func (s *Store) AddData(ctx context.Context, data []byte, params AddDataParams) (cid.Cid, *Manifest, error) {
	if len(data) == 0 {
		return cid.Undef, nil, errors.New("refusing to ingest empty payload")
	}

	chunkSize := params.ChunkSize
	if chunkSize == 0 {
		chunkSize = ChunkSize
	}
	k := params.DataShards
	if k == 0 {
		k = DefaultDataShards
	}
	m := params.ParityShards
	if m == 0 {
		m = DefaultParityShards
	}

	var chunks []cid.Cid
	for off := uint64(0); off < uint64(len(data)); off += chunkSize {
		end := off + chunkSize
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		c, err := s.Put(ctx, data[off:end])
		if err != nil {
			return cid.Undef, nil, err
		}
		chunks = append(chunks, c)
	}

	manifest := &Manifest{
		Chunks:       chunks,
		ChunkSize:    chunkSize,
		TotalSize:    uint64(len(data)),
		DataShards:   k,
		ParityShards: m,
		Envelope:     params.Envelope,
	}

	merkleRoot, poseidonRoot, err := buildRoots(manifest.ChunkLeaves())
	if err != nil {
		return cid.Undef, nil, err
	}
	manifest.MerkleRoot = merkleRoot
	manifest.PoseidonRoot = poseidonRoot

	shardHashes, err := shardCommitment(data, k, m)
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("computing erasure commitment: %w", err)
	}
	manifest.ShardHashes = shardHashes

	root, err := s.PutManifest(ctx, manifest)
	if err != nil {
		return cid.Undef, nil, err
	}
	return root, manifest, nil
}
