package erasure

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
	"lukechampine.com/blake3"
)

var ErrTooFewShards = errors.New("not enough shards to reconstruct data")

// Coder wraps a Reed-Solomon codec with fixed (k, m) parameters: k data
// shards plus m parity shards, any k of which reconstruct the original.
type Coder struct {
	k   int
	m   int
	enc reedsolomon.Encoder
}

func NewCoder(k, m int) (*Coder, error) {
	if k <= 0 || m <= 0 {
		return nil, fmt.Errorf("invalid erasure parameters k=%d m=%d", k, m)
	}
	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return nil, fmt.Errorf("creating reed-solomon encoder (%d,%d): %w", k, m, err)
	}
	return &Coder{k: k, m: m, enc: enc}, nil
}

func (c *Coder) DataShards() int   { return c.k }
func (c *Coder) ParityShards() int { return c.m }
func (c *Coder) TotalShards() int  { return c.k + c.m }

// Split encodes data into k+m equally sized shards. The last data shard is
// zero-padded; callers that need the exact length back must remember it.
func (c *Coder) Split(data []byte) ([][]byte, error) {
	shards, err := c.enc.Split(data)
	if err != nil {
		return nil, fmt.Errorf("splitting %d bytes into %d shards: %w", len(data), c.k+c.m, err)
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("encoding parity shards: %w", err)
	}
	return shards, nil
}

// Reconstruct fills in the missing (nil) shards in place. It needs at least
// k present shards; with fewer it returns ErrTooFewShards.
func (c *Coder) Reconstruct(shards [][]byte) error {
	if len(shards) != c.k+c.m {
		return fmt.Errorf("expected %d shards, got %d", c.k+c.m, len(shards))
	}

	present := 0
	for _, s := range shards {
		if len(s) > 0 {
			present++
		}
	}
	if present < c.k {
		return fmt.Errorf("%w: %d of %d present, need %d", ErrTooFewShards, present, c.k+c.m, c.k)
	}

	if err := c.enc.Reconstruct(shards); err != nil {
		return fmt.Errorf("reconstructing shards: %w", err)
	}
	return nil
}

// Join reassembles the original data from the k data shards.
func (c *Coder) Join(shards [][]byte, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	for i := 0; i < c.k; i++ {
		out = append(out, shards[i]...)
	}
	if len(out) < size {
		return nil, fmt.Errorf("joined shards hold %d bytes, expected %d", len(out), size)
	}
	return out[:size], nil
}

// ShardHashes returns the blake3 commitment for every shard. Stored in the
// manifest so a repaired shard can be verified without the original data.
func ShardHashes(shards [][]byte) [][32]byte {
	hashes := make([][32]byte, len(shards))
	for i, s := range shards {
		hashes[i] = blake3.Sum256(s)
	}
	return hashes
}
