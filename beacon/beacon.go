// Package beacon provides the public randomness used to salt storage
// challenges. Challenge salts must be unpredictable before the epoch
// starts, so they are drawn from a drand network rather than generated
// locally.
package beacon

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
)

// Entry is one round of beacon randomness.
type Entry struct {
	Round uint64
	Data  []byte
}

// RandomBeacon returns verifiable random entries by round number.
type RandomBeacon interface {
	Entry(ctx context.Context, round uint64) (Entry, error)
	// MaxBeaconRoundForEpoch maps a proof epoch to the latest beacon round
	// available at the epoch's start.
	MaxBeaconRoundForEpoch(epoch abi.ChainEpoch) uint64
}
