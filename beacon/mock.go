package beacon

import (
	"context"
	"encoding/binary"

	"github.com/filecoin-project/go-state-types/abi"
	"lukechampine.com/blake3"
)

// MockBeacon maps epochs 1:1 to rounds and derives entries
// deterministically from the round number. For tests and devnets only.
type MockBeacon struct{}

var _ RandomBeacon = (*MockBeacon)(nil)

func NewMockBeacon() *MockBeacon {
	return &MockBeacon{}
}

func (mb *MockBeacon) Entry(ctx context.Context, round uint64) (Entry, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], round)
	digest := blake3.Sum256(buf[:])
	return Entry{Round: round, Data: digest[:]}, nil
}

func (mb *MockBeacon) MaxBeaconRoundForEpoch(epoch abi.ChainEpoch) uint64 {
	if epoch < 1 {
		return 1
	}
	return uint64(epoch)
}
