// Package types holds the ledger entities shared between the deal ledger,
// the proof engine, the marketplace and their persistence layer.
package types

import (
	"fmt"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"lukechampine.com/blake3"
)

// Deal is an on-ledger storage agreement. Funds equal to
// price x size x months x replicas are locked in escrow at creation and
// stream out to providers one verified epoch at a time.
type Deal struct {
	ID        uuid.UUID
	CreatedAt time.Time

	Payer        address.Address
	ManifestRoot cid.Cid
	SizeBytes    uint64
	Replicas     int
	Months       int

	PricePerEpoch abi.TokenAmount
	Escrow        abi.TokenAmount
	Streamed      abi.TokenAmount
	Refunded      abi.TokenAmount

	// Nonce salts this deal's challenges so samples cannot be precomputed
	// across deals.
	Nonce []byte

	StartEpoch  abi.ChainEpoch
	TotalEpochs abi.ChainEpoch

	State DealState
	Err   string
}

// EndEpoch is the first epoch at which the deal is expired.
func (d *Deal) EndEpoch() abi.ChainEpoch {
	return d.StartEpoch + d.TotalEpochs
}

// Seal is a provider-specific commitment over a sealed replica. The
// commitment binds (root, randomness, provider), so a copy of another
// provider's replica proves nothing.
type Seal struct {
	Commitment   [32]byte
	ManifestRoot cid.Cid
	Provider     address.Address
	Randomness   []byte
	RegisteredAt time.Time

	ConsecutiveMisses int
	State             SealState
}

// SealCommitment computes the commitment hash for a replica encoding.
func SealCommitment(root cid.Cid, randomness []byte, provider address.Address) [32]byte {
	h := blake3.New(32, nil)
	h.Write(root.Bytes())
	h.Write(randomness)
	h.Write(provider.Bytes())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Challenge is a single timed proof request against a deal or a seal.
type Challenge struct {
	ID   uuid.UUID
	Type ChallengeType

	// MerkleSample target
	DealID     uuid.UUID
	ChunkIndex uint64

	// PoRepSeal target
	SealCommitment [32]byte

	Provider address.Address
	Epoch    abi.ChainEpoch
	Salt     []byte

	IssuedAt time.Time
	Deadline time.Time

	State      ChallengeState
	AnsweredAt time.Time
}

func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.Deadline)
}

// Proof is a response to a challenge.
type Proof struct {
	Type ProofType

	// MerkleSample payload
	Leaf   [32]byte
	Index  uint64
	Branch [][32]byte

	// PoRepSeal payload: either the recomputed commitment or a succinct
	// artifact produced by a prover worker.
	Commitment [32]byte
	Artifact   []byte
}

type ProofType int

const (
	ProofMerkleSample ProofType = iota
	ProofPoRepSeal
	ProofBatchSnark
)

var proofTypeNames = map[ProofType]string{
	ProofMerkleSample: "MerkleSample",
	ProofPoRepSeal:    "PoRepSeal",
	ProofBatchSnark:   "BatchSnark",
}

func (t ProofType) String() string {
	return proofTypeNames[t]
}

// Provider is a registered storage or GPU node with stake at risk.
type Provider struct {
	Addr      address.Address
	Stake     abi.TokenAmount
	Region    string
	GPU       bool
	Bandwidth uint64 // Mbps

	// Reputation is bounded to [0, MaxReputation].
	Reputation     int64
	ProofsAccepted int64
	ProofsMissed   int64

	Active    bool
	CreatedAt time.Time
}

const MaxReputation = 1000

// Offer is a provider's published ask in the marketplace.
type Offer struct {
	Provider          address.Address
	Region            string
	PricePerGBMonth   abi.TokenAmount
	Tier              SlaTier
	CapacityBytes     uint64
	GPU               bool
	ExpectedLatencyMs uint64
	UpdatedAt         time.Time
}

// SlaTier is a latency service class with associated collateral weight.
type SlaTier int

const (
	TierBronze SlaTier = iota
	TierSilver
	TierGold
	TierPlatinum
)

var tierNames = map[SlaTier]string{
	TierBronze:   "Bronze",
	TierSilver:   "Silver",
	TierGold:     "Gold",
	TierPlatinum: "Platinum",
}

func (t SlaTier) String() string {
	return tierNames[t]
}

func SlaTierFromString(str string) (SlaTier, error) {
	for t, name := range tierNames {
		if name == str {
			return t, nil
		}
	}
	return TierBronze, fmt.Errorf("unrecognized SLA tier %s", str)
}

// LatencyThresholdMs is the tier's target retrieval latency. A sample
// above twice this threshold counts as a violation.
func (t SlaTier) LatencyThresholdMs() uint64 {
	switch t {
	case TierPlatinum:
		return 50
	case TierGold:
		return 150
	case TierSilver:
		return 500
	default:
		return 2000
	}
}

// CollateralMultiplier scales the base SLA collateral by tier.
func (t SlaTier) CollateralMultiplier() int64 {
	switch t {
	case TierPlatinum:
		return 8
	case TierGold:
		return 4
	case TierSilver:
		return 2
	default:
		return 1
	}
}

// SLA is a client-provider tier agreement for one manifest.
type SLA struct {
	ID           uuid.UUID
	Client       address.Address
	Provider     address.Address
	ManifestRoot cid.Cid
	Tier         SlaTier
	Collateral   abi.TokenAmount

	Violations int
	// LatencySamples keeps the most recent samples only; the on-ledger
	// record must not grow without bound.
	LatencySamples []uint64

	State     SlaState
	StartedAt time.Time
}

// RepairTask is a bounty for re-materializing one lost shard.
type RepairTask struct {
	ID           uuid.UUID
	ManifestRoot cid.Cid
	ShardIndex   int
	Bounty       abi.TokenAmount
	Payer        address.Address

	CreatedAt time.Time
	Deadline  time.Time

	State  RepairState
	Winner address.Address
}
