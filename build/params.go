package build

import (
	"time"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

// Protocol parameters. These are consensus-relevant: every scheduler and
// verifier on a network must agree on them.

// EpochDuration is the wall-clock length of one proof epoch.
const EpochDuration = 300 * time.Second

// EpochsPerMonth converts deal durations (months) into proof epochs.
const EpochsPerMonth = 30 * 24 * 12 // 300s epochs

// ChallengeWindow is how long a provider has to answer a challenge.
const ChallengeWindow = 30 * time.Minute

// ChallengesPerDeal is the number of sampled chunk indices per deal per
// epoch.
const ChallengesPerDeal = 3

// SlashNum/SlashDenom: fraction of stake forfeited on a single missed
// challenge.
const (
	SlashNum   = 1
	SlashDenom = 10
)

// SealChallengeIntervalEpochs is how often the scheduler issues a
// possession challenge against each active seal.
const SealChallengeIntervalEpochs = 10

// ConsecutiveMissLimit missed challenges in a row forfeit the full stake
// and terminate the seal.
const ConsecutiveMissLimit = 3

// RepairTimeout is how long a repair bounty stays claimable before the
// escrow is refunded.
const RepairTimeout = 24 * time.Hour

// RepairBountyEpochs sizes a repair bounty in epochs of the deal's price.
const RepairBountyEpochs = 100

// BaseSlaCollateral is the Bronze-tier SLA collateral. Higher tiers scale
// it by the tier's collateral multiplier.
var BaseSlaCollateral = abi.NewTokenAmount(100_000)

// SlaViolationFactor: a latency sample above factor x tier threshold is a
// violation.
const SlaViolationFactor = 2

// SlaViolationLimit violations slash the SLA collateral.
const SlaViolationLimit = 3

// SlaLatencySampleCap bounds the per-SLA sample history kept on ledger.
const SlaLatencySampleCap = 64

// SlaSlashNum/SlaSlashDenom: fraction of SLA collateral burned on the
// final violation.
const (
	SlaSlashNum   = 1
	SlaSlashDenom = 2
)

// MinProviderStake is the stake floor for provider registration.
var MinProviderStake = abi.NewTokenAmount(1_000_000)

// One GiB, used to convert deal sizes into GB-month pricing.
const BytesPerGB = 1 << 30

// PriceFloor and PriceCeiling bound the governance-set protocol fee rate.
var (
	PriceFloor   = abi.NewTokenAmount(1)
	PriceCeiling = big.Mul(abi.NewTokenAmount(1_000_000), abi.NewTokenAmount(1_000_000))
)

// DefaultPricePerGBMonth applies until governance sets a price.
var DefaultPricePerGBMonth = abi.NewTokenAmount(10_000)
