package types

import "fmt"

// DealState is the lifecycle state of a storage deal.
type DealState int

const (
	DealActive DealState = iota
	DealExpired
	DealCancelled
)

var dealStateNames = map[DealState]string{
	DealActive:    "Active",
	DealExpired:   "Expired",
	DealCancelled: "Cancelled",
}

func (s DealState) String() string {
	return dealStateNames[s]
}

func DealStateFromString(str string) (DealState, error) {
	for s, name := range dealStateNames {
		if name == str {
			return s, nil
		}
	}
	return DealActive, fmt.Errorf("unrecognized deal state %s", str)
}

// ChallengeState: a challenge has exactly one terminal outcome.
type ChallengeState int

const (
	ChallengeOpen ChallengeState = iota
	ChallengeAnswered
	ChallengeMissed
)

var challengeStateNames = map[ChallengeState]string{
	ChallengeOpen:     "Open",
	ChallengeAnswered: "Answered",
	ChallengeMissed:   "Missed",
}

func (s ChallengeState) String() string {
	return challengeStateNames[s]
}

func ChallengeStateFromString(str string) (ChallengeState, error) {
	for s, name := range challengeStateNames {
		if name == str {
			return s, nil
		}
	}
	return ChallengeOpen, fmt.Errorf("unrecognized challenge state %s", str)
}

type ChallengeType int

const (
	// ChallengeMerkleSample asks for a salted merkle opening of a deal's
	// manifest.
	ChallengeMerkleSample ChallengeType = iota
	// ChallengePoRepSeal asks a provider to re-prove possession of its
	// sealed replica.
	ChallengePoRepSeal
)

var challengeTypeNames = map[ChallengeType]string{
	ChallengeMerkleSample: "MerkleSample",
	ChallengePoRepSeal:    "PoRepSeal",
}

func (t ChallengeType) String() string {
	return challengeTypeNames[t]
}

func ChallengeTypeFromString(str string) (ChallengeType, error) {
	for t, name := range challengeTypeNames {
		if name == str {
			return t, nil
		}
	}
	return ChallengeMerkleSample, fmt.Errorf("unrecognized challenge type %s", str)
}

// SealState tracks a registered seal until it is terminated by slashing or
// deal expiry.
type SealState int

const (
	SealActive SealState = iota
	SealTerminated
)

var sealStateNames = map[SealState]string{
	SealActive:     "Active",
	SealTerminated: "Terminated",
}

func (s SealState) String() string {
	return sealStateNames[s]
}

func SealStateFromString(str string) (SealState, error) {
	for s, name := range sealStateNames {
		if name == str {
			return s, nil
		}
	}
	return SealActive, fmt.Errorf("unrecognized seal state %s", str)
}

// SlaState is the lifecycle of a client-provider SLA.
type SlaState int

const (
	SlaActive SlaState = iota
	SlaSlashed
	SlaExpired
)

var slaStateNames = map[SlaState]string{
	SlaActive:  "Active",
	SlaSlashed: "Slashed",
	SlaExpired: "Expired",
}

func (s SlaState) String() string {
	return slaStateNames[s]
}

func SlaStateFromString(str string) (SlaState, error) {
	for s, name := range slaStateNames {
		if name == str {
			return s, nil
		}
	}
	return SlaActive, fmt.Errorf("unrecognized SLA state %s", str)
}

// RepairState is the lifecycle of a shard-loss bounty.
type RepairState int

const (
	RepairOpen RepairState = iota
	RepairCompleted
	RepairRefunded
)

var repairStateNames = map[RepairState]string{
	RepairOpen:      "Open",
	RepairCompleted: "Completed",
	RepairRefunded:  "Refunded",
}

func (s RepairState) String() string {
	return repairStateNames[s]
}

func RepairStateFromString(str string) (RepairState, error) {
	for s, name := range repairStateNames {
		if name == str {
			return s, nil
		}
	}
	return RepairOpen, fmt.Errorf("unrecognized repair state %s", str)
}
