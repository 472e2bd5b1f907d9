// Package svdbevents carries the typed events the ledger-facing components
// emit for off-chain indexing. Every state transition that matters to an
// external observer (deal lifecycle, proofs, slashes, repairs, SLA
// violations) is published on a Bus.
package svdbevents

import (
	"errors"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/google/uuid"
	"github.com/hannahhoward/go-pubsub"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("events")

type Code int

const (
	DealCreated Code = iota
	RewardStreamed
	DealCancelled
	DealExpired
	SealRegistered
	DealChallenged
	SealChallenged
	ProofAccepted
	ProofFailed
	ChallengeMissed
	ProviderSlashed
	SealTerminated
	RepairTaskCreated
	RepairCompleted
	RepairRefunded
	OfferPublished
	SlaStarted
	SlaViolated
	SlaSlashed
	PriceChanged
)

var codeNames = map[Code]string{
	DealCreated:       "DealCreated",
	RewardStreamed:    "RewardStreamed",
	DealCancelled:     "DealCancelled",
	DealExpired:       "DealExpired",
	SealRegistered:    "SealRegistered",
	DealChallenged:    "DealChallenged",
	SealChallenged:    "SealChallenged",
	ProofAccepted:     "ProofAccepted",
	ProofFailed:       "ProofFailed",
	ChallengeMissed:   "ChallengeMissed",
	ProviderSlashed:   "ProviderSlashed",
	SealTerminated:    "SealTerminated",
	RepairTaskCreated: "RepairTaskCreated",
	RepairCompleted:   "RepairCompleted",
	RepairRefunded:    "RepairRefunded",
	OfferPublished:    "OfferPublished",
	SlaStarted:        "SlaStarted",
	SlaViolated:       "SlaViolated",
	SlaSlashed:        "SlaSlashed",
	PriceChanged:      "PriceChanged",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// Event is one ledger state transition. Only the fields that apply to the
// event code are set.
type Event struct {
	Code      Code
	Timestamp time.Time

	DealID      uuid.UUID
	ChallengeID uuid.UUID
	TaskID      uuid.UUID
	SlaID       uuid.UUID

	ManifestRoot cid.Cid
	Provider     address.Address
	Client       address.Address
	Amount       abi.TokenAmount
	Epoch        abi.ChainEpoch

	// free-form detail, eg the reason a proof failed
	Message string
}

// Subscriber is a callback registered to receive events.
type Subscriber func(evt Event)

type Unsubscribe func()

// Bus fans events out to subscribers.
type Bus struct {
	ps *pubsub.PubSub
}

func NewBus() *Bus {
	return &Bus{ps: pubsub.New(dispatcher)}
}

func dispatcher(evt pubsub.Event, subscriberFn pubsub.SubscriberFn) error {
	e, ok := evt.(Event)
	if !ok {
		return errors.New("wrong type of event")
	}
	cb, ok := subscriberFn.(Subscriber)
	if !ok {
		return errors.New("wrong type of subscriber function")
	}
	cb(e)
	return nil
}

func (b *Bus) Subscribe(subscriber Subscriber) Unsubscribe {
	return Unsubscribe(b.ps.Subscribe(subscriber))
}

func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if err := b.ps.Publish(evt); err != nil {
		log.Warnf("err publishing %s event: %s", evt.Code, err.Error())
	}
}
