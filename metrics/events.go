package metrics

import (
	"context"

	"go.opencensus.io/stats"

	"github.com/svdb-project/svdb/svdbevents"
)

// ObserveBus subscribes the metric counters to the event bus, so every
// ledger state transition is counted without instrumenting each caller.
func ObserveBus(bus *svdbevents.Bus) svdbevents.Unsubscribe {
	ctx := context.Background()
	return bus.Subscribe(func(evt svdbevents.Event) {
		switch evt.Code {
		case svdbevents.DealCreated:
			stats.Record(ctx, DealsCreated.M(1))
		case svdbevents.DealExpired:
			stats.Record(ctx, DealsExpired.M(1))
		case svdbevents.DealCancelled:
			stats.Record(ctx, DealsCancelled.M(1))
		case svdbevents.RewardStreamed:
			stats.Record(ctx, RewardsStreamed.M(1))
		case svdbevents.SealRegistered:
			stats.Record(ctx, SealsRegistered.M(1))
		case svdbevents.SealTerminated:
			stats.Record(ctx, SealsTerminated.M(1))
		case svdbevents.DealChallenged, svdbevents.SealChallenged:
			stats.Record(ctx, ChallengesIssued.M(1))
		case svdbevents.ProofAccepted:
			stats.Record(ctx, ProofsAccepted.M(1))
		case svdbevents.ProofFailed:
			stats.Record(ctx, ProofsFailed.M(1))
		case svdbevents.ChallengeMissed:
			stats.Record(ctx, ChallengesMissed.M(1))
		case svdbevents.ProviderSlashed:
			stats.Record(ctx, ProvidersSlashed.M(1))
		case svdbevents.RepairTaskCreated:
			stats.Record(ctx, RepairTasksOpened.M(1))
		case svdbevents.RepairCompleted:
			stats.Record(ctx, RepairTasksCompleted.M(1))
		case svdbevents.RepairRefunded:
			stats.Record(ctx, RepairTasksRefunded.M(1))
		case svdbevents.OfferPublished:
			stats.Record(ctx, OffersPublished.M(1))
		case svdbevents.SlaStarted:
			stats.Record(ctx, SlasStarted.M(1))
		case svdbevents.SlaViolated:
			stats.Record(ctx, SlaViolations.M(1))
		case svdbevents.SlaSlashed:
			stats.Record(ctx, SlasSlashed.M(1))
		}
	})
}
