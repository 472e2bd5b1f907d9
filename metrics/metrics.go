package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	rpcmetrics "github.com/filecoin-project/go-jsonrpc/metrics"
)

// Distribution
var defaultMillisecondsDistribution = view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 3000, 4000, 5000, 7500, 10000, 20000, 50000, 100000)

// Global Tags
var (
	Version, _ = tag.NewKey("version")
	Commit, _  = tag.NewKey("commit")

	ChallengeType, _ = tag.NewKey("challenge_type")
	ProofOutcome, _  = tag.NewKey("proof_outcome")
	SlaTier, _       = tag.NewKey("sla_tier")
	Endpoint, _      = tag.NewKey("endpoint")
	FailureType, _   = tag.NewKey("failure_type")
)

// Measures
var (
	SvdbInfo = stats.Int64("info", "Arbitrary counter to tag svdb info to", stats.UnitDimensionless)

	// deals
	DealsCreated      = stats.Int64("deal/created", "Counter of created deals", stats.UnitDimensionless)
	DealsExpired      = stats.Int64("deal/expired", "Counter of expired deals", stats.UnitDimensionless)
	DealsCancelled    = stats.Int64("deal/cancelled", "Counter of cancelled deals", stats.UnitDimensionless)
	RewardsStreamed   = stats.Int64("deal/rewards_streamed", "Counter of streamed epoch rewards", stats.UnitDimensionless)
	EscrowLockedBytes = stats.Int64("deal/size_bytes", "Size of created deals", stats.UnitBytes)

	// proofs
	ChallengesIssued      = stats.Int64("proof/challenges_issued", "Counter of issued challenges", stats.UnitDimensionless)
	ProofsAccepted        = stats.Int64("proof/accepted", "Counter of accepted proofs", stats.UnitDimensionless)
	ProofsFailed          = stats.Int64("proof/failed", "Counter of rejected proofs", stats.UnitDimensionless)
	ChallengesMissed      = stats.Int64("proof/missed", "Counter of challenges missed past their window", stats.UnitDimensionless)
	ProvidersSlashed      = stats.Int64("proof/slashes", "Counter of provider slashes", stats.UnitDimensionless)
	SealsRegistered       = stats.Int64("proof/seals_registered", "Counter of registered seals", stats.UnitDimensionless)
	SealsTerminated       = stats.Int64("proof/seals_terminated", "Counter of terminated seals", stats.UnitDimensionless)
	ProofVerifyDuration   = stats.Float64("proof/verify_ms", "Time spent verifying a proof", stats.UnitMilliseconds)
	ProverRequestDuration = stats.Float64("proof/prover_request_ms", "Time spent waiting on the prover worker", stats.UnitMilliseconds)

	// repair
	RepairTasksOpened    = stats.Int64("repair/tasks_opened", "Counter of opened repair tasks", stats.UnitDimensionless)
	RepairTasksCompleted = stats.Int64("repair/tasks_completed", "Counter of completed repair tasks", stats.UnitDimensionless)
	RepairTasksRefunded  = stats.Int64("repair/tasks_refunded", "Counter of refunded repair tasks", stats.UnitDimensionless)

	// market
	OffersPublished = stats.Int64("market/offers_published", "Counter of published offers", stats.UnitDimensionless)
	SlasStarted     = stats.Int64("market/slas_started", "Counter of started SLAs", stats.UnitDimensionless)
	SlaViolations   = stats.Int64("market/sla_violations", "Counter of SLA latency violations", stats.UnitDimensionless)
	SlasSlashed     = stats.Int64("market/slas_slashed", "Counter of slashed SLAs", stats.UnitDimensionless)

	// scheduler
	EpochsProcessed       = stats.Int64("scheduler/epochs_processed", "Counter of processed proof epochs", stats.UnitDimensionless)
	EpochProcessDuration  = stats.Float64("scheduler/epoch_ms", "Time spent processing one epoch", stats.UnitMilliseconds)
	BeaconFetchDuration   = stats.Float64("scheduler/beacon_fetch_ms", "Time spent fetching a beacon entry", stats.UnitMilliseconds)
	BeaconFetchFailures   = stats.Int64("scheduler/beacon_fetch_failures", "Counter of failed beacon fetches", stats.UnitDimensionless)
	ChallengesAnswered    = stats.Int64("scheduler/challenges_answered", "Counter of challenges answered by the local provider", stats.UnitDimensionless)
	ProofBuildDuration    = stats.Float64("scheduler/proof_build_ms", "Time spent building a proof locally", stats.UnitMilliseconds)
	RepairScansRun        = stats.Int64("scheduler/repair_scans", "Counter of repair scans", stats.UnitDimensionless)
	ChunkStoreGetDuration = stats.Float64("store/get_ms", "Time spent fetching a chunk", stats.UnitMilliseconds)

	// http
	HttpChunkRequestCount       = stats.Int64("http/chunk_request_count", "Counter of chunk requests", stats.UnitDimensionless)
	HttpChunkRequestDuration    = stats.Float64("http/chunk_request_duration_ms", "Time spent serving a chunk request", stats.UnitMilliseconds)
	HttpManifestRequestCount    = stats.Int64("http/manifest_request_count", "Counter of manifest requests", stats.UnitDimensionless)
	HttpManifestRequestDuration = stats.Float64("http/manifest_request_duration_ms", "Time spent serving a manifest request", stats.UnitMilliseconds)
	HttpRequestFailures         = stats.Int64("http/request_failures", "Counter of failed http requests", stats.UnitDimensionless)

	// rpc
	APIRequestDuration = stats.Float64("api/request_duration_ms", "Time spent handling an API request", stats.UnitMilliseconds)
)

var (
	InfoView = &view.View{
		Name:        "info",
		Description: "svdb node information",
		Measure:     SvdbInfo,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Commit},
	}

	DealsCreatedView = &view.View{
		Measure:     DealsCreated,
		Aggregation: view.Count(),
	}
	DealsExpiredView = &view.View{
		Measure:     DealsExpired,
		Aggregation: view.Count(),
	}
	DealsCancelledView = &view.View{
		Measure:     DealsCancelled,
		Aggregation: view.Count(),
	}
	RewardsStreamedView = &view.View{
		Measure:     RewardsStreamed,
		Aggregation: view.Count(),
	}
	EscrowLockedBytesView = &view.View{
		Measure:     EscrowLockedBytes,
		Aggregation: view.Sum(),
	}

	ChallengesIssuedView = &view.View{
		Measure:     ChallengesIssued,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ChallengeType},
	}
	ProofsAcceptedView = &view.View{
		Measure:     ProofsAccepted,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ChallengeType},
	}
	ProofsFailedView = &view.View{
		Measure:     ProofsFailed,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ChallengeType, FailureType},
	}
	ChallengesMissedView = &view.View{
		Measure:     ChallengesMissed,
		Aggregation: view.Count(),
	}
	ProvidersSlashedView = &view.View{
		Measure:     ProvidersSlashed,
		Aggregation: view.Count(),
	}
	SealsRegisteredView = &view.View{
		Measure:     SealsRegistered,
		Aggregation: view.Count(),
	}
	SealsTerminatedView = &view.View{
		Measure:     SealsTerminated,
		Aggregation: view.Count(),
	}
	ProofVerifyDurationView = &view.View{
		Measure:     ProofVerifyDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{ChallengeType},
	}
	ProverRequestDurationView = &view.View{
		Measure:     ProverRequestDuration,
		Aggregation: defaultMillisecondsDistribution,
	}

	RepairTasksOpenedView = &view.View{
		Measure:     RepairTasksOpened,
		Aggregation: view.Count(),
	}
	RepairTasksCompletedView = &view.View{
		Measure:     RepairTasksCompleted,
		Aggregation: view.Count(),
	}
	RepairTasksRefundedView = &view.View{
		Measure:     RepairTasksRefunded,
		Aggregation: view.Count(),
	}

	OffersPublishedView = &view.View{
		Measure:     OffersPublished,
		Aggregation: view.Count(),
	}
	SlasStartedView = &view.View{
		Measure:     SlasStarted,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{SlaTier},
	}
	SlaViolationsView = &view.View{
		Measure:     SlaViolations,
		Aggregation: view.Count(),
	}
	SlasSlashedView = &view.View{
		Measure:     SlasSlashed,
		Aggregation: view.Count(),
	}

	EpochsProcessedView = &view.View{
		Measure:     EpochsProcessed,
		Aggregation: view.Count(),
	}
	EpochProcessDurationView = &view.View{
		Measure:     EpochProcessDuration,
		Aggregation: defaultMillisecondsDistribution,
	}
	BeaconFetchDurationView = &view.View{
		Measure:     BeaconFetchDuration,
		Aggregation: defaultMillisecondsDistribution,
	}
	BeaconFetchFailuresView = &view.View{
		Measure:     BeaconFetchFailures,
		Aggregation: view.Count(),
	}
	ChallengesAnsweredView = &view.View{
		Measure:     ChallengesAnswered,
		Aggregation: view.Count(),
	}
	ProofBuildDurationView = &view.View{
		Measure:     ProofBuildDuration,
		Aggregation: defaultMillisecondsDistribution,
	}
	RepairScansRunView = &view.View{
		Measure:     RepairScansRun,
		Aggregation: view.Count(),
	}
	ChunkStoreGetDurationView = &view.View{
		Measure:     ChunkStoreGetDuration,
		Aggregation: defaultMillisecondsDistribution,
	}

	HttpChunkRequestCountView = &view.View{
		Measure:     HttpChunkRequestCount,
		Aggregation: view.Count(),
	}
	HttpChunkRequestDurationView = &view.View{
		Measure:     HttpChunkRequestDuration,
		Aggregation: defaultMillisecondsDistribution,
	}
	HttpManifestRequestCountView = &view.View{
		Measure:     HttpManifestRequestCount,
		Aggregation: view.Count(),
	}
	HttpManifestRequestDurationView = &view.View{
		Measure:     HttpManifestRequestDuration,
		Aggregation: defaultMillisecondsDistribution,
	}
	HttpRequestFailuresView = &view.View{
		Measure:     HttpRequestFailures,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Endpoint},
	}
	APIRequestDurationView = &view.View{
		Measure:     APIRequestDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Endpoint},
	}
)

// DefaultViews is the set of metric views registered at startup.
var DefaultViews = func() []*view.View {
	views := []*view.View{
		InfoView,
		DealsCreatedView,
		DealsExpiredView,
		DealsCancelledView,
		RewardsStreamedView,
		EscrowLockedBytesView,
		ChallengesIssuedView,
		ProofsAcceptedView,
		ProofsFailedView,
		ChallengesMissedView,
		ProvidersSlashedView,
		SealsRegisteredView,
		SealsTerminatedView,
		ProofVerifyDurationView,
		ProverRequestDurationView,
		RepairTasksOpenedView,
		RepairTasksCompletedView,
		RepairTasksRefundedView,
		OffersPublishedView,
		SlasStartedView,
		SlaViolationsView,
		SlasSlashedView,
		EpochsProcessedView,
		EpochProcessDurationView,
		BeaconFetchDurationView,
		BeaconFetchFailuresView,
		ChallengesAnsweredView,
		ProofBuildDurationView,
		RepairScansRunView,
		ChunkStoreGetDurationView,
		HttpChunkRequestCountView,
		HttpChunkRequestDurationView,
		HttpManifestRequestCountView,
		HttpManifestRequestDurationView,
		HttpRequestFailuresView,
		APIRequestDurationView,
	}
	views = append(views, rpcmetrics.DefaultViews...)
	return views
}()

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

// Timer begins a timer and returns a function to record the duration since
// the timer began against the provided measure.
func Timer(ctx context.Context, m *stats.Float64Measure) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
		return time.Since(start)
	}
}
