// Package scheduler drives the proof cycle. On every epoch it expires
// deals, issues salted challenges, answers the challenges addressed to
// the local provider, sweeps missed deadlines and opens repair tasks for
// manifests that have lost too many shards.
//
// The loop holds no cross-epoch state beyond the persisted last-processed
// epoch, so a crashed scheduler restarts where it left off and a replica
// running the same loop is harmless: proof submission is first-wins.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jpillora/backoff"

	"github.com/svdb-project/svdb/beacon"
	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/chunkstore"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/lib/merkletree"
	"github.com/svdb-project/svdb/proofengine"
	"github.com/svdb-project/svdb/prover"
	"github.com/svdb-project/svdb/repair"
	"github.com/svdb-project/svdb/types"
)

var log = logging.Logger("scheduler")

const stateName = "proof-cycle"

// beaconFetchAttempts bounds the salt retries before the epoch is skipped.
const beaconFetchAttempts = 5

// ShardChecker reports which erasure shards of a manifest are currently
// retrievable. The scheduler opens repair tasks when fewer than k remain.
type ShardChecker interface {
	AvailableShards(ctx context.Context, root cid.Cid, manifest *chunkstore.Manifest) ([]bool, error)
}

type Config struct {
	Deals     *db.DealsDB
	Seals     *db.SealsDB
	Sched     *db.SchedulerDB
	Store     *chunkstore.Store
	Ledger    *ledger.Ledger
	Engine    *proofengine.Engine
	Auction   *repair.Auction
	Beacon    beacon.RandomBeacon
	Clock     clock.Clock
	Challenge *db.ChallengesDB

	// GenesisTime anchors epoch numbering to the wall clock.
	GenesisTime time.Time

	// ProviderAddr, when set, makes this scheduler answer the open
	// challenges addressed to that provider.
	ProviderAddr address.Address
	// Prover produces seal proof artifacts for the local provider.
	// Optional; without one, possession challenges are answered by
	// recomputing the commitment directly.
	Prover prover.Prover

	// Shards, when set, enables the repair scan.
	Shards ShardChecker
}

type Scheduler struct {
	cfg Config
}

func New(cfg Config) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// CurrentEpoch converts the wall clock into an epoch number.
func (s *Scheduler) CurrentEpoch() abi.ChainEpoch {
	elapsed := s.cfg.Clock.Now().Sub(s.cfg.GenesisTime)
	if elapsed < 0 {
		return 0
	}
	return abi.ChainEpoch(elapsed / build.EpochDuration)
}

// Run processes epochs until the context is cancelled. Epochs missed
// while the process was down are caught up in order before new ticks are
// handled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.cfg.Clock.Ticker(build.EpochDuration)
	defer ticker.Stop()

	if err := s.CatchUp(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.CatchUp(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				log.Errorw("epoch processing failed", "err", err)
			}
		}
	}
}

// CatchUp processes every epoch from the last persisted one up to the
// current wall-clock epoch.
func (s *Scheduler) CatchUp(ctx context.Context) error {
	last, err := s.cfg.Sched.LastEpoch(ctx, stateName)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("reading scheduler state: %w", err)
	}

	cur := s.CurrentEpoch()
	for epoch := last + 1; epoch <= cur; epoch++ {
		if err := s.ProcessEpoch(ctx, epoch); err != nil {
			return err
		}
		if err := s.cfg.Sched.SetLastEpoch(ctx, stateName, epoch); err != nil {
			return fmt.Errorf("persisting scheduler state: %w", err)
		}
	}
	return nil
}

// ProcessEpoch runs one full proof cycle for the given epoch.
func (s *Scheduler) ProcessEpoch(ctx context.Context, epoch abi.ChainEpoch) error {
	log.Debugw("processing epoch", "epoch", epoch)

	salt, err := s.epochSalt(ctx, epoch)
	if err != nil {
		return fmt.Errorf("epoch %d: %w", epoch, err)
	}

	expired, err := s.cfg.Ledger.ExpireDeals(ctx, epoch)
	if err != nil {
		return fmt.Errorf("expiring deals at epoch %d: %w", epoch, err)
	}
	if expired > 0 {
		log.Infow("deals expired", "epoch", epoch, "count", expired)
	}

	if err := s.issueChallenges(ctx, epoch, salt); err != nil {
		return err
	}

	if !s.cfg.ProviderAddr.Empty() {
		s.answerOpenChallenges(ctx)
	}

	missed, err := s.cfg.Engine.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweeping challenges at epoch %d: %w", epoch, err)
	}
	if missed > 0 {
		log.Infow("challenges missed", "epoch", epoch, "count", missed)
	}

	if _, err := s.cfg.Auction.SweepExpired(ctx); err != nil {
		return fmt.Errorf("sweeping repair tasks at epoch %d: %w", epoch, err)
	}

	if s.cfg.Shards != nil {
		if err := s.scanForRepairs(ctx); err != nil {
			return err
		}
	}
	return nil
}

// epochSalt fetches the beacon entry whose randomness salts the epoch's
// challenge indices. Beacon hiccups are retried with backoff; proofs
// cannot be issued without unpredictable randomness.
func (s *Scheduler) epochSalt(ctx context.Context, epoch abi.ChainEpoch) ([]byte, error) {
	round := s.cfg.Beacon.MaxBeaconRoundForEpoch(epoch)

	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	var lastErr error
	for i := 0; i < beaconFetchAttempts; i++ {
		entry, err := s.cfg.Beacon.Entry(ctx, round)
		if err == nil {
			return entry.Data, nil
		}
		lastErr = err
		log.Warnw("beacon fetch failed", "round", round, "attempt", i+1, "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.cfg.Clock.After(b.Duration()):
		}
	}
	return nil, fmt.Errorf("fetching beacon round %d: %w", round, lastErr)
}

func (s *Scheduler) issueChallenges(ctx context.Context, epoch abi.ChainEpoch, salt []byte) error {
	deals, err := s.cfg.Deals.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active deals: %w", err)
	}
	for _, deal := range deals {
		if epoch < deal.StartEpoch || epoch >= deal.EndEpoch() {
			continue
		}
		if _, err := s.cfg.Engine.IssueDealChallenges(ctx, deal, epoch, salt); err != nil {
			log.Errorw("failed to issue deal challenges", "deal", deal.ID, "err", err)
		}
	}

	if epoch%build.SealChallengeIntervalEpochs != 0 {
		return nil
	}
	seals, err := s.cfg.Seals.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active seals: %w", err)
	}
	for _, seal := range seals {
		if _, err := s.cfg.Engine.IssueSealChallenge(ctx, seal, epoch, salt); err != nil {
			log.Errorw("failed to issue seal challenge", "provider", seal.Provider, "err", err)
		}
	}
	return nil
}

// answerOpenChallenges builds and submits proofs for every open challenge
// addressed to the local provider. Failures are logged, not fatal: an
// unanswerable challenge becomes a miss at sweep time.
func (s *Scheduler) answerOpenChallenges(ctx context.Context) {
	open, err := s.cfg.Challenge.OpenByProvider(ctx, s.cfg.ProviderAddr)
	if err != nil {
		log.Errorw("listing open challenges", "provider", s.cfg.ProviderAddr, "err", err)
		return
	}

	for _, ch := range open {
		proof, err := s.buildProof(ctx, ch)
		if err != nil {
			if errors.Is(err, prover.ErrProverTimeout) {
				log.Warnw("prover timed out, challenge will be missed", "challenge", ch.ID)
				continue
			}
			log.Errorw("failed to build proof", "challenge", ch.ID, "err", err)
			continue
		}
		if err := s.cfg.Engine.SubmitProof(ctx, ch.ID, proof); err != nil {
			if errors.Is(err, proofengine.ErrAlreadyAnswered) {
				// another scheduler replica got there first
				continue
			}
			log.Errorw("proof rejected", "challenge", ch.ID, "err", err)
		}
	}
}

func (s *Scheduler) buildProof(ctx context.Context, ch *types.Challenge) (*types.Proof, error) {
	switch ch.Type {
	case types.ChallengeMerkleSample:
		return s.buildSampleProof(ctx, ch)
	case types.ChallengePoRepSeal:
		return s.buildSealProof(ctx, ch)
	default:
		return nil, fmt.Errorf("unknown challenge type %d", ch.Type)
	}
}

func (s *Scheduler) buildSampleProof(ctx context.Context, ch *types.Challenge) (*types.Proof, error) {
	deal, err := s.cfg.Deals.ByID(ctx, ch.DealID)
	if err != nil {
		return nil, fmt.Errorf("getting deal %s: %w", ch.DealID, err)
	}
	manifest, err := s.cfg.Store.GetManifest(ctx, deal.ManifestRoot)
	if err != nil {
		return nil, fmt.Errorf("getting manifest %s: %w", deal.ManifestRoot, err)
	}

	tree, err := merkletree.New(merkletree.Sha256Hasher{}, manifest.ChunkLeaves())
	if err != nil {
		return nil, err
	}
	p, err := tree.Prove(ch.ChunkIndex)
	if err != nil {
		return nil, err
	}
	return &types.Proof{
		Type:   types.ProofMerkleSample,
		Leaf:   p.Leaf,
		Index:  p.Index,
		Branch: p.Branch,
	}, nil
}

func (s *Scheduler) buildSealProof(ctx context.Context, ch *types.Challenge) (*types.Proof, error) {
	seal, err := s.cfg.Seals.ByCommitment(ctx, ch.SealCommitment)
	if err != nil {
		return nil, fmt.Errorf("getting seal for challenge %s: %w", ch.ID, err)
	}

	if s.cfg.Prover != nil {
		sp, err := s.cfg.Prover.ProveSeal(ctx, seal.ManifestRoot, seal.Randomness, seal.Provider)
		if err != nil {
			return nil, err
		}
		return &types.Proof{
			Type:       types.ProofPoRepSeal,
			Commitment: sp.Commitment,
			Artifact:   sp.Artifact,
		}, nil
	}

	return &types.Proof{
		Type:       types.ProofPoRepSeal,
		Commitment: types.SealCommitment(seal.ManifestRoot, seal.Randomness, seal.Provider),
	}, nil
}

// scanForRepairs opens a bounty for every shard that the checker reports
// lost, for every manifest backing an active deal, whenever fewer than k
// shards remain.
func (s *Scheduler) scanForRepairs(ctx context.Context) error {
	deals, err := s.cfg.Deals.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active deals: %w", err)
	}

	seen := make(map[cid.Cid]bool)
	for _, deal := range deals {
		if seen[deal.ManifestRoot] {
			continue
		}
		seen[deal.ManifestRoot] = true

		manifest, err := s.cfg.Store.GetManifest(ctx, deal.ManifestRoot)
		if err != nil {
			log.Errorw("repair scan: manifest lookup failed", "root", deal.ManifestRoot, "err", err)
			continue
		}

		available, err := s.cfg.Shards.AvailableShards(ctx, deal.ManifestRoot, manifest)
		if err != nil {
			log.Errorw("repair scan: availability check failed", "root", deal.ManifestRoot, "err", err)
			continue
		}
		if len(available) != manifest.DataShards+manifest.ParityShards {
			log.Errorw("repair scan: bad availability vector", "root", deal.ManifestRoot, "len", len(available))
			continue
		}

		var present int
		for _, ok := range available {
			if ok {
				present++
			}
		}
		if present >= manifest.DataShards {
			continue
		}

		for idx, ok := range available {
			if ok {
				continue
			}
			_, err := s.cfg.Auction.OpenTask(ctx, deal.ManifestRoot, idx)
			if err != nil && !errors.Is(err, repair.ErrTaskOpen) {
				log.Errorw("repair scan: opening task failed", "root", deal.ManifestRoot, "shard", idx, "err", err)
			}
		}
	}
	return nil
}
