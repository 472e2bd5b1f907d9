// Package proofengine issues storage challenges, verifies the submitted
// proofs and slashes providers that fail to answer. It owns the provider
// registry: stake is what makes a missed challenge expensive.
package proofengine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"lukechampine.com/blake3"

	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/chunkstore"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/lib/merkletree"
	"github.com/svdb-project/svdb/svdbevents"
	"github.com/svdb-project/svdb/types"
)

var log = logging.Logger("proofengine")

var (
	// ErrAlreadyAnswered means another submission won the challenge first.
	ErrAlreadyAnswered = errors.New("challenge already answered")
	// ErrChallengeExpired means the response window has closed.
	ErrChallengeExpired = errors.New("challenge response window has closed")
	// ErrInvalidProof means the submission failed verification.
	ErrInvalidProof = errors.New("invalid proof")
	// ErrSealNotActive means the targeted seal was terminated.
	ErrSealNotActive = errors.New("seal is not active")
)

type Engine struct {
	deals      *db.DealsDB
	seals      *db.SealsDB
	challenges *db.ChallengesDB
	providers  *db.ProvidersDB
	wallet     *db.WalletDB
	store      *chunkstore.Store
	ledger     *ledger.Ledger
	events     *svdbevents.Bus
	clock      clock.Clock

	hasher merkletree.Sha256Hasher
}

type Config struct {
	Deals      *db.DealsDB
	Seals      *db.SealsDB
	Challenges *db.ChallengesDB
	Providers  *db.ProvidersDB
	Wallet     *db.WalletDB
	Store      *chunkstore.Store
	Ledger     *ledger.Ledger
	Events     *svdbevents.Bus
	Clock      clock.Clock
}

func New(cfg Config) *Engine {
	return &Engine{
		deals:      cfg.Deals,
		seals:      cfg.Seals,
		challenges: cfg.Challenges,
		providers:  cfg.Providers,
		wallet:     cfg.Wallet,
		store:      cfg.Store,
		ledger:     cfg.Ledger,
		events:     cfg.Events,
		clock:      cfg.Clock,
	}
}

// RegisterSeal records a provider's replica commitment. The commitment
// binds the manifest root, the sealing randomness and the provider
// address, so replicas are not interchangeable between providers.
func (e *Engine) RegisterSeal(ctx context.Context, root cid.Cid, providerAddr address.Address, randomness []byte) (*types.Seal, error) {
	prov, err := e.provider(ctx, providerAddr)
	if err != nil {
		return nil, err
	}
	if !prov.Active {
		return nil, fmt.Errorf("registering seal for %s: %w", providerAddr, ErrProviderInactive)
	}
	if len(randomness) == 0 {
		return nil, fmt.Errorf("seal randomness must be non-empty")
	}

	seal := &types.Seal{
		Commitment:   types.SealCommitment(root, randomness, providerAddr),
		ManifestRoot: root,
		Provider:     providerAddr,
		Randomness:   randomness,
		RegisteredAt: e.clock.Now(),
		State:        types.SealActive,
	}
	if err := e.seals.Insert(ctx, seal); err != nil {
		return nil, fmt.Errorf("registering seal for %s: %w", providerAddr, err)
	}

	log.Infow("seal registered", "root", root, "provider", providerAddr)
	e.events.Publish(svdbevents.Event{
		Code:         svdbevents.SealRegistered,
		ManifestRoot: root,
		Provider:     providerAddr,
	})
	return seal, nil
}

// challengeIndex derives the i-th sampled chunk index for an epoch. The
// derivation mixes the beacon salt with the deal nonce so indices cannot
// be precomputed before the epoch's randomness is published.
func challengeIndex(salt []byte, nonce []byte, dealID uuid.UUID, sealCommitment [32]byte, i int, chunkCount uint64) uint64 {
	h := blake3.New(32, nil)
	h.Write(salt)
	h.Write(nonce)
	h.Write(dealID[:])
	h.Write(sealCommitment[:])
	var ibuf [4]byte
	binary.BigEndian.PutUint32(ibuf[:], uint32(i))
	h.Write(ibuf[:])
	digest := h.Sum(nil)
	return binary.BigEndian.Uint64(digest[:8]) % chunkCount
}

// IssueDealChallenges samples chunk indices for every active seal of the
// deal's manifest and opens one timed merkle challenge per index.
func (e *Engine) IssueDealChallenges(ctx context.Context, deal *types.Deal, epoch abi.ChainEpoch, salt []byte) ([]*types.Challenge, error) {
	manifest, err := e.store.GetManifest(ctx, deal.ManifestRoot)
	if err != nil {
		return nil, fmt.Errorf("getting manifest for deal %s: %w", deal.ID, err)
	}
	chunkCount := uint64(len(manifest.Chunks))
	if chunkCount == 0 {
		return nil, fmt.Errorf("deal %s manifest has no chunks", deal.ID)
	}

	seals, err := e.seals.ByManifestRoot(ctx, deal.ManifestRoot)
	if err != nil {
		return nil, fmt.Errorf("listing seals for deal %s: %w", deal.ID, err)
	}

	now := e.clock.Now()
	var issued []*types.Challenge
	for _, seal := range seals {
		if seal.State != types.SealActive {
			continue
		}

		for i := 0; i < build.ChallengesPerDeal; i++ {
			ch := &types.Challenge{
				ID:             uuid.New(),
				Type:           types.ChallengeMerkleSample,
				DealID:         deal.ID,
				ChunkIndex:     challengeIndex(salt, deal.Nonce, deal.ID, seal.Commitment, i, chunkCount),
				SealCommitment: seal.Commitment,
				Provider:       seal.Provider,
				Epoch:          epoch,
				Salt:           salt,
				IssuedAt:       now,
				Deadline:       now.Add(build.ChallengeWindow),
				State:          types.ChallengeOpen,
			}
			if err := e.challenges.Insert(ctx, ch); err != nil {
				return issued, fmt.Errorf("inserting challenge for deal %s: %w", deal.ID, err)
			}
			issued = append(issued, ch)

			e.events.Publish(svdbevents.Event{
				Code:        svdbevents.DealChallenged,
				DealID:      deal.ID,
				ChallengeID: ch.ID,
				Provider:    seal.Provider,
				Epoch:       epoch,
			})
		}
	}

	log.Debugw("deal challenges issued", "deal", deal.ID, "epoch", epoch, "count", len(issued))
	return issued, nil
}

// IssueSealChallenge opens a timed possession challenge against one seal.
func (e *Engine) IssueSealChallenge(ctx context.Context, seal *types.Seal, epoch abi.ChainEpoch, salt []byte) (*types.Challenge, error) {
	if seal.State != types.SealActive {
		return nil, fmt.Errorf("challenging seal of %s: %w", seal.Provider, ErrSealNotActive)
	}

	now := e.clock.Now()
	ch := &types.Challenge{
		ID:             uuid.New(),
		Type:           types.ChallengePoRepSeal,
		SealCommitment: seal.Commitment,
		Provider:       seal.Provider,
		Epoch:          epoch,
		Salt:           salt,
		IssuedAt:       now,
		Deadline:       now.Add(build.ChallengeWindow),
		State:          types.ChallengeOpen,
	}
	if err := e.challenges.Insert(ctx, ch); err != nil {
		return nil, fmt.Errorf("inserting seal challenge for %s: %w", seal.Provider, err)
	}

	e.events.Publish(svdbevents.Event{
		Code:        svdbevents.SealChallenged,
		ChallengeID: ch.ID,
		Provider:    seal.Provider,
		Epoch:       epoch,
	})
	return ch, nil
}

// SubmitProof verifies a proof against its challenge. The first valid
// submission answers the challenge and streams the epoch reward; later
// submissions get ErrAlreadyAnswered. An invalid proof changes no state.
func (e *Engine) SubmitProof(ctx context.Context, challengeID uuid.UUID, proof *types.Proof) error {
	ch, err := e.challenges.ByID(ctx, challengeID)
	if err != nil {
		return fmt.Errorf("getting challenge %s: %w", challengeID, err)
	}

	switch ch.State {
	case types.ChallengeAnswered:
		return fmt.Errorf("challenge %s: %w", challengeID, ErrAlreadyAnswered)
	case types.ChallengeMissed:
		return fmt.Errorf("challenge %s: %w", challengeID, ErrChallengeExpired)
	}
	now := e.clock.Now()
	if ch.Expired(now) {
		return fmt.Errorf("challenge %s: %w", challengeID, ErrChallengeExpired)
	}

	if err := e.verifyProof(ctx, ch, proof); err != nil {
		e.events.Publish(svdbevents.Event{
			Code:        svdbevents.ProofFailed,
			ChallengeID: ch.ID,
			DealID:      ch.DealID,
			Provider:    ch.Provider,
			Epoch:       ch.Epoch,
			Message:     err.Error(),
		})
		return err
	}

	won, err := e.challenges.MarkAnswered(ctx, ch.ID, now)
	if err != nil {
		return err
	}
	if !won {
		return fmt.Errorf("challenge %s: %w", challengeID, ErrAlreadyAnswered)
	}

	e.recordAccepted(ctx, ch)
	return nil
}

func (e *Engine) verifyProof(ctx context.Context, ch *types.Challenge, proof *types.Proof) error {
	switch ch.Type {
	case types.ChallengeMerkleSample:
		return e.verifyMerkleSample(ctx, ch, proof)
	case types.ChallengePoRepSeal:
		return e.verifySealProof(ctx, ch, proof)
	default:
		return fmt.Errorf("unknown challenge type %d: %w", ch.Type, ErrInvalidProof)
	}
}

func (e *Engine) verifyMerkleSample(ctx context.Context, ch *types.Challenge, proof *types.Proof) error {
	if proof.Index != ch.ChunkIndex {
		return fmt.Errorf("proof opens index %d, challenge asked for %d: %w", proof.Index, ch.ChunkIndex, ErrInvalidProof)
	}

	deal, err := e.deals.ByID(ctx, ch.DealID)
	if err != nil {
		return fmt.Errorf("getting deal %s: %w", ch.DealID, err)
	}
	manifest, err := e.store.GetManifest(ctx, deal.ManifestRoot)
	if err != nil {
		return fmt.Errorf("getting manifest for deal %s: %w", ch.DealID, err)
	}
	if proof.Index >= uint64(len(manifest.Chunks)) {
		return fmt.Errorf("proof index %d out of range: %w", proof.Index, ErrInvalidProof)
	}

	// The opened leaf must be the chunk the manifest names at that index
	want := chunkstore.LeafForChunkCid(manifest.Chunks[proof.Index])
	if proof.Leaf != want {
		return fmt.Errorf("proof leaf does not match manifest chunk %d: %w", proof.Index, ErrInvalidProof)
	}

	ok := merkletree.Verify(e.hasher, manifest.MerkleRoot, merkletree.Proof{
		Leaf:   proof.Leaf,
		Index:  proof.Index,
		Branch: proof.Branch,
	})
	if !ok {
		return fmt.Errorf("merkle branch does not reach the manifest root: %w", ErrInvalidProof)
	}
	return nil
}

func (e *Engine) verifySealProof(ctx context.Context, ch *types.Challenge, proof *types.Proof) error {
	seal, err := e.seals.ByCommitment(ctx, ch.SealCommitment)
	if err != nil {
		return fmt.Errorf("getting seal for challenge %s: %w", ch.ID, err)
	}
	if seal.State != types.SealActive {
		return fmt.Errorf("challenge %s: %w", ch.ID, ErrSealNotActive)
	}

	want := types.SealCommitment(seal.ManifestRoot, seal.Randomness, seal.Provider)
	if proof.Commitment != want {
		return fmt.Errorf("recomputed commitment does not match the registered seal: %w", ErrInvalidProof)
	}
	return nil
}

// recordAccepted applies the side effects of a winning proof: reputation,
// miss counter reset and the epoch reward stream.
func (e *Engine) recordAccepted(ctx context.Context, ch *types.Challenge) {
	prov, err := e.provider(ctx, ch.Provider)
	if err != nil {
		log.Errorw("accepted proof from unknown provider", "challenge", ch.ID, "provider", ch.Provider, "err", err)
	} else {
		prov.ProofsAccepted++
		bumpReputation(prov, 1)
		if err := e.providers.Update(ctx, prov); err != nil {
			log.Errorw("failed to record accepted proof", "provider", ch.Provider, "err", err)
		}
	}

	var zero [32]byte
	if ch.SealCommitment != zero {
		if err := e.seals.SetMisses(ctx, ch.SealCommitment, 0, types.SealActive); err != nil {
			log.Errorw("failed to reset seal misses", "challenge", ch.ID, "err", err)
		}
	}

	if ch.Type == types.ChallengeMerkleSample {
		if err := e.ledger.StreamReward(ctx, ch.DealID, ch.Provider, ch.Epoch); err != nil {
			// The proof stands; the deal may simply be out of escrow or term
			log.Warnw("could not stream reward for accepted proof", "deal", ch.DealID, "provider", ch.Provider, "err", err)
		}
	}

	e.events.Publish(svdbevents.Event{
		Code:        svdbevents.ProofAccepted,
		ChallengeID: ch.ID,
		DealID:      ch.DealID,
		Provider:    ch.Provider,
		Epoch:       ch.Epoch,
	})
}

// SweepExpired marks every open challenge past its deadline as missed and
// slashes the provider: a tenth of the stake per miss, the full remaining
// stake and seal termination after ConsecutiveMissLimit misses in a row.
// It returns the number of challenges swept.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	now := e.clock.Now()
	expired, err := e.challenges.OpenPastDeadline(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("listing expired challenges: %w", err)
	}

	var swept int
	for _, ch := range expired {
		missed, err := e.challenges.MarkMissed(ctx, ch.ID)
		if err != nil {
			return swept, err
		}
		if !missed {
			// Lost the race with a submission
			continue
		}
		swept++

		e.events.Publish(svdbevents.Event{
			Code:        svdbevents.ChallengeMissed,
			ChallengeID: ch.ID,
			DealID:      ch.DealID,
			Provider:    ch.Provider,
			Epoch:       ch.Epoch,
		})

		if err := e.punishMiss(ctx, ch); err != nil {
			return swept, err
		}
	}

	return swept, nil
}

func (e *Engine) punishMiss(ctx context.Context, ch *types.Challenge) error {
	prov, err := e.provider(ctx, ch.Provider)
	if err != nil {
		log.Errorw("missed challenge from unknown provider", "challenge", ch.ID, "provider", ch.Provider, "err", err)
		return nil
	}

	prov.ProofsMissed++
	bumpReputation(prov, -10)

	// Consecutive misses are tracked on the seal the challenge targeted
	misses := 1
	var seal *types.Seal
	var zero [32]byte
	if ch.SealCommitment != zero {
		seal, err = e.seals.ByCommitment(ctx, ch.SealCommitment)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("getting seal for missed challenge %s: %w", ch.ID, err)
			}
			seal = nil
		} else {
			misses = seal.ConsecutiveMisses + 1
		}
	}

	terminal := misses >= build.ConsecutiveMissLimit

	var slashAmt abi.TokenAmount
	if terminal {
		slashAmt = prov.Stake
	} else {
		slashAmt = big.Div(big.Mul(prov.Stake, big.NewInt(build.SlashNum)), big.NewInt(build.SlashDenom))
	}

	if slashAmt.GreaterThan(abi.NewTokenAmount(0)) {
		if err := e.wallet.Transfer(ctx, ledger.StakePoolAddr, ledger.SlashPoolAddr, slashAmt); err != nil {
			return fmt.Errorf("burning slashed stake of %s: %w", ch.Provider, err)
		}
		prov.Stake = big.Sub(prov.Stake, slashAmt)

		log.Warnw("provider slashed", "provider", ch.Provider, "amount", slashAmt, "terminal", terminal)
		e.events.Publish(svdbevents.Event{
			Code:        svdbevents.ProviderSlashed,
			ChallengeID: ch.ID,
			Provider:    ch.Provider,
			Amount:      slashAmt,
		})
	}

	if err := e.providers.Update(ctx, prov); err != nil {
		return fmt.Errorf("recording slash of %s: %w", ch.Provider, err)
	}

	if seal != nil {
		state := types.SealActive
		if terminal {
			state = types.SealTerminated
		}
		if err := e.seals.SetMisses(ctx, seal.Commitment, misses, state); err != nil {
			return fmt.Errorf("recording seal misses for %s: %w", ch.Provider, err)
		}
		if terminal {
			e.events.Publish(svdbevents.Event{
				Code:         svdbevents.SealTerminated,
				ManifestRoot: seal.ManifestRoot,
				Provider:     seal.Provider,
			})
		}
	}

	return nil
}

// VerifyBatch checks a batch of merkle openings against a manifest's root.
// Array lengths are validated before any opening is checked.
func (e *Engine) VerifyBatch(ctx context.Context, root cid.Cid, leaves [][32]byte, indexes []uint64, branches [][][32]byte) error {
	manifest, err := e.store.GetManifest(ctx, root)
	if err != nil {
		return fmt.Errorf("getting manifest %s: %w", root, err)
	}
	return merkletree.VerifyBatch(e.hasher, manifest.MerkleRoot, leaves, indexes, branches)
}
