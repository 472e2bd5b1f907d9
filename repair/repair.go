// Package repair runs the shard repair auction. When fewer than k shards
// of a manifest remain retrievable, a bounty-backed task is opened; any
// node that re-materializes the lost shard and proves it against the
// manifest's erasure commitment claims the bounty.
package repair

import (
	"context"
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
	"github.com/svdb-project/svdb/lib/erasure"
	"github.com/svdb-project/svdb/svdbevents"
	"github.com/svdb-project/svdb/types"
)

var log = logging.Logger("repair")

var (
	// ErrTaskOpen means an open task for the shard already exists.
	ErrTaskOpen = errors.New("repair task for this shard is already open")
	// ErrTaskClaimed means another repairer claimed the task first.
	ErrTaskClaimed = errors.New("repair task already claimed")
	// ErrTaskExpired means the claim window closed and the bounty is
	// refunded (or about to be).
	ErrTaskExpired = errors.New("repair task claim window has closed")
	// ErrShardMismatch means the submitted shard does not hash to the
	// manifest's erasure commitment.
	ErrShardMismatch = errors.New("submitted shard does not match the erasure commitment")
	// ErrNoFundingDeal means no active deal covers the manifest, so no
	// escrow can back the bounty.
	ErrNoFundingDeal = errors.New("no active deal to fund the repair bounty")
)

type Auction struct {
	repairs *db.RepairsDB
	deals   *db.DealsDB
	wallet  *db.WalletDB
	store   *chunkstore.Store
	ledger  *ledger.Ledger
	events  *svdbevents.Bus
	clock   clock.Clock
}

func NewAuction(repairs *db.RepairsDB, deals *db.DealsDB, wallet *db.WalletDB, store *chunkstore.Store, ldg *ledger.Ledger, events *svdbevents.Bus, clk clock.Clock) *Auction {
	return &Auction{
		repairs: repairs,
		deals:   deals,
		wallet:  wallet,
		store:   store,
		ledger:  ldg,
		events:  events,
		clock:   clk,
	}
}

// OpenTask opens a repair bounty for one lost shard of a manifest. The
// bounty is funded from the escrow of an active deal over the manifest.
// At most one task per (manifest, shard) may be open at a time.
func (a *Auction) OpenTask(ctx context.Context, root cid.Cid, shardIndex int) (*types.RepairTask, error) {
	manifest, err := a.store.GetManifest(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("getting manifest %s: %w", root, err)
	}
	total := manifest.DataShards + manifest.ParityShards
	if shardIndex < 0 || shardIndex >= total {
		return nil, fmt.Errorf("shard index %d out of range [0, %d)", shardIndex, total)
	}

	open, err := a.repairs.OpenByManifestAndShard(ctx, root, shardIndex)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, fmt.Errorf("manifest %s shard %d: %w", root, shardIndex, ErrTaskOpen)
	}

	deal, err := a.fundingDeal(ctx, root)
	if err != nil {
		return nil, err
	}
	bounty := big.Mul(deal.PricePerEpoch, big.NewInt(build.RepairBountyEpochs))
	if err := a.ledger.FundBounty(ctx, deal.ID, bounty); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	task := &types.RepairTask{
		ID:           uuid.New(),
		ManifestRoot: root,
		ShardIndex:   shardIndex,
		Bounty:       bounty,
		Payer:        deal.Payer,
		CreatedAt:    now,
		Deadline:     now.Add(build.RepairTimeout),
		State:        types.RepairOpen,
	}
	if err := a.repairs.Insert(ctx, task); err != nil {
		// Return the funded bounty rather than stranding it in the pool
		if rerr := a.wallet.Transfer(ctx, ledger.BountyPoolAddr, deal.Payer, bounty); rerr != nil {
			log.Errorw("failed to return bounty after insert error", "task", task.ID, "err", rerr)
		}
		return nil, fmt.Errorf("inserting repair task for %s: %w", root, err)
	}

	log.Infow("repair task opened", "root", root, "shard", shardIndex, "bounty", bounty)
	a.events.Publish(svdbevents.Event{
		Code:         svdbevents.RepairTaskCreated,
		TaskID:       task.ID,
		ManifestRoot: root,
		Amount:       bounty,
	})
	return task, nil
}

// fundingDeal picks the active deal with the most remaining escrow.
func (a *Auction) fundingDeal(ctx context.Context, root cid.Cid) (*types.Deal, error) {
	deals, err := a.deals.ByManifestRoot(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("listing deals for %s: %w", root, err)
	}

	var best *types.Deal
	for _, d := range deals {
		if d.State != types.DealActive {
			continue
		}
		if best == nil || ledger.Remaining(d).GreaterThan(ledger.Remaining(best)) {
			best = d
		}
	}
	if best == nil {
		return nil, fmt.Errorf("manifest %s: %w", root, ErrNoFundingDeal)
	}
	return best, nil
}

// SubmitRepair verifies a re-materialized shard against the manifest's
// erasure commitment and pays the bounty to the first valid submitter.
func (a *Auction) SubmitRepair(ctx context.Context, taskID uuid.UUID, repairer address.Address, shard []byte) (abi.TokenAmount, error) {
	task, err := a.repairs.ByID(ctx, taskID)
	if err != nil {
		return abi.TokenAmount{}, fmt.Errorf("getting repair task %s: %w", taskID, err)
	}

	switch task.State {
	case types.RepairCompleted:
		return abi.TokenAmount{}, fmt.Errorf("task %s: %w", taskID, ErrTaskClaimed)
	case types.RepairRefunded:
		return abi.TokenAmount{}, fmt.Errorf("task %s: %w", taskID, ErrTaskExpired)
	}
	if a.clock.Now().After(task.Deadline) {
		return abi.TokenAmount{}, fmt.Errorf("task %s: %w", taskID, ErrTaskExpired)
	}

	manifest, err := a.store.GetManifest(ctx, task.ManifestRoot)
	if err != nil {
		return abi.TokenAmount{}, fmt.Errorf("getting manifest %s: %w", task.ManifestRoot, err)
	}
	if task.ShardIndex >= len(manifest.ShardHashes) {
		return abi.TokenAmount{}, fmt.Errorf("manifest %s has no commitment for shard %d", task.ManifestRoot, task.ShardIndex)
	}
	if blake3.Sum256(shard) != manifest.ShardHashes[task.ShardIndex] {
		return abi.TokenAmount{}, fmt.Errorf("task %s shard %d: %w", taskID, task.ShardIndex, ErrShardMismatch)
	}

	claimed, err := a.repairs.Claim(ctx, taskID, repairer.String())
	if err != nil {
		return abi.TokenAmount{}, err
	}
	if !claimed {
		return abi.TokenAmount{}, fmt.Errorf("task %s: %w", taskID, ErrTaskClaimed)
	}

	if err := a.wallet.Transfer(ctx, ledger.BountyPoolAddr, repairer, task.Bounty); err != nil {
		return abi.TokenAmount{}, fmt.Errorf("paying bounty for task %s: %w", taskID, err)
	}

	log.Infow("repair completed", "task", taskID, "root", task.ManifestRoot, "shard", task.ShardIndex, "winner", repairer)
	a.events.Publish(svdbevents.Event{
		Code:         svdbevents.RepairCompleted,
		TaskID:       taskID,
		ManifestRoot: task.ManifestRoot,
		Provider:     repairer,
		Amount:       task.Bounty,
	})
	return task.Bounty, nil
}

// SweepExpired refunds the bounty of every open task past its deadline to
// the deal payer that funded it. It returns the number of tasks refunded.
func (a *Auction) SweepExpired(ctx context.Context) (int, error) {
	expired, err := a.repairs.OpenPastDeadline(ctx, a.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("listing expired repair tasks: %w", err)
	}

	var refunded int
	for _, task := range expired {
		ok, err := a.repairs.MarkRefunded(ctx, task.ID)
		if err != nil {
			return refunded, err
		}
		if !ok {
			continue
		}
		if err := a.wallet.Transfer(ctx, ledger.BountyPoolAddr, task.Payer, task.Bounty); err != nil {
			return refunded, fmt.Errorf("refunding bounty for task %s: %w", task.ID, err)
		}
		refunded++

		a.events.Publish(svdbevents.Event{
			Code:         svdbevents.RepairRefunded,
			TaskID:       task.ID,
			ManifestRoot: task.ManifestRoot,
			Client:       task.Payer,
			Amount:       task.Bounty,
		})
	}
	return refunded, nil
}

// ReconstructShard rebuilds one missing shard of a payload from the
// surviving shards. The slice must have k+m entries with nil holes for
// the missing shards; at least k must be present.
func ReconstructShard(manifest *chunkstore.Manifest, shards [][]byte, shardIndex int) ([]byte, error) {
	coder, err := erasure.NewCoder(manifest.DataShards, manifest.ParityShards)
	if err != nil {
		return nil, err
	}
	if err := coder.Reconstruct(shards); err != nil {
		return nil, err
	}
	if shardIndex < 0 || shardIndex >= len(shards) {
		return nil, fmt.Errorf("shard index %d out of range [0, %d)", shardIndex, len(shards))
	}
	return shards[shardIndex], nil
}
