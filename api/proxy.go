package api

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"

	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/market"
	"github.com/svdb-project/svdb/types"
)

// SvdbStruct is the jsonrpc proxy for the Svdb interface.
type SvdbStruct struct {
	Internal struct {
		AuthVerify func(ctx context.Context, token string) ([]auth.Permission, error) `perm:"read"`
		AuthNew    func(ctx context.Context, perms []auth.Permission) ([]byte, error) `perm:"admin"`

		Version func(ctx context.Context) (string, error) `perm:"read"`

		DealCreate      func(ctx context.Context, params DealParams) (*types.Deal, error)           `perm:"write"`
		DealGet         func(ctx context.Context, id uuid.UUID) (*types.Deal, error)                `perm:"read"`
		DealList        func(ctx context.Context, offset int, limit int) ([]*types.Deal, error)     `perm:"read"`
		DealCancel      func(ctx context.Context, id uuid.UUID) (*types.Deal, error)                `perm:"write"`
		DealsByManifest func(ctx context.Context, root cid.Cid) ([]*types.Deal, error)              `perm:"read"`
		DealLogs        func(ctx context.Context, id uuid.UUID) ([]db.DealLog, error)               `perm:"read"`
		WalletBalance   func(ctx context.Context, addr address.Address) (abi.TokenAmount, error)    `perm:"read"`

		ProviderRegister   func(ctx context.Context, params ProviderParams) (*types.Provider, error)  `perm:"write"`
		ProviderGet        func(ctx context.Context, addr address.Address) (*types.Provider, error)   `perm:"read"`
		ProviderDeactivate func(ctx context.Context, addr address.Address) (abi.TokenAmount, error)   `perm:"admin"`
		SealRegister       func(ctx context.Context, root cid.Cid, provider address.Address, randomness []byte) (*types.Seal, error) `perm:"write"`

		ChallengesOpen func(ctx context.Context, provider address.Address) ([]*types.Challenge, error) `perm:"read"`
		ProofSubmit    func(ctx context.Context, challengeID uuid.UUID, proof *types.Proof) error      `perm:"write"`

		OfferPublish     func(ctx context.Context, offer *types.Offer) error                                `perm:"write"`
		OfferList        func(ctx context.Context, query market.OfferQuery) ([]*market.RankedOffer, error)  `perm:"read"`
		SlaStart         func(ctx context.Context, params SlaParams) (*types.SLA, error)                    `perm:"write"`
		SlaReportLatency func(ctx context.Context, id uuid.UUID, measuredMs uint64) (*types.SLA, error)     `perm:"write"`

		RepairListOpen func(ctx context.Context) ([]*types.RepairTask, error)                                                  `perm:"read"`
		RepairSubmit   func(ctx context.Context, taskID uuid.UUID, repairer address.Address, shard []byte) (abi.TokenAmount, error) `perm:"write"`

		DataAdd     func(ctx context.Context, data []byte) (cid.Cid, error)        `perm:"write"`
		ChunkGet    func(ctx context.Context, c cid.Cid) ([]byte, error)           `perm:"read"`
		ManifestGet func(ctx context.Context, root cid.Cid) (*ManifestInfo, error) `perm:"read"`
	}
}

var _ Svdb = (*SvdbStruct)(nil)

func (s *SvdbStruct) AuthVerify(ctx context.Context, token string) ([]auth.Permission, error) {
	return s.Internal.AuthVerify(ctx, token)
}

func (s *SvdbStruct) AuthNew(ctx context.Context, perms []auth.Permission) ([]byte, error) {
	return s.Internal.AuthNew(ctx, perms)
}

func (s *SvdbStruct) Version(ctx context.Context) (string, error) {
	return s.Internal.Version(ctx)
}

func (s *SvdbStruct) DealCreate(ctx context.Context, params DealParams) (*types.Deal, error) {
	return s.Internal.DealCreate(ctx, params)
}

func (s *SvdbStruct) DealGet(ctx context.Context, id uuid.UUID) (*types.Deal, error) {
	return s.Internal.DealGet(ctx, id)
}

func (s *SvdbStruct) DealList(ctx context.Context, offset int, limit int) ([]*types.Deal, error) {
	return s.Internal.DealList(ctx, offset, limit)
}

func (s *SvdbStruct) DealCancel(ctx context.Context, id uuid.UUID) (*types.Deal, error) {
	return s.Internal.DealCancel(ctx, id)
}

func (s *SvdbStruct) DealsByManifest(ctx context.Context, root cid.Cid) ([]*types.Deal, error) {
	return s.Internal.DealsByManifest(ctx, root)
}

func (s *SvdbStruct) DealLogs(ctx context.Context, id uuid.UUID) ([]db.DealLog, error) {
	return s.Internal.DealLogs(ctx, id)
}

func (s *SvdbStruct) WalletBalance(ctx context.Context, addr address.Address) (abi.TokenAmount, error) {
	return s.Internal.WalletBalance(ctx, addr)
}

func (s *SvdbStruct) ProviderRegister(ctx context.Context, params ProviderParams) (*types.Provider, error) {
	return s.Internal.ProviderRegister(ctx, params)
}

func (s *SvdbStruct) ProviderGet(ctx context.Context, addr address.Address) (*types.Provider, error) {
	return s.Internal.ProviderGet(ctx, addr)
}

func (s *SvdbStruct) ProviderDeactivate(ctx context.Context, addr address.Address) (abi.TokenAmount, error) {
	return s.Internal.ProviderDeactivate(ctx, addr)
}

func (s *SvdbStruct) SealRegister(ctx context.Context, root cid.Cid, provider address.Address, randomness []byte) (*types.Seal, error) {
	return s.Internal.SealRegister(ctx, root, provider, randomness)
}

func (s *SvdbStruct) ChallengesOpen(ctx context.Context, provider address.Address) ([]*types.Challenge, error) {
	return s.Internal.ChallengesOpen(ctx, provider)
}

func (s *SvdbStruct) ProofSubmit(ctx context.Context, challengeID uuid.UUID, proof *types.Proof) error {
	return s.Internal.ProofSubmit(ctx, challengeID, proof)
}

func (s *SvdbStruct) OfferPublish(ctx context.Context, offer *types.Offer) error {
	return s.Internal.OfferPublish(ctx, offer)
}

func (s *SvdbStruct) OfferList(ctx context.Context, query market.OfferQuery) ([]*market.RankedOffer, error) {
	return s.Internal.OfferList(ctx, query)
}

func (s *SvdbStruct) SlaStart(ctx context.Context, params SlaParams) (*types.SLA, error) {
	return s.Internal.SlaStart(ctx, params)
}

func (s *SvdbStruct) SlaReportLatency(ctx context.Context, id uuid.UUID, measuredMs uint64) (*types.SLA, error) {
	return s.Internal.SlaReportLatency(ctx, id, measuredMs)
}

func (s *SvdbStruct) RepairListOpen(ctx context.Context) ([]*types.RepairTask, error) {
	return s.Internal.RepairListOpen(ctx)
}

func (s *SvdbStruct) RepairSubmit(ctx context.Context, taskID uuid.UUID, repairer address.Address, shard []byte) (abi.TokenAmount, error) {
	return s.Internal.RepairSubmit(ctx, taskID, repairer, shard)
}

func (s *SvdbStruct) DataAdd(ctx context.Context, data []byte) (cid.Cid, error) {
	return s.Internal.DataAdd(ctx, data)
}

func (s *SvdbStruct) ChunkGet(ctx context.Context, c cid.Cid) ([]byte, error) {
	return s.Internal.ChunkGet(ctx, c)
}

func (s *SvdbStruct) ManifestGet(ctx context.Context, root cid.Cid) (*ManifestInfo, error) {
	return s.Internal.ManifestGet(ctx, root)
}
