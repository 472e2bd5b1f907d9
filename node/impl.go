package node

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/gbrlsnchs/jwt/v3"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"

	"github.com/svdb-project/svdb/api"
	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/chunkstore"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/market"
	"github.com/svdb-project/svdb/proofengine"
	"github.com/svdb-project/svdb/types"
)

// SvdbAPI is the node-side implementation of the JSON-RPC interface.
type SvdbAPI struct {
	n *Node
}

func NewSvdbAPI(n *Node) *SvdbAPI {
	return &SvdbAPI{n: n}
}

var _ api.Svdb = (*SvdbAPI)(nil)

func (a *SvdbAPI) AuthVerify(ctx context.Context, token string) ([]auth.Permission, error) {
	var payload jwtPayload
	if _, err := jwt.Verify([]byte(token), a.n.secret, &payload); err != nil {
		return nil, xerrors.Errorf("JWT Verification failed: %w", err)
	}
	return payload.Allow, nil
}

func (a *SvdbAPI) AuthNew(ctx context.Context, perms []auth.Permission) ([]byte, error) {
	return jwt.Sign(&jwtPayload{Allow: perms}, a.n.secret)
}

func (a *SvdbAPI) Version(ctx context.Context) (string, error) {
	return build.UserVersion(), nil
}

func (a *SvdbAPI) DealCreate(ctx context.Context, params api.DealParams) (*types.Deal, error) {
	return a.n.Ledger.CreateDeal(ctx, ledger.CreateDealParams{
		Payer:         params.Payer,
		ManifestRoot:  params.ManifestRoot,
		SizeBytes:     params.SizeBytes,
		Replicas:      params.Replicas,
		Months:        params.Months,
		PricePerEpoch: params.PricePerEpoch,
		StartEpoch:    params.StartEpoch,
	})
}

func (a *SvdbAPI) DealGet(ctx context.Context, id uuid.UUID) (*types.Deal, error) {
	return a.n.Deals.ByID(ctx, id)
}

func (a *SvdbAPI) DealList(ctx context.Context, offset int, limit int) ([]*types.Deal, error) {
	return a.n.Deals.List(ctx, offset, limit)
}

func (a *SvdbAPI) DealCancel(ctx context.Context, id uuid.UUID) (*types.Deal, error) {
	return a.n.Ledger.CancelDeal(ctx, id)
}

func (a *SvdbAPI) DealsByManifest(ctx context.Context, root cid.Cid) ([]*types.Deal, error) {
	return a.n.Deals.ByManifestRoot(ctx, root)
}

func (a *SvdbAPI) DealLogs(ctx context.Context, id uuid.UUID) ([]db.DealLog, error) {
	return a.n.Logs.Logs(ctx, id)
}

func (a *SvdbAPI) WalletBalance(ctx context.Context, addr address.Address) (abi.TokenAmount, error) {
	return a.n.Wallet.Balance(ctx, addr)
}

func (a *SvdbAPI) ProviderRegister(ctx context.Context, params api.ProviderParams) (*types.Provider, error) {
	return a.n.Engine.RegisterProvider(ctx, params.Addr, params.Stake, proofengine.ProviderCaps{
		Region:    params.Region,
		GPU:       params.GPU,
		Bandwidth: params.Bandwidth,
	})
}

func (a *SvdbAPI) ProviderGet(ctx context.Context, addr address.Address) (*types.Provider, error) {
	return a.n.Provs.ByAddr(ctx, addr)
}

func (a *SvdbAPI) ProviderDeactivate(ctx context.Context, addr address.Address) (abi.TokenAmount, error) {
	return a.n.Engine.Deactivate(ctx, addr)
}

func (a *SvdbAPI) SealRegister(ctx context.Context, root cid.Cid, provider address.Address, randomness []byte) (*types.Seal, error) {
	return a.n.Engine.RegisterSeal(ctx, root, provider, randomness)
}

func (a *SvdbAPI) ChallengesOpen(ctx context.Context, provider address.Address) ([]*types.Challenge, error) {
	return a.n.Chals.OpenByProvider(ctx, provider)
}

func (a *SvdbAPI) ProofSubmit(ctx context.Context, challengeID uuid.UUID, proof *types.Proof) error {
	return a.n.Engine.SubmitProof(ctx, challengeID, proof)
}

func (a *SvdbAPI) OfferPublish(ctx context.Context, offer *types.Offer) error {
	return a.n.Market.PublishOffer(ctx, offer)
}

func (a *SvdbAPI) OfferList(ctx context.Context, query market.OfferQuery) ([]*market.RankedOffer, error) {
	return a.n.Market.ListOffers(ctx, query)
}

func (a *SvdbAPI) SlaStart(ctx context.Context, params api.SlaParams) (*types.SLA, error) {
	return a.n.Market.StartSLA(ctx, params.Client, params.Provider, params.ManifestRoot, params.Tier)
}

func (a *SvdbAPI) SlaReportLatency(ctx context.Context, id uuid.UUID, measuredMs uint64) (*types.SLA, error) {
	return a.n.Market.ReportLatency(ctx, id, measuredMs)
}

func (a *SvdbAPI) RepairListOpen(ctx context.Context) ([]*types.RepairTask, error) {
	return a.n.Tasks.ListOpen(ctx)
}

func (a *SvdbAPI) RepairSubmit(ctx context.Context, taskID uuid.UUID, repairer address.Address, shard []byte) (abi.TokenAmount, error) {
	return a.n.Auction.SubmitRepair(ctx, taskID, repairer, shard)
}

func (a *SvdbAPI) DataAdd(ctx context.Context, data []byte) (cid.Cid, error) {
	root, _, err := a.n.Store.AddData(ctx, data, chunkstore.AddDataParams{})
	return root, err
}

func (a *SvdbAPI) ChunkGet(ctx context.Context, c cid.Cid) ([]byte, error) {
	return a.n.Store.Get(ctx, c)
}

func (a *SvdbAPI) ManifestGet(ctx context.Context, root cid.Cid) (*api.ManifestInfo, error) {
	m, err := a.n.Store.GetManifest(ctx, root)
	if err != nil {
		return nil, err
	}
	return &api.ManifestInfo{
		Root:         root,
		Chunks:       m.Chunks,
		ChunkSize:    m.ChunkSize,
		TotalSize:    m.TotalSize,
		DataShards:   m.DataShards,
		ParityShards: m.ParityShards,
		MerkleRoot:   m.MerkleRoot,
	}, nil
}
