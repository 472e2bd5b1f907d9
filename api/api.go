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

//                       MODIFYING THE API INTERFACE
//
// When adding / changing methods in this file:
// * Do the change here
// * Adjust the implementation in `node/`
// * Adjust the proxy struct in `proxy.go`

// Svdb is the JSON-RPC surface of an svdb node.
type Svdb interface {
	// MethodGroup: Auth

	AuthVerify(ctx context.Context, token string) ([]auth.Permission, error) //perm:read
	AuthNew(ctx context.Context, perms []auth.Permission) ([]byte, error)    //perm:admin

	// MethodGroup: Node

	Version(ctx context.Context) (string, error) //perm:read

	// MethodGroup: Deals

	DealCreate(ctx context.Context, params DealParams) (*types.Deal, error)        //perm:write
	DealGet(ctx context.Context, id uuid.UUID) (*types.Deal, error)                //perm:read
	DealList(ctx context.Context, offset int, limit int) ([]*types.Deal, error)    //perm:read
	DealCancel(ctx context.Context, id uuid.UUID) (*types.Deal, error)             //perm:write
	DealsByManifest(ctx context.Context, root cid.Cid) ([]*types.Deal, error)      //perm:read
	DealLogs(ctx context.Context, id uuid.UUID) ([]db.DealLog, error)              //perm:read
	WalletBalance(ctx context.Context, addr address.Address) (abi.TokenAmount, error) //perm:read

	// MethodGroup: Providers

	ProviderRegister(ctx context.Context, params ProviderParams) (*types.Provider, error)           //perm:write
	ProviderGet(ctx context.Context, addr address.Address) (*types.Provider, error)                 //perm:read
	ProviderDeactivate(ctx context.Context, addr address.Address) (abi.TokenAmount, error)          //perm:admin
	SealRegister(ctx context.Context, root cid.Cid, provider address.Address, randomness []byte) (*types.Seal, error) //perm:write

	// MethodGroup: Proofs

	ChallengesOpen(ctx context.Context, provider address.Address) ([]*types.Challenge, error) //perm:read
	ProofSubmit(ctx context.Context, challengeID uuid.UUID, proof *types.Proof) error         //perm:write

	// MethodGroup: Market

	OfferPublish(ctx context.Context, offer *types.Offer) error                                //perm:write
	OfferList(ctx context.Context, query market.OfferQuery) ([]*market.RankedOffer, error)     //perm:read
	SlaStart(ctx context.Context, params SlaParams) (*types.SLA, error)                        //perm:write
	SlaReportLatency(ctx context.Context, id uuid.UUID, measuredMs uint64) (*types.SLA, error) //perm:write

	// MethodGroup: Repair

	RepairListOpen(ctx context.Context) ([]*types.RepairTask, error)                                               //perm:read
	RepairSubmit(ctx context.Context, taskID uuid.UUID, repairer address.Address, shard []byte) (abi.TokenAmount, error) //perm:write

	// MethodGroup: Storage

	DataAdd(ctx context.Context, data []byte) (cid.Cid, error)     //perm:write
	ChunkGet(ctx context.Context, c cid.Cid) ([]byte, error)       //perm:read
	ManifestGet(ctx context.Context, root cid.Cid) (*ManifestInfo, error) //perm:read
}

// DealParams are the createDeal request arguments.
type DealParams struct {
	Payer        address.Address
	ManifestRoot cid.Cid
	SizeBytes    uint64
	Replicas     int
	Months       int
	// PricePerEpoch is optional; zero means the governance price.
	PricePerEpoch abi.TokenAmount
	StartEpoch    abi.ChainEpoch
}

// ProviderParams are the provider registration arguments.
type ProviderParams struct {
	Addr      address.Address
	Stake     abi.TokenAmount
	Region    string
	GPU       bool
	Bandwidth uint64
}

// SlaParams are the startSla arguments.
type SlaParams struct {
	Client       address.Address
	Provider     address.Address
	ManifestRoot cid.Cid
	Tier         types.SlaTier
}

// ManifestInfo is the serialized form of a manifest that we expose through
// JSON-RPC to avoid clients having to depend on the chunkstore package.
type ManifestInfo struct {
	Root         cid.Cid
	Chunks       []cid.Cid
	ChunkSize    uint64
	TotalSize    uint64
	DataShards   int
	ParityShards int
	MerkleRoot   [32]byte
}
