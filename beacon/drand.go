package beacon

import (
	"bytes"
	"context"
	"time"

	dcommon "github.com/drand/drand/v2/common"
	dchain "github.com/drand/drand/v2/common/chain"
	dlog "github.com/drand/drand/v2/common/log"
	dcrypto "github.com/drand/drand/v2/crypto"
	dclient "github.com/drand/go-clients/client"
	hclient "github.com/drand/go-clients/client/http"
	drand "github.com/drand/go-clients/drand"
	"github.com/drand/kyber"
	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/abi"

	"github.com/svdb-project/svdb/build"
)

var log = logging.Logger("beacon")

// DrandConfig is the trust root and endpoints for one drand network.
type DrandConfig struct {
	Servers       []string
	ChainInfoJSON string
}

// DrandBeacon fetches randomness from a drand network over its public HTTP
// endpoints and aligns drand rounds with proof epochs.
type DrandBeacon struct {
	client drand.Client

	pubkey kyber.Point
	scheme *dcrypto.Scheme

	interval     time.Duration
	drandGenTime uint64
	genTime      uint64
	epochTime    uint64

	localCache *lru.Cache[uint64, Entry]
}

var _ RandomBeacon = (*DrandBeacon)(nil)

type logger struct {
	*zap.SugaredLogger
	name string
}

func (l *logger) With(args ...interface{}) dlog.Logger {
	return &logger{l.SugaredLogger.With(args...), l.name}
}

func (l *logger) Named(s string) dlog.Logger {
	newName := l.name
	if newName != "" {
		newName += "."
	}
	newName += s
	return &logger{l.SugaredLogger.Named(s), newName}
}

func (l *logger) AddCallerSkip(skip int) dlog.Logger {
	return &logger{l.SugaredLogger.With(zap.AddCallerSkip(skip)), l.name}
}

func (l *logger) Name() string {
	return l.name
}

// NewDrandBeacon builds a client over the configured drand servers.
// genesisTs is the unix timestamp of epoch 0.
func NewDrandBeacon(genesisTs uint64, config DrandConfig) (*DrandBeacon, error) {
	if genesisTs == 0 {
		return nil, xerrors.Errorf("genesis timestamp cannot be zero")
	}

	drandChain, err := dchain.InfoFromJSON(bytes.NewReader([]byte(config.ChainInfoJSON)))
	if err != nil {
		return nil, xerrors.Errorf("unable to unmarshal drand chain info: %w", err)
	}

	var clients []drand.Client
	for _, url := range config.Servers {
		hc, err := hclient.NewWithInfo(&logger{&log.SugaredLogger, "beacon"}, url, drandChain, nil)
		if err != nil {
			return nil, xerrors.Errorf("could not create http drand client: %w", err)
		}
		hc.SetUserAgent("drand-client-svdb/" + build.BuildVersion)
		clients = append(clients, hc)
	}
	if len(clients) == 0 {
		clients = append(clients, dclient.EmptyClientWithInfo(drandChain))
	}

	opts := []dclient.Option{
		dclient.WithChainInfo(drandChain),
		dclient.WithCacheSize(1024),
		dclient.WithLogger(&logger{&log.SugaredLogger, "beacon"}),
	}

	client, err := dclient.Wrap(clients, opts...)
	if err != nil {
		return nil, xerrors.Errorf("creating drand client: %w", err)
	}

	lc, err := lru.New[uint64, Entry](1024)
	if err != nil {
		return nil, err
	}

	sch, err := dcrypto.GetSchemeByID(drandChain.Scheme)
	if err != nil {
		return nil, xerrors.Errorf("unknown drand scheme %s: %w", drandChain.Scheme, err)
	}

	return &DrandBeacon{
		client:       client,
		pubkey:       drandChain.PublicKey,
		scheme:       sch,
		interval:     drandChain.Period,
		drandGenTime: uint64(drandChain.GenesisTime),
		genTime:      genesisTs,
		epochTime:    uint64(build.EpochDuration / time.Second),
		localCache:   lc,
	}, nil
}

func (db *DrandBeacon) Entry(ctx context.Context, round uint64) (Entry, error) {
	if round != 0 {
		if e, ok := db.localCache.Get(round); ok {
			return e, nil
		}
	}

	start := time.Now()
	log.Debugw("start fetching randomness", "round", round)
	resp, err := db.client.Get(ctx, round)
	if err != nil {
		return Entry{}, xerrors.Errorf("drand failed Get request: %w", err)
	}
	log.Debugw("done fetching randomness", "round", round, "took", time.Since(start))

	e := Entry{Round: resp.GetRound(), Data: resp.GetSignature()}
	db.localCache.Add(e.Round, e)
	return e, nil
}

// VerifyEntry checks an entry's signature against the drand chain's public
// key. prevSig is required for chained schemes only.
func (db *DrandBeacon) VerifyEntry(entry Entry, prevSig []byte) error {
	if cached, ok := db.localCache.Get(entry.Round); ok {
		if !bytes.Equal(entry.Data, cached.Data) {
			return xerrors.New("invalid beacon value, does not match cached good value")
		}
		return nil
	}

	b := &dcommon.Beacon{
		PreviousSig: prevSig,
		Round:       entry.Round,
		Signature:   entry.Data,
	}
	if err := db.scheme.VerifyBeacon(b, db.pubkey); err != nil {
		return xerrors.Errorf("failed to verify beacon: %w", err)
	}

	db.localCache.Add(entry.Round, entry)
	return nil
}

func (db *DrandBeacon) MaxBeaconRoundForEpoch(epoch abi.ChainEpoch) uint64 {
	if epoch < 0 {
		epoch = 0
	}
	latestTs := uint64(epoch)*db.epochTime + db.genTime
	if latestTs <= db.drandGenTime {
		return 1
	}

	fromGenesis := latestTs - db.drandGenTime
	// we take the time from genesis divided by the periods in seconds, that
	// gives us the number of periods since genesis. Round 1 is the first
	// period after genesis, so we add one.
	return fromGenesis/uint64(db.interval.Seconds()) + 1
}
