// Package node wires an svdb node together: the sqlite ledger, the
// leveldb chunk store, the proof engine, the market, the repair auction
// and the scheduler, behind one JSON-RPC surface.
package node

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/filecoin-project/go-address"
	"github.com/gbrlsnchs/jwt/v3"
	levelds "github.com/ipfs/go-ds-leveldb"
	logging "github.com/ipfs/go-log/v2"
	ldbopts "github.com/syndtr/goleveldb/leveldb/opt"
	"golang.org/x/xerrors"

	"github.com/svdb-project/svdb/beacon"
	"github.com/svdb-project/svdb/chunkstore"
	"github.com/svdb-project/svdb/db"
	"github.com/svdb-project/svdb/ledger"
	"github.com/svdb-project/svdb/market"
	"github.com/svdb-project/svdb/metrics"
	"github.com/svdb-project/svdb/proofengine"
	"github.com/svdb-project/svdb/prover"
	"github.com/svdb-project/svdb/repair"
	"github.com/svdb-project/svdb/scheduler"
	"github.com/svdb-project/svdb/storagehttp"
	"github.com/svdb-project/svdb/svdbevents"
)

var log = logging.Logger("node")

type Config struct {
	// RepoDir holds the sqlite database and the leveldb chunk store.
	RepoDir string

	// GenesisTime anchors epoch numbering. Zero means "now", which starts
	// a fresh proof history.
	GenesisTime time.Time

	// ProviderAddr enables the provider-side scheduler loop.
	ProviderAddr address.Address
	// ProverURL points at an external prover worker. Empty means proofs
	// are computed in-process.
	ProverURL     string
	ProverTimeout time.Duration

	// Drand configures the randomness beacon. Nil means the insecure
	// devnet beacon.
	Drand *beacon.DrandConfig

	// HTTPPort serves chunk retrieval; zero disables the server.
	HTTPPort int
}

type Node struct {
	cfg Config

	DB     *sql.DB
	Deals  *db.DealsDB
	Seals  *db.SealsDB
	Chals  *db.ChallengesDB
	Provs  *db.ProvidersDB
	Offers *db.OffersDB
	Slas   *db.SlasDB
	Tasks  *db.RepairsDB
	Wallet *db.WalletDB
	Gov    *db.GovParamsDB
	Sched  *db.SchedulerDB
	Logs   *db.LogsDB
	Funds  *db.FundsDB

	Store   *chunkstore.Store
	Ledger  *ledger.Ledger
	Engine  *proofengine.Engine
	Market  *market.Market
	Auction *repair.Auction
	Events  *svdbevents.Bus
	Beacon  beacon.RandomBeacon
	Loop    *scheduler.Scheduler

	httpServer *storagehttp.HttpServer
	unsub      svdbevents.Unsubscribe
	closeDS    func() error
	secret     *jwt.HMACSHA
}

func New(ctx context.Context, cfg Config) (*Node, error) {
	if err := os.MkdirAll(cfg.RepoDir, 0755); err != nil {
		return nil, xerrors.Errorf("creating repo dir %s: %w", cfg.RepoDir, err)
	}
	if cfg.GenesisTime.IsZero() {
		cfg.GenesisTime = time.Now()
	}

	secret, err := apiSecret(cfg.RepoDir)
	if err != nil {
		return nil, err
	}

	sqldb, err := db.SqlDB(filepath.Join(cfg.RepoDir, "svdb.db"))
	if err != nil {
		return nil, xerrors.Errorf("opening svdb db: %w", err)
	}
	if err := db.CreateAllTables(ctx, sqldb); err != nil {
		return nil, xerrors.Errorf("creating svdb tables: %w", err)
	}
	if err := db.Migrate(sqldb); err != nil {
		return nil, xerrors.Errorf("migrating svdb db: %w", err)
	}

	dsDir := filepath.Join(cfg.RepoDir, "chunks")
	if err := os.MkdirAll(dsDir, 0755); err != nil {
		return nil, xerrors.Errorf("creating chunk store dir %s: %w", dsDir, err)
	}
	ds, err := levelds.NewDatastore(dsDir, &levelds.Options{
		Compression: ldbopts.NoCompression,
		NoSync:      false,
		Strict:      ldbopts.StrictAll,
	})
	if err != nil {
		return nil, xerrors.Errorf("opening chunk store: %w", err)
	}

	var bcn beacon.RandomBeacon
	if cfg.Drand != nil {
		bcn, err = beacon.NewDrandBeacon(uint64(cfg.GenesisTime.Unix()), *cfg.Drand)
		if err != nil {
			return nil, xerrors.Errorf("creating drand beacon: %w", err)
		}
	} else {
		log.Warnw("no drand config, using the insecure devnet beacon")
		bcn = beacon.NewMockBeacon()
	}

	clk := clock.New()
	events := svdbevents.NewBus()
	store := chunkstore.NewStore(ds)

	dealsDB := db.NewDealsDB(sqldb)
	sealsDB := db.NewSealsDB(sqldb)
	chalsDB := db.NewChallengesDB(sqldb)
	provsDB := db.NewProvidersDB(sqldb)
	offersDB := db.NewOffersDB(sqldb)
	slasDB := db.NewSlasDB(sqldb)
	tasksDB := db.NewRepairsDB(sqldb)
	walletDB := db.NewWalletDB(sqldb)
	govDB := db.NewGovParamsDB(sqldb)
	schedDB := db.NewSchedulerDB(sqldb)
	logsDB := db.NewLogsDB(sqldb)
	fundsDB := db.NewFundsDB(sqldb)

	ldg := ledger.New(dealsDB, walletDB, govDB, events, clk)
	eng := proofengine.New(proofengine.Config{
		Deals:      dealsDB,
		Seals:      sealsDB,
		Challenges: chalsDB,
		Providers:  provsDB,
		Wallet:     walletDB,
		Store:      store,
		Ledger:     ldg,
		Events:     events,
		Clock:      clk,
	})
	mkt := market.New(offersDB, slasDB, provsDB, walletDB, events, clk)
	auction := repair.NewAuction(tasksDB, dealsDB, walletDB, store, ldg, events, clk)

	var prv prover.Prover
	if cfg.ProverURL != "" {
		timeout := cfg.ProverTimeout
		if timeout == 0 {
			timeout = prover.DefaultTimeout
		}
		prv = prover.NewClient(cfg.ProverURL, timeout)
	} else {
		prv = prover.NewMockProver()
	}

	loop := scheduler.New(scheduler.Config{
		Deals:        dealsDB,
		Seals:        sealsDB,
		Sched:        schedDB,
		Store:        store,
		Ledger:       ldg,
		Engine:       eng,
		Auction:      auction,
		Beacon:       bcn,
		Clock:        clk,
		Challenge:    chalsDB,
		GenesisTime:  cfg.GenesisTime,
		ProviderAddr: cfg.ProviderAddr,
		Prover:       prv,
	})

	n := &Node{
		cfg:     cfg,
		DB:      sqldb,
		Deals:   dealsDB,
		Seals:   sealsDB,
		Chals:   chalsDB,
		Provs:   provsDB,
		Offers:  offersDB,
		Slas:    slasDB,
		Tasks:   tasksDB,
		Wallet:  walletDB,
		Gov:     govDB,
		Sched:   schedDB,
		Logs:    logsDB,
		Funds:   fundsDB,
		Store:   store,
		Ledger:  ldg,
		Engine:  eng,
		Market:  mkt,
		Auction: auction,
		Events:  events,
		Beacon:  bcn,
		Loop:    loop,
		closeDS: ds.Close,
		secret:  secret,
	}
	metricsUnsub := metrics.ObserveBus(events)
	persistUnsub := persistEvents(events, logsDB, fundsDB)
	n.unsub = func() {
		metricsUnsub()
		persistUnsub()
	}
	return n, nil
}

// Start launches the scheduler loop and the storage HTTP server.
func (n *Node) Start(ctx context.Context) {
	if n.cfg.HTTPPort > 0 {
		n.httpServer = storagehttp.NewHttpServer(n.cfg.HTTPPort, n.Store)
		n.httpServer.Start(ctx)
		log.Infow("storage http server started", "port", n.cfg.HTTPPort)
	}

	go func() {
		if err := n.Loop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("scheduler stopped", "err", err)
		}
	}()
}

func (n *Node) Close() error {
	if n.unsub != nil {
		n.unsub()
	}
	if n.httpServer != nil {
		if err := n.httpServer.Stop(); err != nil {
			log.Errorw("stopping http server", "err", err)
		}
	}
	if err := n.closeDS(); err != nil {
		return fmt.Errorf("closing chunk store: %w", err)
	}
	return n.DB.Close()
}
