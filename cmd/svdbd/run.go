package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/multiformats/go-multiaddr"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/svdb-project/svdb/beacon"
	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/cmd"
	"github.com/svdb-project/svdb/metrics"
	"github.com/svdb-project/svdb/node"
)

var runCmd = &cli.Command{
	Name:   "run",
	Usage:  "Start an svdb node",
	Before: before,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "api-port",
			Usage: "port for the JSON-RPC endpoint",
			Value: 1288,
		},
		&cli.IntFlag{
			Name:  "http-port",
			Usage: "port for chunk retrieval over http, 0 to disable",
			Value: 7777,
		},
		&cli.StringFlag{
			Name:  "provider",
			Usage: "provider address to answer challenges for",
		},
		&cli.StringFlag{
			Name:  "prover-url",
			Usage: "external prover worker endpoint, empty computes proofs in-process",
		},
		&cli.DurationFlag{
			Name:  "prover-timeout",
			Usage: "bound on a single prover request",
		},
		&cli.Int64Flag{
			Name:  "genesis",
			Usage: "genesis unix timestamp anchoring epoch numbering, 0 starts fresh",
		},
		&cli.StringSliceFlag{
			Name:  "drand-server",
			Usage: "drand http endpoint, repeatable; none uses the insecure devnet beacon",
		},
		&cli.StringFlag{
			Name:  "drand-chain-info",
			Usage: "path to the drand chain info json",
		},
		&cli.BoolFlag{
			Name:  "pprof",
			Usage: "run pprof web server on localhost:6060",
		},
		&cli.BoolFlag{
			Name:  "no-metrics",
			Usage: "stops emitting information about the node as metrics",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Bool("pprof") {
			go func() {
				err := http.ListenAndServe("localhost:6060", nil)
				if err != nil {
					log.Error(err)
				}
			}()
		}

		ctx := cmd.ReqContext(cctx)

		if !cctx.Bool("no-metrics") {
			ctx, _ = tag.New(ctx,
				tag.Insert(metrics.Version, build.BuildVersion),
				tag.Insert(metrics.Commit, build.CurrentCommit),
			)
			if err := view.Register(metrics.DefaultViews...); err != nil {
				log.Fatalf("Cannot register the view: %v", err)
			}
		}

		repoDir, err := cmd.RepoDir(cctx)
		if err != nil {
			return err
		}

		cfg := node.Config{
			RepoDir:       repoDir,
			ProverURL:     cctx.String("prover-url"),
			ProverTimeout: cctx.Duration("prover-timeout"),
			HTTPPort:      cctx.Int("http-port"),
		}
		if genesis := cctx.Int64("genesis"); genesis != 0 {
			cfg.GenesisTime = time.Unix(genesis, 0)
		}
		if prov := cctx.String("provider"); prov != "" {
			cfg.ProviderAddr, err = address.NewFromString(prov)
			if err != nil {
				return fmt.Errorf("parsing provider address %s: %w", prov, err)
			}
		}
		if servers := cctx.StringSlice("drand-server"); len(servers) > 0 {
			infoPath := cctx.String("drand-chain-info")
			if infoPath == "" {
				return fmt.Errorf("drand-server requires drand-chain-info")
			}
			info, err := os.ReadFile(infoPath)
			if err != nil {
				return fmt.Errorf("reading drand chain info: %w", err)
			}
			cfg.Drand = &beacon.DrandConfig{
				Servers:       servers,
				ChainInfoJSON: string(info),
			}
		}

		n, err := node.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("starting node: %w", err)
		}
		defer func() {
			if err := n.Close(); err != nil {
				log.Errorw("closing node", "err", err)
			}
		}()

		n.Start(ctx)

		handler, err := node.SvdbHandler(node.NewSvdbAPI(n), true)
		if err != nil {
			return fmt.Errorf("getting api handler: %w", err)
		}

		addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d/http", cctx.Int("api-port")))
		if err != nil {
			return err
		}
		stop, err := node.ServeRPC(handler, "svdbd", addr)
		if err != nil {
			return fmt.Errorf("serving rpc: %w", err)
		}

		log.Infow("svdb node running", "repo", repoDir, "api-port", cctx.Int("api-port"))

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return stop(shutdownCtx)
	},
}
