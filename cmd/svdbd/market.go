package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"

	"github.com/svdb-project/svdb/api"
	"github.com/svdb-project/svdb/cmd"
	"github.com/svdb-project/svdb/market"
	"github.com/svdb-project/svdb/types"
)

var offerCmd = &cli.Command{
	Name:  "offer",
	Usage: "Manage capacity offers",
	Subcommands: []*cli.Command{
		offerPublishCmd,
		offerListCmd,
	},
}

var offerPublishCmd = &cli.Command{
	Name:   "publish",
	Usage:  "Publish a capacity offer",
	Before: before,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "provider",
			Usage:    "provider address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "price",
			Usage:    "price per GB-month",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "capacity",
			Usage:    "offered capacity in bytes",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "region label",
		},
		&cli.StringFlag{
			Name:  "tier",
			Usage: "SLA tier: Bronze, Silver, Gold or Platinum",
			Value: "Bronze",
		},
		&cli.BoolFlag{
			Name:  "gpu",
			Usage: "offer GPU proving",
		},
		&cli.Uint64Flag{
			Name:  "latency",
			Usage: "expected retrieval latency in milliseconds",
		},
	},
	Action: func(cctx *cli.Context) error {
		provider, err := address.NewFromString(cctx.String("provider"))
		if err != nil {
			return fmt.Errorf("parsing provider address: %w", err)
		}
		price, err := big.FromString(cctx.String("price"))
		if err != nil {
			return fmt.Errorf("parsing price: %w", err)
		}
		tier, err := types.SlaTierFromString(cctx.String("tier"))
		if err != nil {
			return err
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		err = napi.OfferPublish(cctx.Context, &types.Offer{
			Provider:          provider,
			Region:            cctx.String("region"),
			PricePerGBMonth:   price,
			Tier:              tier,
			CapacityBytes:     cctx.Uint64("capacity"),
			GPU:               cctx.Bool("gpu"),
			ExpectedLatencyMs: cctx.Uint64("latency"),
		})
		if err != nil {
			return err
		}
		fmt.Printf("published offer for %s: %s per GB-month, %d bytes\n",
			provider, price, cctx.Uint64("capacity"))
		return nil
	},
}

var offerListCmd = &cli.Command{
	Name:   "list",
	Usage:  "List offers ranked by reputation and price",
	Before: before,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "region",
			Usage: "only offers in this region",
		},
		&cli.BoolFlag{
			Name:  "gpu",
			Usage: "only GPU-backed offers",
		},
		&cli.StringFlag{
			Name:  "max-price",
			Usage: "only offers at or below this price per GB-month",
		},
		&cli.IntFlag{
			Name:  "limit",
			Value: 20,
		},
	},
	Action: func(cctx *cli.Context) error {
		query := market.OfferQuery{
			Region: cctx.String("region"),
			GPU:    cctx.Bool("gpu"),
			Limit:  cctx.Int("limit"),
		}
		if mp := cctx.String("max-price"); mp != "" {
			price, err := big.FromString(mp)
			if err != nil {
				return fmt.Errorf("parsing max-price: %w", err)
			}
			query.MaxPrice = price
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		offers, err := napi.OfferList(cctx.Context, query)
		if err != nil {
			return err
		}

		if cctx.Bool("json") {
			return cmd.PrintJson(offers)
		}
		for _, o := range offers {
			fmt.Printf("%s  rep %4d  %s/GB-month  %s  %s  %s\n",
				o.Offer.Provider, o.Reputation, o.Offer.PricePerGBMonth,
				humanize.IBytes(o.Offer.CapacityBytes), o.Offer.Region, o.Offer.Tier)
		}
		return nil
	},
}

var slaCmd = &cli.Command{
	Name:  "sla",
	Usage: "Manage service level agreements",
	Subcommands: []*cli.Command{
		slaStartCmd,
		slaReportCmd,
	},
}

var slaStartCmd = &cli.Command{
	Name:   "start",
	Usage:  "Start an SLA against a provider's offer",
	Before: before,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "client",
			Usage:    "client address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "provider",
			Usage:    "provider address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "root",
			Usage:    "manifest root cid",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "tier",
			Usage: "SLA tier: Bronze, Silver, Gold or Platinum",
			Value: "Bronze",
		},
	},
	Action: func(cctx *cli.Context) error {
		clientAddr, err := address.NewFromString(cctx.String("client"))
		if err != nil {
			return fmt.Errorf("parsing client address: %w", err)
		}
		provider, err := address.NewFromString(cctx.String("provider"))
		if err != nil {
			return fmt.Errorf("parsing provider address: %w", err)
		}
		root, err := cid.Parse(cctx.String("root"))
		if err != nil {
			return fmt.Errorf("parsing manifest root: %w", err)
		}
		tier, err := types.SlaTierFromString(cctx.String("tier"))
		if err != nil {
			return err
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		sla, err := napi.SlaStart(cctx.Context, api.SlaParams{
			Client:       clientAddr,
			Provider:     provider,
			ManifestRoot: root,
			Tier:         tier,
		})
		if err != nil {
			return err
		}
		fmt.Printf("started %s SLA %s, collateral %s\n", sla.Tier, sla.ID, sla.Collateral)
		return nil
	},
}

var slaReportCmd = &cli.Command{
	Name:      "report",
	Usage:     "Report a retrieval latency sample",
	ArgsUsage: "<sla id> <latency ms>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 2 {
			return fmt.Errorf("must supply an sla id and a latency sample")
		}
		id, err := uuid.Parse(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing sla id: %w", err)
		}
		ms, err := parseUint(cctx.Args().Get(1))
		if err != nil {
			return fmt.Errorf("parsing latency: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		sla, err := napi.SlaReportLatency(cctx.Context, id, ms)
		if err != nil {
			return err
		}
		fmt.Printf("sla %s: %d violations, state %s\n", sla.ID, sla.Violations, sla.State)
		return nil
	},
}
