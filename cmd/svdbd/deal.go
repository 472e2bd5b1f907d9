package main

import (
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"

	"github.com/svdb-project/svdb/api"
	"github.com/svdb-project/svdb/cmd"
)

var dealCmd = &cli.Command{
	Name:  "deal",
	Usage: "Manage storage deals",
	Subcommands: []*cli.Command{
		dealCreateCmd,
		dealGetCmd,
		dealListCmd,
		dealCancelCmd,
		dealLogsCmd,
		walletBalanceCmd,
	},
}

var dealCreateCmd = &cli.Command{
	Name:   "create",
	Usage:  "Create a storage deal against an ingested manifest",
	Before: before,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "payer",
			Usage:    "address paying the escrow",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "root",
			Usage:    "manifest root cid",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "size",
			Usage:    "payload size in bytes",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "replicas",
			Usage: "number of replicas to maintain",
			Value: 1,
		},
		&cli.IntFlag{
			Name:  "months",
			Usage: "deal term in months",
			Value: 1,
		},
		&cli.StringFlag{
			Name:  "price",
			Usage: "price per replica per epoch, empty uses the governance price",
		},
		&cli.Int64Flag{
			Name:  "start-epoch",
			Usage: "first epoch of the deal term",
		},
	},
	Action: func(cctx *cli.Context) error {
		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		payer, err := address.NewFromString(cctx.String("payer"))
		if err != nil {
			return fmt.Errorf("parsing payer address: %w", err)
		}
		root, err := cid.Parse(cctx.String("root"))
		if err != nil {
			return fmt.Errorf("parsing manifest root: %w", err)
		}

		params := api.DealParams{
			Payer:        payer,
			ManifestRoot: root,
			SizeBytes:    cctx.Uint64("size"),
			Replicas:     cctx.Int("replicas"),
			Months:       cctx.Int("months"),
			StartEpoch:   abi.ChainEpoch(cctx.Int64("start-epoch")),
		}
		if price := cctx.String("price"); price != "" {
			params.PricePerEpoch, err = big.FromString(price)
			if err != nil {
				return fmt.Errorf("parsing price: %w", err)
			}
		}

		deal, err := napi.DealCreate(cctx.Context, params)
		if err != nil {
			return err
		}

		if cctx.Bool("json") {
			return cmd.PrintJson(deal)
		}
		fmt.Printf("created deal %s: %d replicas, epochs %d-%d, %s per epoch\n",
			deal.ID, deal.Replicas, deal.StartEpoch, deal.EndEpoch(), deal.PricePerEpoch)
		return nil
	},
}

var dealGetCmd = &cli.Command{
	Name:      "get",
	Usage:     "Show a deal",
	ArgsUsage: "<deal id>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must supply a deal id")
		}
		id, err := uuid.Parse(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing deal id: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		deal, err := napi.DealGet(cctx.Context, id)
		if err != nil {
			return err
		}
		return cmd.PrintJson(deal)
	},
}

var dealListCmd = &cli.Command{
	Name:   "list",
	Usage:  "List deals",
	Before: before,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "offset",
			Value: 0,
		},
		&cli.IntFlag{
			Name:  "limit",
			Value: 20,
		},
	},
	Action: func(cctx *cli.Context) error {
		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		deals, err := napi.DealList(cctx.Context, cctx.Int("offset"), cctx.Int("limit"))
		if err != nil {
			return err
		}

		if cctx.Bool("json") {
			return cmd.PrintJson(deals)
		}
		for _, deal := range deals {
			fmt.Printf("%s  %s  %s  epochs %d-%d  streamed %s\n",
				deal.ID, deal.State, deal.ManifestRoot, deal.StartEpoch, deal.EndEpoch(), deal.Streamed)
		}
		return nil
	},
}

var dealCancelCmd = &cli.Command{
	Name:      "cancel",
	Usage:     "Cancel a deal and refund the unstreamed escrow",
	ArgsUsage: "<deal id>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must supply a deal id")
		}
		id, err := uuid.Parse(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing deal id: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		deal, err := napi.DealCancel(cctx.Context, id)
		if err != nil {
			return err
		}
		fmt.Printf("cancelled deal %s, refunded %s\n", deal.ID, deal.Refunded)
		return nil
	},
}

var dealLogsCmd = &cli.Command{
	Name:      "logs",
	Usage:     "Show a deal's event history",
	ArgsUsage: "<deal id>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must supply a deal id")
		}
		id, err := uuid.Parse(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing deal id: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		logs, err := napi.DealLogs(cctx.Context, id)
		if err != nil {
			return err
		}

		if cctx.Bool("json") {
			return cmd.PrintJson(logs)
		}
		for _, l := range logs {
			fmt.Printf("%s  %-18s %s\n", l.CreatedAt.Format("2006-01-02 15:04:05"), l.LogMsg, l.LogParams)
		}
		return nil
	},
}

var walletBalanceCmd = &cli.Command{
	Name:      "balance",
	Usage:     "Show an account balance",
	ArgsUsage: "<address>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must supply an address")
		}
		addr, err := address.NewFromString(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing address: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		bal, err := napi.WalletBalance(cctx.Context, addr)
		if err != nil {
			return err
		}
		fmt.Println(bal)
		return nil
	},
}
