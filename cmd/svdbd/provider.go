package main

import (
	"encoding/hex"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"

	"github.com/svdb-project/svdb/api"
	"github.com/svdb-project/svdb/cmd"
)

var providerCmd = &cli.Command{
	Name:  "provider",
	Usage: "Manage storage providers",
	Subcommands: []*cli.Command{
		providerRegisterCmd,
		providerGetCmd,
		providerDeactivateCmd,
		providerSealCmd,
	},
}

var providerRegisterCmd = &cli.Command{
	Name:   "register",
	Usage:  "Register a provider by staking collateral",
	Before: before,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "addr",
			Usage:    "provider address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "stake",
			Usage:    "stake amount to lock",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "region",
			Usage: "provider region label",
		},
		&cli.BoolFlag{
			Name:  "gpu",
			Usage: "provider has GPU proving hardware",
		},
		&cli.Uint64Flag{
			Name:  "bandwidth",
			Usage: "advertised bandwidth in bytes per second",
		},
	},
	Action: func(cctx *cli.Context) error {
		addr, err := address.NewFromString(cctx.String("addr"))
		if err != nil {
			return fmt.Errorf("parsing provider address: %w", err)
		}
		stake, err := big.FromString(cctx.String("stake"))
		if err != nil {
			return fmt.Errorf("parsing stake: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		prov, err := napi.ProviderRegister(cctx.Context, api.ProviderParams{
			Addr:      addr,
			Stake:     stake,
			Region:    cctx.String("region"),
			GPU:       cctx.Bool("gpu"),
			Bandwidth: cctx.Uint64("bandwidth"),
		})
		if err != nil {
			return err
		}

		fmt.Printf("registered provider %s with stake %s, reputation %d\n",
			prov.Addr, prov.Stake, prov.Reputation)
		return nil
	},
}

var providerGetCmd = &cli.Command{
	Name:      "get",
	Usage:     "Show a provider",
	ArgsUsage: "<address>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must supply a provider address")
		}
		addr, err := address.NewFromString(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing provider address: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		prov, err := napi.ProviderGet(cctx.Context, addr)
		if err != nil {
			return err
		}
		return cmd.PrintJson(prov)
	},
}

var providerDeactivateCmd = &cli.Command{
	Name:      "deactivate",
	Usage:     "Deactivate a provider and return its remaining stake",
	ArgsUsage: "<address>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must supply a provider address")
		}
		addr, err := address.NewFromString(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing provider address: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		returned, err := napi.ProviderDeactivate(cctx.Context, addr)
		if err != nil {
			return err
		}
		fmt.Printf("deactivated %s, returned stake %s\n", addr, returned)
		return nil
	},
}

var providerSealCmd = &cli.Command{
	Name:   "seal",
	Usage:  "Register a sealed replica of a manifest",
	Before: before,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "addr",
			Usage:    "provider address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "root",
			Usage:    "manifest root cid",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "randomness",
			Usage:    "hex-encoded sealing randomness",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		addr, err := address.NewFromString(cctx.String("addr"))
		if err != nil {
			return fmt.Errorf("parsing provider address: %w", err)
		}
		root, err := cid.Parse(cctx.String("root"))
		if err != nil {
			return fmt.Errorf("parsing manifest root: %w", err)
		}
		randomness, err := hex.DecodeString(cctx.String("randomness"))
		if err != nil {
			return fmt.Errorf("parsing randomness: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		seal, err := napi.SealRegister(cctx.Context, root, addr, randomness)
		if err != nil {
			return err
		}
		fmt.Printf("registered seal %x over %s for %s\n", seal.Commitment, root, addr)
		return nil
	},
}

var proofsCmd = &cli.Command{
	Name:  "proofs",
	Usage: "Inspect proof challenges",
	Subcommands: []*cli.Command{
		proofsListCmd,
	},
}

var proofsListCmd = &cli.Command{
	Name:      "list",
	Usage:     "List a provider's open challenges",
	ArgsUsage: "<provider address>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must supply a provider address")
		}
		addr, err := address.NewFromString(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing provider address: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		chals, err := napi.ChallengesOpen(cctx.Context, addr)
		if err != nil {
			return err
		}

		if cctx.Bool("json") {
			return cmd.PrintJson(chals)
		}
		for _, ch := range chals {
			fmt.Printf("%s  %s  epoch %d  chunk %d  deadline %s\n",
				ch.ID, ch.Type, ch.Epoch, ch.ChunkIndex, ch.Deadline.Format("15:04:05"))
		}
		return nil
	},
}
