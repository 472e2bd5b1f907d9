package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"

	"github.com/svdb-project/svdb/cmd"
)

var dataCmd = &cli.Command{
	Name:  "data",
	Usage: "Ingest and retrieve content",
	Subcommands: []*cli.Command{
		dataAddCmd,
		dataGetCmd,
		dataManifestCmd,
	},
}

var dataAddCmd = &cli.Command{
	Name:      "add",
	Usage:     "Ingest a file and print its manifest root",
	ArgsUsage: "<file>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must supply a file to ingest")
		}
		data, err := os.ReadFile(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("reading %s: %w", cctx.Args().First(), err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		root, err := napi.DataAdd(cctx.Context, data)
		if err != nil {
			return err
		}
		fmt.Println(root)
		return nil
	},
}

var dataGetCmd = &cli.Command{
	Name:      "get",
	Usage:     "Fetch one chunk by cid",
	ArgsUsage: "<cid> [output file]",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() < 1 {
			return fmt.Errorf("must supply a chunk cid")
		}
		c, err := cid.Parse(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing chunk cid: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		data, err := napi.ChunkGet(cctx.Context, c)
		if err != nil {
			return err
		}

		if out := cctx.Args().Get(1); out != "" {
			return os.WriteFile(out, data, 0644)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var dataManifestCmd = &cli.Command{
	Name:      "manifest",
	Usage:     "Show a manifest",
	ArgsUsage: "<root cid>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 1 {
			return fmt.Errorf("must supply a manifest root cid")
		}
		root, err := cid.Parse(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing manifest root: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		info, err := napi.ManifestGet(cctx.Context, root)
		if err != nil {
			return err
		}
		return cmd.PrintJson(info)
	},
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
