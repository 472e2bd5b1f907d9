package main

import (
	"fmt"
	"os"

	"github.com/filecoin-project/go-address"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/svdb-project/svdb/cmd"
)

var repairCmd = &cli.Command{
	Name:  "repair",
	Usage: "Work the repair bounty auction",
	Subcommands: []*cli.Command{
		repairListCmd,
		repairSubmitCmd,
	},
}

var repairListCmd = &cli.Command{
	Name:   "list",
	Usage:  "List open repair tasks",
	Before: before,
	Action: func(cctx *cli.Context) error {
		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		tasks, err := napi.RepairListOpen(cctx.Context)
		if err != nil {
			return err
		}

		if cctx.Bool("json") {
			return cmd.PrintJson(tasks)
		}
		for _, task := range tasks {
			fmt.Printf("%s  %s  shard %d  bounty %s  deadline %s\n",
				task.ID, task.ManifestRoot, task.ShardIndex, task.Bounty,
				task.Deadline.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var repairSubmitCmd = &cli.Command{
	Name:      "submit",
	Usage:     "Submit a rebuilt shard and claim the bounty",
	ArgsUsage: "<task id> <repairer address> <shard file>",
	Before:    before,
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 3 {
			return fmt.Errorf("must supply a task id, a repairer address and a shard file")
		}
		id, err := uuid.Parse(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("parsing task id: %w", err)
		}
		repairer, err := address.NewFromString(cctx.Args().Get(1))
		if err != nil {
			return fmt.Errorf("parsing repairer address: %w", err)
		}
		shard, err := os.ReadFile(cctx.Args().Get(2))
		if err != nil {
			return fmt.Errorf("reading shard file: %w", err)
		}

		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		bounty, err := napi.RepairSubmit(cctx.Context, id, repairer, shard)
		if err != nil {
			return err
		}
		fmt.Printf("repair accepted, paid %s to %s\n", bounty, repairer)
		return nil
	},
}
