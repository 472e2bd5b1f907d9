package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/svdb-project/svdb/build"
	"github.com/svdb-project/svdb/cmd"
)

var log = logging.Logger("svdbd")

func main() {
	app := &cli.App{
		Name:                 "svdbd",
		Usage:                "Verifiable decentralized storage daemon",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			cmd.FlagRepo,
			cmd.FlagApi,
			cmd.FlagJson,
			&cli.BoolFlag{
				Name:  "vv",
				Usage: "enables very verbose mode",
			},
		},
		Commands: []*cli.Command{
			runCmd,
			authCmd,
			dealCmd,
			providerCmd,
			proofsCmd,
			offerCmd,
			slaCmd,
			repairCmd,
			dataCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func before(cctx *cli.Context) error {
	_ = logging.SetLogLevel("svdbd", "INFO")
	_ = logging.SetLogLevel("node", "INFO")
	_ = logging.SetLogLevel("db", "INFO")
	_ = logging.SetLogLevel("ledger", "INFO")
	_ = logging.SetLogLevel("proofengine", "INFO")
	_ = logging.SetLogLevel("scheduler", "INFO")
	_ = logging.SetLogLevel("market", "INFO")
	_ = logging.SetLogLevel("repair", "INFO")
	_ = logging.SetLogLevel("beacon", "INFO")
	_ = logging.SetLogLevel("rpc", "ERROR")

	if cctx.Bool("vv") {
		_ = logging.SetLogLevel("*", "DEBUG")
	}

	return nil
}
