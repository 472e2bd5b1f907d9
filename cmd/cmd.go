package cmd

import "github.com/urfave/cli/v2"

var FlagRepo = &cli.StringFlag{
	Name:    "repo",
	Usage:   "svdb repo directory",
	Value:   "~/.svdb",
	EnvVars: []string{"SVDB_PATH"},
}

var FlagApi = &cli.StringFlag{
	Name:    "api",
	Usage:   "svdb node JSON-RPC endpoint",
	Value:   "http://127.0.0.1:1288/rpc/v0",
	EnvVars: []string{"SVDB_API"},
}

var FlagJson = &cli.BoolFlag{
	Name:  "json",
	Usage: "output results in json format",
	Value: false,
}
