package main

import (
	"fmt"

	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/urfave/cli/v2"

	"github.com/svdb-project/svdb/api"
	"github.com/svdb-project/svdb/cmd"
)

var authCmd = &cli.Command{
	Name:  "auth",
	Usage: "Manage RPC permissions",
	Subcommands: []*cli.Command{
		authCreateTokenCmd,
	},
}

var authCreateTokenCmd = &cli.Command{
	Name:   "create-token",
	Usage:  "Create a new api token",
	Before: before,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "perm",
			Usage:    "permission to assign to the token, one of: read, write, admin",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		napi, closer, err := cmd.GetSvdbAPI(cctx)
		if err != nil {
			return err
		}
		defer closer()

		perm := cctx.String("perm")
		idx := 0
		for i, p := range api.AllPermissions {
			if auth.Permission(perm) == p {
				idx = i + 1
			}
		}
		if idx == 0 {
			return fmt.Errorf("unknown permission: %s", perm)
		}

		token, err := napi.AuthNew(cctx.Context, api.AllPermissions[:idx])
		if err != nil {
			return err
		}

		fmt.Println(string(token))
		return nil
	},
}
