package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"

	"github.com/svdb-project/svdb/api"
	"github.com/svdb-project/svdb/api/client"
)

// ReqContext returns a context that is cancelled when the process receives
// an interrupt or termination signal.
func ReqContext(cctx *cli.Context) context.Context {
	tCtx := context.Background()
	if cctx.Context != nil {
		tCtx = cctx.Context
	}

	ctx, done := context.WithCancel(tCtx)
	sigChan := make(chan os.Signal, 2)
	go func() {
		<-sigChan
		done()
	}()
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	return ctx
}

// RepoDir expands the repo flag to an absolute path.
func RepoDir(cctx *cli.Context) (string, error) {
	return homedir.Expand(cctx.String(FlagRepo.Name))
}

// GetSvdbAPI dials the node's JSON-RPC endpoint, using the repo's api
// token when one is present.
func GetSvdbAPI(cctx *cli.Context) (api.Svdb, jsonrpc.ClientCloser, error) {
	repoDir, err := RepoDir(cctx)
	if err != nil {
		return nil, nil, fmt.Errorf("expanding repo dir: %w", err)
	}

	requestHeader := http.Header{}
	token, err := os.ReadFile(filepath.Join(repoDir, "token"))
	if err == nil {
		requestHeader.Set("Authorization", "Bearer "+strings.TrimSpace(string(token)))
	}

	return client.NewSvdbRPC(cctx.Context, cctx.String(FlagApi.Name), requestHeader)
}

func PrintJson(obj interface{}) error {
	resJson, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling json: %w", err)
	}

	fmt.Println(string(resJson))
	return nil
}
