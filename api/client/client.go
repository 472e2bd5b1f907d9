package client

import (
	"context"
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/svdb-project/svdb/api"
)

// NewSvdbRPC creates a new http jsonrpc client for an svdb node.
func NewSvdbRPC(ctx context.Context, addr string, requestHeader http.Header, opts ...jsonrpc.Option) (api.Svdb, jsonrpc.ClientCloser, error) {
	var res api.SvdbStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, "Svdb",
		[]interface{}{&res.Internal}, requestHeader, opts...)
	return &res, closer, err
}
