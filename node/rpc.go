package node

import (
	"context"
	"net"
	"net/http"
	_ "net/http/pprof"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/filecoin-project/go-jsonrpc/auth"

	"github.com/svdb-project/svdb/api"
	"github.com/svdb-project/svdb/metrics"
	"github.com/svdb-project/svdb/metrics/proxy"
)

var rpclog = logging.Logger("rpc")

// StopFunc terminates a running RPC endpoint.
type StopFunc func(context.Context) error

// ServeRPC serves an HTTP handler over the supplied listen multiaddr.
//
// This function spawns a goroutine to run the server, and returns immediately.
// It returns the stop function to be called to terminate the endpoint.
//
// The supplied ID is used in tracing, by inserting a tag in the context.
func ServeRPC(h http.Handler, id string, addr multiaddr.Multiaddr) (StopFunc, error) {
	// Start listening to the addr; if invalid or occupied, we will fail early.
	lst, err := manet.Listen(addr)
	if err != nil {
		return nil, xerrors.Errorf("could not listen: %w", err)
	}

	srv := &http.Server{
		Handler: h,
		BaseContext: func(listener net.Listener) context.Context {
			ctx, _ := tag.New(context.Background(), tag.Upsert(metrics.Endpoint, id))
			return ctx
		},
	}

	go func() {
		err = srv.Serve(manet.NetListener(lst))
		if err != http.ErrServerClosed {
			rpclog.Warnf("rpc server failed: %s", err)
		}
	}()

	return srv.Shutdown, err
}

// SvdbHandler returns an svdb service handler, to be mounted as-is on the server.
func SvdbHandler(a api.Svdb, permissioned bool) (http.Handler, error) {
	m := mux.NewRouter()

	mapi := proxy.MetricedSvdbAPI(a)
	if permissioned {
		mapi = api.PermissionedSvdbAPI(mapi)
	}

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register("Svdb", mapi)

	m.Handle("/rpc/v0", rpcServer)

	// debugging
	m.Handle("/debug/metrics", metrics.Exporter("svdb_node"))
	m.PathPrefix("/").Handler(http.DefaultServeMux) // pprof

	if !permissioned {
		return m, nil
	}

	ah := &auth.Handler{
		Verify: a.AuthVerify,
		Next:   m.ServeHTTP,
	}
	return ah, nil
}
