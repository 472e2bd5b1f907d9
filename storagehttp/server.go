// Package storagehttp exposes the chunk store over plain HTTP: chunk
// upload and retrieval, payload ingest and manifest lookup. Retrieval
// endpoints support range requests so clients can sample single proof
// leaves without fetching whole chunks.
package storagehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/stats"

	"github.com/svdb-project/svdb/chunkstore"
	"github.com/svdb-project/svdb/lib/corshandler"
	"github.com/svdb-project/svdb/metrics"
)

var log = logging.Logger("storagehttp")

// Content under a CID never changes, so send a cache header with a
// constant, non-zero last modified time.
var lastModified = time.UnixMilli(1)

// ErasureHeader carries the manifest's k+m parameters on responses.
const ErasureHeader = "X-Svdb-Erasure"

// MaxUploadBytes bounds a single chunk or payload upload.
const MaxUploadBytes = 1 << 30

type HttpServer struct {
	port  int
	store *chunkstore.Store

	ctx    context.Context
	cancel context.CancelFunc
	server *http.Server
}

func NewHttpServer(port int, store *chunkstore.Store) *HttpServer {
	return &HttpServer{port: port, store: store}
}

func (s *HttpServer) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	listenAddr := fmt.Sprintf(":%d", s.port)
	s.server = &http.Server{
		Addr:    listenAddr,
		Handler: s.Handler(),
		// This context will be the parent of the context associated with all
		// incoming requests
		BaseContext: func(listener net.Listener) context.Context {
			return s.ctx
		},
	}

	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("http.ListenAndServe(): %v", err)
		}
	}()
}

func (s *HttpServer) Stop() error {
	s.cancel()
	return s.server.Close()
}

func (s *HttpServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chunk", s.handleChunkUpload)
	mux.HandleFunc("/chunk/", s.handleChunk)
	mux.HandleFunc("/manifest/", s.handleManifest)
	mux.HandleFunc("/data", s.handleDataUpload)
	mux.Handle("/metrics", metrics.Exporter("svdb_http"))
	return &corshandler.CorsHandler{Sub: mux}
}

// handleChunkUpload stores the request body as a single chunk.
func (s *HttpServer) handleChunkUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "use PUT or POST to store a chunk")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, MaxUploadBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("reading request body: %s", err))
		return
	}
	if len(data) == 0 {
		writeError(w, r, http.StatusBadRequest, "empty chunk")
		return
	}

	c, err := s.store.Put(r.Context(), data)
	if err != nil {
		log.Errorf("storing chunk: %s", err)
		writeError(w, r, http.StatusInternalServerError, "server error storing chunk")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"cid": c.String()})
}

// handleChunk serves one chunk by CID. Range requests are honored.
func (s *HttpServer) handleChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, r, http.StatusMethodNotAllowed, "use GET or HEAD to retrieve a chunk")
		return
	}

	startTime := time.Now()
	ctx := r.Context()
	stats.Record(ctx, metrics.HttpChunkRequestCount.M(1))

	c, err := parseCidPath(r.URL.Path, "/chunk/")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.store.Get(ctx, c)
	if err != nil {
		if errors.Is(err, chunkstore.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("no chunk with CID %s", c))
			return
		}
		log.Errorf("getting chunk %s: %s", c, err)
		writeError(w, r, http.StatusInternalServerError, "server error getting chunk")
		return
	}

	w.Header().Set("Etag", c.String())
	w.Header().Set("Cache-Control", "public, max-age=29030400, immutable")
	http.ServeContent(w, r, "", lastModified, bytes.NewReader(data))

	stats.Record(ctx, metrics.HttpChunkRequestDuration.M(float64(time.Since(startTime).Milliseconds())))
}

// handleManifest serves a manifest by root CID as JSON.
func (s *HttpServer) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, r, http.StatusMethodNotAllowed, "use GET or HEAD to retrieve a manifest")
		return
	}

	startTime := time.Now()
	ctx := r.Context()
	stats.Record(ctx, metrics.HttpManifestRequestCount.M(1))

	root, err := parseCidPath(r.URL.Path, "/manifest/")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	manifest, err := s.store.GetManifest(ctx, root)
	if err != nil {
		if errors.Is(err, chunkstore.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, fmt.Sprintf("no manifest with root %s", root))
			return
		}
		log.Errorf("getting manifest %s: %s", root, err)
		writeError(w, r, http.StatusInternalServerError, "server error getting manifest")
		return
	}

	w.Header().Set("Etag", root.String())
	w.Header().Set(ErasureHeader, fmt.Sprintf("%d+%d", manifest.DataShards, manifest.ParityShards))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, manifest)

	stats.Record(ctx, metrics.HttpManifestRequestDuration.M(float64(time.Since(startTime).Milliseconds())))
}

// handleDataUpload ingests a whole payload: it is chunked, erasure-coded
// and stored, and the manifest root is returned. Optional query params
// chunkSize, k and m override the ingest defaults.
func (s *HttpServer) handleDataUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "use PUT or POST to ingest data")
		return
	}

	params := chunkstore.AddDataParams{}
	q := r.URL.Query()
	for name, dst := range map[string]*int{"k": &params.DataShards, "m": &params.ParityShards} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, r, http.StatusBadRequest, fmt.Sprintf("bad `%s` query parameter", name))
				return
			}
			*dst = n
		}
	}
	if v := q.Get("chunkSize"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			writeError(w, r, http.StatusBadRequest, "bad `chunkSize` query parameter")
			return
		}
		params.ChunkSize = n
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, MaxUploadBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("reading request body: %s", err))
		return
	}
	if len(data) == 0 {
		writeError(w, r, http.StatusBadRequest, "empty payload")
		return
	}

	root, manifest, err := s.store.AddData(r.Context(), data, params)
	if err != nil {
		log.Errorf("ingesting %d byte payload: %s", len(data), err)
		writeError(w, r, http.StatusInternalServerError, "server error ingesting payload")
		return
	}

	w.Header().Set(ErasureHeader, fmt.Sprintf("%d+%d", manifest.DataShards, manifest.ParityShards))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"root":   root.String(),
		"chunks": len(manifest.Chunks),
		"size":   manifest.TotalSize,
	})
}

func parseCidPath(path string, prefix string) (cid.Cid, error) {
	str := strings.TrimPrefix(path, prefix)
	if str == "" || strings.Contains(str, "/") {
		return cid.Undef, errors.New("missing CID in request path")
	}
	c, err := cid.Parse(str)
	if err != nil {
		return cid.Undef, fmt.Errorf("parsing CID '%s': %s", str, err)
	}
	return c, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("writing json response: %s", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	stats.Record(r.Context(), metrics.HttpRequestFailures.M(1))
	w.WriteHeader(status)
	w.Write([]byte(msg + "\n")) //nolint:errcheck
}
