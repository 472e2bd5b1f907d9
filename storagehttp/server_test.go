package storagehttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/svdb-project/svdb/chunkstore"
	"github.com/svdb-project/svdb/testutil"
)

func setupServer(t *testing.T) *httptest.Server {
	store := chunkstore.NewStore(dssync.MutexWrap(datastore.NewMapDatastore()))
	s := NewHttpServer(0, store)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestChunkUploadAndRetrieve(t *testing.T) {
	req := require.New(t)
	ts := setupServer(t)

	data := testutil.RandomBytes(1024)
	resp, err := http.Post(ts.URL+"/chunk", "application/octet-stream", bytes.NewReader(data))
	req.NoError(err)
	req.Equal(http.StatusOK, resp.StatusCode)

	var uploaded struct {
		Cid string `json:"cid"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&uploaded))
	resp.Body.Close()
	req.NotEmpty(uploaded.Cid)

	resp, err = http.Get(ts.URL + "/chunk/" + uploaded.Cid)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(uploaded.Cid, resp.Header.Get("Etag"))

	got, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Equal(data, got)
}

func TestChunkRangeRequest(t *testing.T) {
	req := require.New(t)
	ts := setupServer(t)

	data := testutil.RandomBytes(1024)
	resp, err := http.Post(ts.URL+"/chunk", "application/octet-stream", bytes.NewReader(data))
	req.NoError(err)
	var uploaded struct {
		Cid string `json:"cid"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&uploaded))
	resp.Body.Close()

	httpReq, err := http.NewRequest(http.MethodGet, ts.URL+"/chunk/"+uploaded.Cid, nil)
	req.NoError(err)
	httpReq.Header.Set("Range", "bytes=100-199")
	resp, err = http.DefaultClient.Do(httpReq)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusPartialContent, resp.StatusCode)

	got, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Equal(data[100:200], got)
}

func TestChunkNotFound(t *testing.T) {
	req := require.New(t)
	ts := setupServer(t)

	c, err := chunkstore.ChunkCid([]byte("never stored"))
	req.NoError(err)

	resp, err := http.Get(ts.URL + "/chunk/" + c.String())
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/chunk/not-a-cid")
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestDataIngestAndManifest(t *testing.T) {
	req := require.New(t)
	ts := setupServer(t)

	data := testutil.RandomBytes(640)
	resp, err := http.Post(ts.URL+"/data?chunkSize=64", "application/octet-stream", bytes.NewReader(data))
	req.NoError(err)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("8+2", resp.Header.Get(ErasureHeader))

	var ingested struct {
		Root   string `json:"root"`
		Chunks int    `json:"chunks"`
		Size   uint64 `json:"size"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&ingested))
	resp.Body.Close()
	req.Equal(10, ingested.Chunks)
	req.EqualValues(len(data), ingested.Size)

	resp, err = http.Get(ts.URL + "/manifest/" + ingested.Root)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("8+2", resp.Header.Get(ErasureHeader))

	var manifest chunkstore.Manifest
	req.NoError(json.NewDecoder(resp.Body).Decode(&manifest))
	req.Len(manifest.Chunks, 10)

	// every chunk the manifest names is retrievable
	for _, c := range manifest.Chunks {
		chunkResp, err := http.Get(fmt.Sprintf("%s/chunk/%s", ts.URL, c))
		req.NoError(err)
		chunkResp.Body.Close()
		req.Equal(http.StatusOK, chunkResp.StatusCode)
	}
}

func TestManifestNotFound(t *testing.T) {
	req := require.New(t)
	ts := setupServer(t)

	c, err := chunkstore.ChunkCid([]byte("no manifest"))
	req.NoError(err)

	resp, err := http.Get(ts.URL + "/manifest/" + c.String())
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusNotFound, resp.StatusCode)
}
