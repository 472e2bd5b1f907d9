package prover

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/svdb-project/svdb/testutil"
	"github.com/svdb-project/svdb/types"
)

func TestClientProveSeal(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	root := testutil.GenerateCid()
	randomness := testutil.RandomBytes(32)
	provider := testutil.GenerateAddr()
	commitment := types.SealCommitment(root, randomness, provider)

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var preq Request
		req.NoError(json.NewDecoder(r.Body).Decode(&preq))
		req.Equal(ModeSeal, preq.Mode)
		req.Equal(root.String(), preq.Root)

		resp := Response{
			Commitment:    hex.EncodeToString(commitment[:]),
			ProofArtifact: hex.EncodeToString([]byte("artifact")),
			DurationMs:    12,
		}
		req.NoError(json.NewEncoder(w).Encode(&resp))
	}))
	defer svr.Close()

	c := NewClient(svr.URL, time.Second)
	proof, err := c.ProveSeal(ctx, root, randomness, provider)
	req.NoError(err)
	req.Equal(commitment, proof.Commitment)
	req.Equal([]byte("artifact"), proof.Artifact)
}

func TestClientTimeout(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer svr.Close()

	c := NewClient(svr.URL, 50*time.Millisecond)
	_, err := c.ProveSeal(ctx, testutil.GenerateCid(), testutil.RandomBytes(32), testutil.GenerateAddr())
	req.ErrorIs(err, ErrProverTimeout)
}

func TestClientWorkerFailure(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := Response{Code: "failure"}
		req.NoError(json.NewEncoder(w).Encode(&resp))
	}))
	defer svr.Close()

	c := NewClient(svr.URL, time.Second)
	_, err := c.ProveSeal(ctx, testutil.GenerateCid(), testutil.RandomBytes(32), testutil.GenerateAddr())
	req.ErrorIs(err, ErrProverFailure)

	// A worker-reported timeout maps to the timeout sentinel
	svrTimeout := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := Response{Code: "timeout"}
		_ = json.NewEncoder(w).Encode(&resp)
	}))
	defer svrTimeout.Close()

	c = NewClient(svrTimeout.URL, time.Second)
	_, err = c.ProveSeal(ctx, testutil.GenerateCid(), testutil.RandomBytes(32), testutil.GenerateAddr())
	req.ErrorIs(err, ErrProverTimeout)
}

func TestMockProverDeterministic(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	root := testutil.GenerateCid()
	randomness := testutil.RandomBytes(32)
	provider := testutil.GenerateAddr()

	m := NewMockProver()
	p1, err := m.ProveSeal(ctx, root, randomness, provider)
	req.NoError(err)
	p2, err := m.ProveSeal(ctx, root, randomness, provider)
	req.NoError(err)
	req.Equal(p1, p2)
	req.Equal(types.SealCommitment(root, randomness, provider), p1.Commitment)
}
