// Package prover is the client side of the GPU prover worker protocol.
// Sealing commitments are cheap enough to compute in-process, but proof
// artifacts for batched verification are produced by an external worker
// with GPU acceleration; the engine only ever talks JSON over HTTP to it.
package prover

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"lukechampine.com/blake3"

	"github.com/svdb-project/svdb/types"
)

var log = logging.Logger("prover")

var (
	// ErrProverTimeout means the worker did not answer within the request
	// timeout. The caller treats the challenge as unanswered, not failed.
	ErrProverTimeout = errors.New("prover worker timed out")
	// ErrProverFailure means the worker answered but could not produce a
	// proof.
	ErrProverFailure = errors.New("prover worker failed")
)

const (
	ModeSeal        = "seal"
	ModeBatchVerify = "batch-verify"
)

// Request is the wire format sent to a prover worker.
type Request struct {
	Mode       string `json:"mode"`
	Root       string `json:"root"`
	Randomness string `json:"randomness"`
	Provider   string `json:"provider"`
	Curve      string `json:"curve,omitempty"`
	Backend    string `json:"backend,omitempty"`
}

// Response is the wire format returned by a prover worker.
type Response struct {
	Commitment    string `json:"commitment,omitempty"`
	ProofArtifact string `json:"proofArtifact,omitempty"`
	DurationMs    int64  `json:"durationMs,omitempty"`
	Code          string `json:"code,omitempty"`
}

// SealProof is a worker-produced possession proof for one seal.
type SealProof struct {
	Commitment [32]byte
	Artifact   []byte
}

// Prover produces seal proofs.
type Prover interface {
	ProveSeal(ctx context.Context, root cid.Cid, randomness []byte, provider address.Address) (*SealProof, error)
}

// DefaultTimeout bounds a prover request when the caller does not set one.
// A timed-out request is treated as a missed challenge, not a fatal error.
const DefaultTimeout = 2 * time.Minute

// Client talks to a prover worker over HTTP with a bounded per-request
// timeout.
type Client struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

var _ Prover = (*Client)(nil)

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) ProveSeal(ctx context.Context, root cid.Cid, randomness []byte, provider address.Address) (*SealProof, error) {
	req := Request{
		Mode:       ModeSeal,
		Root:       root.String(),
		Randomness: hex.EncodeToString(randomness),
		Provider:   provider.String(),
	}
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	commitment, err := hex.DecodeString(resp.Commitment)
	if err != nil || len(commitment) != 32 {
		return nil, fmt.Errorf("worker returned malformed commitment %q: %w", resp.Commitment, ErrProverFailure)
	}
	artifact, err := hex.DecodeString(resp.ProofArtifact)
	if err != nil {
		return nil, fmt.Errorf("worker returned malformed artifact: %w", ErrProverFailure)
	}

	proof := &SealProof{Artifact: artifact}
	copy(proof.Commitment[:], commitment)
	log.Debugw("seal proof produced", "root", root, "provider", provider, "durationMs", resp.DurationMs)
	return proof, nil
}

func (c *Client) post(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshalling prover request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building prover request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("posting to prover worker %s: %w", c.url, ErrProverTimeout)
		}
		return nil, fmt.Errorf("posting to prover worker %s: %w", c.url, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prover worker %s returned status %d: %w", c.url, httpResp.StatusCode, ErrProverFailure)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading prover response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshalling prover response: %w", err)
	}

	switch resp.Code {
	case "":
	case "timeout":
		return nil, fmt.Errorf("prover worker %s: %w", c.url, ErrProverTimeout)
	default:
		return nil, fmt.Errorf("prover worker %s returned code %s: %w", c.url, resp.Code, ErrProverFailure)
	}

	return &resp, nil
}

// MockProver computes seal commitments in-process. The commitment matches
// what an honest worker produces for the same input.
type MockProver struct{}

var _ Prover = (*MockProver)(nil)

func NewMockProver() *MockProver {
	return &MockProver{}
}

func (m *MockProver) ProveSeal(ctx context.Context, root cid.Cid, randomness []byte, provider address.Address) (*SealProof, error) {
	commitment := types.SealCommitment(root, randomness, provider)

	h := blake3.New(32, nil)
	h.Write([]byte("svdb/seal-artifact"))
	h.Write(commitment[:])
	return &SealProof{
		Commitment: commitment,
		Artifact:   h.Sum(nil),
	}, nil
}
