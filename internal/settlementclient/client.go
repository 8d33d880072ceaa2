// Package settlementclient implements the orchestrator.Submitter interface
// against the settlement chain's RPC surface, mirroring internal/indexerclient's
// resty-based transport and retry wrapping (spec §4.J's phase 1-4 transactions).
package settlementclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ccoin/shieldengine/internal/elgamal"
	"github.com/ccoin/shieldengine/internal/field"
	"github.com/ccoin/shieldengine/internal/orchestrator"
	"github.com/ccoin/shieldengine/internal/retry"
)

// Client submits settlement-program transactions over JSON-RPC.
type Client struct {
	http     *resty.Client
	retryCfg retry.Config
}

// New builds a Client against the settlement RPC endpoint.
func New(baseURL string, retryCfg retry.Config) *Client {
	return &Client{
		http:     resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
		retryCfg: retryCfg,
	}
}

var _ orchestrator.Submitter = (*Client)(nil)

// SubmitVerifyReserve submits phase 1: proof, public inputs, and a fresh
// operation id.
func (c *Client) SubmitVerifyReserve(ctx context.Context, req orchestrator.VerifyReserveRequest, operationID string) error {
	nullifiers := make([]string, len(req.Nullifiers))
	for i, n := range req.Nullifiers {
		nullifiers[i] = n.String()
	}
	commitments := make([]string, len(req.Commitments))
	for i, cm := range req.Commitments {
		commitments[i] = cm.String()
	}
	return c.call(ctx, "submit_verify_reserve", map[string]any{
		"operation_id": operationID,
		"pool_id":      req.PoolID[:],
		"proof":        req.Proof,
		"merkle_root":  req.MerkleRoot.String(),
		"nullifiers":   nullifiers,
		"commitments":  commitments,
		"old_state":    req.OldStateHash[:],
		"new_state":    req.NewStateHash[:],
	})
}

// SubmitEmitNullifier submits one phase-2 transaction.
func (c *Client) SubmitEmitNullifier(ctx context.Context, operationID string, index int, poolID [32]byte, nullifier field.Element) error {
	return c.call(ctx, "submit_emit_nullifier", map[string]any{
		"operation_id": operationID,
		"index":        index,
		"pool_id":      poolID[:],
		"nullifier":    nullifier.String(),
	})
}

// SubmitEmitCommitment submits one phase-3 transaction.
func (c *Client) SubmitEmitCommitment(ctx context.Context, operationID string, index int, poolID [32]byte, commitment field.Element) error {
	return c.call(ctx, "submit_emit_commitment", map[string]any{
		"operation_id": operationID,
		"index":        index,
		"pool_id":      poolID[:],
		"commitment":   commitment.String(),
	})
}

// SubmitClose submits the phase-4 transaction retiring the pending-operation record.
func (c *Client) SubmitClose(ctx context.Context, operationID string) error {
	return c.call(ctx, "submit_close", map[string]any{"operation_id": operationID})
}

// SubmitVote submits an ElGamal ballot against an action nullifier. Voting
// spends an action nullifier rather than a note (spec §4.D: "spent
// independently per-action... without consuming the note"), so it bypasses
// the orchestrator's four-phase settlement state machine entirely and goes
// straight to the settlement RPC as a single transaction.
func (c *Client) SubmitVote(ctx context.Context, poolID [32]byte, proposalID string, actionNullifier field.Element, ballot elgamal.Ballot) error {
	options := make([]map[string]any, 3)
	for i, opt := range ballot.Options {
		options[i] = map[string]any{
			"c1x": opt.C1.X().String(),
			"c1y": opt.C1.Y().String(),
			"c2x": opt.C2.X().String(),
			"c2y": opt.C2.Y().String(),
		}
	}
	return c.call(ctx, "submit_vote", map[string]any{
		"pool_id":          poolID[:],
		"proposal_id":      proposalID,
		"action_nullifier": actionNullifier.String(),
		"ballot":           options,
	})
}

func (c *Client) call(ctx context.Context, method string, params map[string]any) error {
	return retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params}).
			Post("/")
		if err != nil {
			return &retry.Unavailable{Err: err}
		}
		if resp.StatusCode() == 429 {
			return &retry.RateLimited{}
		}
		if resp.StatusCode() >= 400 {
			return &retry.Unavailable{Err: fmt.Errorf("settlement: status %d: %s", resp.StatusCode(), resp.String())}
		}
		return nil
	})
}
