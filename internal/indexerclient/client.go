// Package indexerclient implements the client side of the compressed-leaf
// indexer RPC surface consumed by the engine (spec §6), via go-resty/resty,
// the HTTP client library grounded in the AKJUS-bsc-erigon and
// ethereum-go-ethereum example manifests.
package indexerclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ccoin/shieldengine/internal/retry"
)

// Account is a compressed account as returned by the indexer.
type Account struct {
	Hash      string `json:"hash"`
	Owner     string `json:"owner"`
	Data      []byte `json:"data"`
	Slot      int64  `json:"slot"`
	LeafIndex uint64 `json:"leafIndex"`
}

// CompressedProof is the {a, b, c} proof the indexer returns for validity
// proofs, an opaque blob this package never interprets (spec §1: proof
// generation and on-chain verification are out of scope).
type CompressedProof struct {
	A string `json:"a"`
	B string `json:"b"`
	C string `json:"c"`
}

// ValidityProof is the response shape of get_validity_proof.
type ValidityProof struct {
	CompressedProof CompressedProof `json:"compressedProof"`
	RootIndices     []int           `json:"rootIndices"`
	MerkleTrees     []string        `json:"merkleTrees"`
}

// AccountProof is the response shape of get_compressed_account_proof.
type AccountProof struct {
	Root        string   `json:"root"`
	MerkleProof []string `json:"merkleProof"`
	LeafIndex   uint64   `json:"leafIndex"`
}

// AccountsByOwnerFilter narrows get_compressed_accounts_by_owner results.
type AccountsByOwnerFilter struct {
	Pool string
}

// Client wraps resty.Client with the engine's retry policy applied to
// every call.
type Client struct {
	http     *resty.Client
	retryCfg retry.Config
	apiKey   string
}

// New builds a Client against baseURL, authenticating with apiKey.
func New(baseURL, apiKey string, retryCfg retry.Config) *Client {
	h := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	if apiKey != "" {
		h.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &Client{http: h, retryCfg: retryCfg, apiKey: apiKey}
}

// GetCompressedAccount fetches a single compressed account by address. A
// nil account with a nil error means the indexer reported no such account.
func (c *Client) GetCompressedAccount(ctx context.Context, address string) (*Account, error) {
	var result struct {
		Result *Account `json:"result"`
	}
	err := c.call(ctx, "get_compressed_account", map[string]any{"address": address}, &result)
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}

// GetMultipleCompressedAccounts batches a lookup of several addresses in
// one RPC call.
func (c *Client) GetMultipleCompressedAccounts(ctx context.Context, addresses []string) ([]*Account, error) {
	var result struct {
		Result []*Account `json:"result"`
	}
	err := c.call(ctx, "get_multiple_compressed_accounts", map[string]any{"addresses": addresses}, &result)
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}

// GetCompressedAccountsByOwner lists every leaf account owned by program,
// optionally narrowed by filters.
func (c *Client) GetCompressedAccountsByOwner(ctx context.Context, program string, filters *AccountsByOwnerFilter) ([]*Account, error) {
	params := map[string]any{"program": program}
	if filters != nil {
		params["filters"] = filters
	}
	var result struct {
		Result struct {
			Items []*Account `json:"items"`
		} `json:"result"`
	}
	err := c.call(ctx, "get_compressed_accounts_by_owner", params, &result)
	if err != nil {
		return nil, err
	}
	return result.Result.Items, nil
}

// GetValidityProof requests a validity proof covering hashes and any new
// addresses being created against the given trees.
func (c *Client) GetValidityProof(ctx context.Context, hashes []string, newAddressesWithTrees []string) (*ValidityProof, error) {
	var result struct {
		Result *ValidityProof `json:"result"`
	}
	params := map[string]any{
		"hashes":               hashes,
		"newAddressesWithTrees": newAddressesWithTrees,
	}
	err := c.call(ctx, "get_validity_proof", params, &result)
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}

// GetCompressedAccountProof fetches a merkle inclusion proof for a single
// leaf hash.
func (c *Client) GetCompressedAccountProof(ctx context.Context, hash string) (*AccountProof, error) {
	var result struct {
		Result *AccountProof `json:"result"`
	}
	err := c.call(ctx, "get_compressed_account_proof", map[string]any{"hash": hash}, &result)
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}

// call issues a JSON-RPC-shaped POST through the engine's retry policy,
// translating 429s to retry.RateLimited and 5xx/network failures to
// retry.Unavailable (not retried, per spec §9).
func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	return retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]any{
				"jsonrpc": "2.0",
				"id":      1,
				"method":  method,
				"params":  params,
			}).
			SetResult(out).
			Post("/")
		if err != nil {
			return &retry.Unavailable{Err: err}
		}

		if resp.StatusCode() == 429 {
			retryAfter := parseRetryAfter(resp.Header().Get("Retry-After"))
			return &retry.RateLimited{RetryAfter: retryAfter}
		}
		if resp.StatusCode() >= 500 {
			return &retry.Unavailable{Err: fmt.Errorf("indexer: status %d", resp.StatusCode())}
		}
		if resp.StatusCode() >= 400 {
			return &retry.Unavailable{Err: fmt.Errorf("indexer: status %d: %s", resp.StatusCode(), resp.String())}
		}
		return nil
	})
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
