// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package merit computes a participant's merit score from their on-chain
// token holdings. Merit is age-weighted: each token contributes its quantity
// multiplied by the whole days it has been held, so freshly purchased tokens
// carry no weight until they mature.
package merit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Oracle reports the current merit score for a token address. Implementations
// must be safe for concurrent use. A non-nil error means the score could not
// be determined; callers must not treat that as a zero score.
type Oracle interface {
	Score(ctx context.Context, addr string) (uint64, error)
}

// blocksPerDay is the expected number of BCH blocks in 24 hours (10 minute
// target spacing)
const blocksPerDay = 144

// maxResponseBytes limits JSON API responses to 10 MiB. An address can carry
// a large UTXO set, but anything beyond this is a misbehaving indexer.
const maxResponseBytes = 10 << 20

// Client is an HTTP client for the SLP indexer REST API
type Client struct {
	indexerURL string
	tokenID    string
	httpClient *http.Client
}

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom *http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates an indexer API client scoring holdings of the given
// token
func NewClient(indexerURL string, tokenID string, opts ...ClientOption) *Client {
	c := &Client{
		indexerURL: strings.TrimRight(indexerURL, "/"),
		tokenID:    tokenID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type statusResponse struct {
	Status struct {
		ChainBlockHeight uint64 `json:"chainBlockHeight"`
	} `json:"status"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type addressResponse struct {
	Balance struct {
		Utxos []tokenUtxo `json:"utxos"`
	} `json:"balance"`
}

type tokenUtxo struct {
	Txid    string `json:"txid"`
	TokenID string `json:"tokenId"`
	Qty     string `json:"qtyStr"`
	Height  uint64 `json:"height"`
}

// Score fetches the address's token UTXOs and returns the aggregate merit:
// the sum over matching UTXOs of quantity times whole days held. Unconfirmed
// UTXOs and UTXOs of other tokens contribute nothing.
func (c *Client) Score(ctx context.Context, addr string) (uint64, error) {
	chainHeight, err := c.chainHeight(ctx)
	if err != nil {
		return 0, err
	}
	utxos, err := c.addressUtxos(ctx, addr)
	if err != nil {
		return 0, err
	}
	var score float64
	for _, utxo := range utxos {
		if utxo.TokenID != c.tokenID {
			continue
		}
		if utxo.Height == 0 || utxo.Height > chainHeight {
			// Unconfirmed, or the indexer is behind its own UTXO data
			continue
		}
		qty, err := strconv.ParseFloat(utxo.Qty, 64)
		if err != nil {
			return 0, fmt.Errorf(
				"parsing quantity %q for utxo %s: %w",
				utxo.Qty,
				utxo.Txid,
				err,
			)
		}
		ageDays := (chainHeight - utxo.Height) / blocksPerDay
		score += qty * float64(ageDays)
	}
	if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("indexer returned unusable quantities")
	}
	return uint64(score), nil
}

// chainHeight returns the indexer's view of the chain tip. Corresponds to
// GET /status.
func (c *Client) chainHeight(ctx context.Context) (uint64, error) {
	var status statusResponse
	if err := c.doRequest(
		ctx,
		http.MethodGet,
		"/status",
		nil,
		&status,
	); err != nil {
		return 0, err
	}
	if status.Status.ChainBlockHeight == 0 {
		return 0, fmt.Errorf("indexer reported zero chain height")
	}
	return status.Status.ChainBlockHeight, nil
}

// addressUtxos returns the token UTXO set for an address. Corresponds to
// POST /address.
func (c *Client) addressUtxos(
	ctx context.Context,
	addr string,
) ([]tokenUtxo, error) {
	var addrResp addressResponse
	if err := c.doRequest(
		ctx,
		http.MethodPost,
		"/address",
		addressRequest{Address: addr},
		&addrResp,
	); err != nil {
		return nil, err
	}
	return addrResp.Balance.Utxos, nil
}

func (c *Client) doRequest(
	ctx context.Context,
	method string,
	path string,
	reqData any,
	respData any,
) error {
	var reqBody io.Reader
	if reqData != nil {
		encoded, err := json.Marshal(reqData)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(
		ctx,
		method,
		c.indexerURL+path,
		reqBody,
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if reqData != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf(
			"unexpected status %d from %s: %s",
			resp.StatusCode,
			path,
			string(bodyBytes),
		)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).
		Decode(respData); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}
