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

package bch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Wallet sends tokens on behalf of the bot. Implementations must be safe for
// concurrent use.
type Wallet interface {
	SendToken(ctx context.Context, addr string) (string, error)
}

// WalletClient is an HTTP client for the wallet service's REST API. The
// sending wallet is derived by the service from the mnemonic included in
// each send request.
type WalletClient struct {
	walletURL  string
	tokenID    string
	mnemonic   string
	httpClient *http.Client
}

// WalletClientOption is a functional option for configuring a WalletClient
type WalletClientOption func(*WalletClient)

// WithWalletHTTPClient sets a custom *http.Client for the wallet client
func WithWalletHTTPClient(hc *http.Client) WalletClientOption {
	return func(c *WalletClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithWalletMnemonic sets the mnemonic for the sending wallet
func WithWalletMnemonic(mnemonic string) WalletClientOption {
	return func(c *WalletClient) {
		c.mnemonic = mnemonic
	}
}

// NewWalletClient creates a wallet service API client. The tokenID is the
// token sent in response to /request commands.
func NewWalletClient(
	walletURL string,
	tokenID string,
	opts ...WalletClientOption,
) *WalletClient {
	c := &WalletClient{
		walletURL: strings.TrimRight(walletURL, "/"),
		tokenID:   tokenID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendTokenRequest struct {
	Address  string  `json:"address"`
	TokenID  string  `json:"tokenId"`
	Qty      float64 `json:"qty"`
	Mnemonic string  `json:"mnemonic,omitempty"`
}

type sendTokenResponse struct {
	Txid string `json:"txid"`
}

// SendToken sends a single token to the given address and returns the
// transaction id. Corresponds to POST /slp/send.
func (c *WalletClient) SendToken(
	ctx context.Context,
	addr string,
) (string, error) {
	reqBody, err := json.Marshal(sendTokenRequest{
		Address:  addr,
		TokenID:  c.tokenID,
		Qty:      1,
		Mnemonic: c.mnemonic,
	})
	if err != nil {
		return "", fmt.Errorf("encoding send request: %w", err)
	}
	reqURL := c.walletURL + "/slp/send"
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		reqURL,
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf(
			"unexpected status %d: %s",
			resp.StatusCode,
			string(bodyBytes),
		)
	}
	var sendResp sendTokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).
		Decode(&sendResp); err != nil {
		return "", fmt.Errorf("decoding send response: %w", err)
	}
	if sendResp.Txid == "" {
		return "", errors.New("wallet service returned empty txid")
	}
	return sendResp.Txid, nil
}

// maxResponseBytes limits JSON API responses to 1 MiB to prevent OOM from a
// misbehaving wallet service
const maxResponseBytes = 1 << 20
