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

package merit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blinklabs-io/doorman/merit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenID = "22f8475fd82a4163a64cdb0d868534d016964b3acc8a6f0e6572f3c373d01866"

func indexerStub(
	t *testing.T,
	chainHeight uint64,
	utxos []map[string]any,
) *httptest.Server {
	t.Helper()
	return httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/status":
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status": map[string]any{
						"chainBlockHeight": chainHeight,
					},
				})
			case "/address":
				var req map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.NotEmpty(t, req["address"])
				_ = json.NewEncoder(w).Encode(map[string]any{
					"balance": map[string]any{
						"utxos": utxos,
					},
				})
			default:
				http.NotFound(w, r)
			}
		}),
	)
}

func TestScoreAgeWeighted(t *testing.T) {
	// 100 tokens held 10 days plus 50 tokens held 2 days
	srv := indexerStub(t, 800000, []map[string]any{
		{
			"txid":    "aa00",
			"tokenId": testTokenID,
			"qtyStr":  "100",
			"height":  800000 - 10*144,
		},
		{
			"txid":    "aa01",
			"tokenId": testTokenID,
			"qtyStr":  "50",
			"height":  800000 - 2*144,
		},
	})
	defer srv.Close()
	client := merit.NewClient(srv.URL, testTokenID)
	score, err := client.Score(context.Background(), "simpleledger:qtest")
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), score)
}

func TestScoreIgnoresOtherTokensAndUnconfirmed(t *testing.T) {
	srv := indexerStub(t, 800000, []map[string]any{
		{
			"txid":    "aa00",
			"tokenId": "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
			"qtyStr":  "9999",
			"height":  700000,
		},
		{
			// Unconfirmed
			"txid":    "aa01",
			"tokenId": testTokenID,
			"qtyStr":  "100",
			"height":  0,
		},
		{
			"txid":    "aa02",
			"tokenId": testTokenID,
			"qtyStr":  "10",
			"height":  800000 - 144,
		},
	})
	defer srv.Close()
	client := merit.NewClient(srv.URL, testTokenID)
	score, err := client.Score(context.Background(), "simpleledger:qtest")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), score)
}

func TestScoreEmptyAddress(t *testing.T) {
	srv := indexerStub(t, 800000, nil)
	defer srv.Close()
	client := merit.NewClient(srv.URL, testTokenID)
	score, err := client.Score(context.Background(), "simpleledger:qtest")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), score)
}

func TestScoreFractionalQuantities(t *testing.T) {
	srv := indexerStub(t, 800000, []map[string]any{
		{
			"txid":    "aa00",
			"tokenId": testTokenID,
			"qtyStr":  "0.5",
			"height":  800000 - 3*144,
		},
	})
	defer srv.Close()
	client := merit.NewClient(srv.URL, testTokenID)
	score, err := client.Score(context.Background(), "simpleledger:qtest")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), score)
}

func TestScoreIndexerError(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		}),
	)
	defer srv.Close()
	client := merit.NewClient(srv.URL, testTokenID)
	_, err := client.Score(context.Background(), "simpleledger:qtest")
	assert.ErrorContains(t, err, "unexpected status 503")
}

func TestScoreBadQuantity(t *testing.T) {
	srv := indexerStub(t, 800000, []map[string]any{
		{
			"txid":    "aa00",
			"tokenId": testTokenID,
			"qtyStr":  "not-a-number",
			"height":  700000,
		},
	})
	defer srv.Close()
	client := merit.NewClient(srv.URL, testTokenID)
	_, err := client.Score(context.Background(), "simpleledger:qtest")
	assert.ErrorContains(t, err, "parsing quantity")
}
