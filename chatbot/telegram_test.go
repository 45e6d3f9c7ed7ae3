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

package chatbot_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blinklabs-io/doorman/chatbot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramPollAndSend(t *testing.T) {
	var polls atomic.Int64
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/bottest-token/getUpdates":
				var req map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				if polls.Add(1) == 1 {
					assert.Equal(t, float64(0), req["offset"])
					_, _ = w.Write([]byte(`{"ok":true,"result":[
						{"update_id":10,"message":{
							"message_id":7,
							"from":{"id":42,"username":"satoshi"},
							"chat":{"id":100,"type":"supergroup"},
							"text":"/list"}}]}`))
					return
				}
				// Confirm the offset advanced, then return nothing
				assert.Equal(t, float64(11), req["offset"])
				_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
			case "/bottest-token/sendMessage":
				_, _ = w.Write([]byte(`{"ok":true,"result":{
					"message_id":8,
					"chat":{"id":100,"type":"supergroup"},
					"text":"reply"}}`))
			case "/bottest-token/deleteMessage":
				_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
			default:
				http.NotFound(w, r)
			}
		}),
	)
	defer srv.Close()
	tg := chatbot.NewTelegram(
		"test-token",
		chatbot.WithTelegramBaseURL(srv.URL),
	)
	tg.Start()
	defer tg.Stop()
	select {
	case msg := <-tg.Updates():
		assert.Equal(t, int64(7), msg.ID)
		assert.Equal(t, int64(100), msg.ChatID)
		assert.Equal(t, int64(42), msg.SenderID)
		assert.Equal(t, "satoshi", msg.Username)
		assert.Equal(t, "/list", msg.Text)
		assert.True(t, msg.Supergroup)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for update")
	}
	sent, err := tg.SendMessage(context.Background(), 100, "reply")
	require.NoError(t, err)
	assert.Equal(t, int64(8), sent.ID)
	assert.True(t, sent.Supergroup)
	require.NoError(t, tg.DeleteMessage(context.Background(), 100, 7))
}

func TestTelegramAPIError(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write(
				[]byte(`{"ok":false,"description":"message to delete not found"}`),
			)
		}),
	)
	defer srv.Close()
	tg := chatbot.NewTelegram(
		"test-token",
		chatbot.WithTelegramBaseURL(srv.URL),
	)
	err := tg.DeleteMessage(context.Background(), 100, 7)
	assert.ErrorContains(t, err, "message to delete not found")
}
