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

package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultTelegramBaseURL = "https://api.telegram.org"
	// longPollTimeout is the getUpdates hold time in seconds
	longPollTimeout = 30
	// updatesQueueSize bounds the incoming message channel
	updatesQueueSize = 64
	// maxResponseBytes limits Bot API responses to 1 MiB
	maxResponseBytes = 1 << 20
)

// Telegram is a Bot API transport using long polling. Create with
// NewTelegram, then Start to begin receiving updates.
type Telegram struct {
	baseURL    string
	token      string
	logger     *slog.Logger
	httpClient *http.Client
	updatesCh  chan Message
	stopCh     chan struct{}
	doneCh     chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once
}

// TelegramOption is a functional option for configuring a Telegram transport
type TelegramOption func(*Telegram)

// WithTelegramBaseURL overrides the Bot API base URL, mostly for tests
func WithTelegramBaseURL(baseURL string) TelegramOption {
	return func(tg *Telegram) {
		tg.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTelegramHTTPClient sets a custom *http.Client
func WithTelegramHTTPClient(hc *http.Client) TelegramOption {
	return func(tg *Telegram) {
		if hc != nil {
			tg.httpClient = hc
		}
	}
}

// WithTelegramLogger sets the logger
func WithTelegramLogger(logger *slog.Logger) TelegramOption {
	return func(tg *Telegram) {
		if logger != nil {
			tg.logger = logger
		}
	}
}

func NewTelegram(token string, opts ...TelegramOption) *Telegram {
	tg := &Telegram{
		baseURL: defaultTelegramBaseURL,
		token:   token,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		httpClient: &http.Client{
			// Must outlast the long-poll hold time
			Timeout: (longPollTimeout + 10) * time.Second,
		},
		updatesCh: make(chan Message, updatesQueueSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(tg)
	}
	return tg
}

// Start launches the long-poll loop. Safe to call once.
func (tg *Telegram) Start() {
	tg.startOnce.Do(func() {
		go tg.pollLoop()
	})
}

// Stop halts the long-poll loop and closes the updates channel
func (tg *Telegram) Stop() {
	tg.stopOnce.Do(func() {
		close(tg.stopCh)
	})
	<-tg.doneCh
}

// Updates returns the incoming message channel
func (tg *Telegram) Updates() <-chan Message {
	return tg.updatesCh
}

// Bot API wire types. Only the fields doorman uses.
type tgResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID int64 `json:"message_id"`
	From      *struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Chat struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	} `json:"chat"`
	Text string `json:"text"`
}

func (m *tgMessage) toMessage() Message {
	msg := Message{
		ID:         m.MessageID,
		ChatID:     m.Chat.ID,
		Text:       m.Text,
		Supergroup: m.Chat.Type == "supergroup",
	}
	if m.From != nil {
		msg.SenderID = m.From.ID
		msg.Username = m.From.Username
	}
	return msg
}

func (tg *Telegram) pollLoop() {
	defer close(tg.doneCh)
	defer close(tg.updatesCh)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-tg.stopCh
		cancel()
	}()
	var offset int64
	for {
		select {
		case <-tg.stopCh:
			return
		default:
		}
		updates, err := tg.getUpdates(ctx, offset)
		if err != nil {
			select {
			case <-tg.stopCh:
				return
			default:
			}
			tg.logger.Error(
				"getUpdates failure",
				"component", "telegram",
				"error", err,
			)
			// Back off before retrying so a dead API isn't hammered
			select {
			case <-tg.stopCh:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil {
				continue
			}
			select {
			case tg.updatesCh <- update.Message.toMessage():
			case <-tg.stopCh:
				return
			}
		}
	}
}

func (tg *Telegram) getUpdates(
	ctx context.Context,
	offset int64,
) ([]tgUpdate, error) {
	var updates []tgUpdate
	err := tg.doRequest(ctx, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": longPollTimeout,
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage posts a message to a chat and returns the message as sent
func (tg *Telegram) SendMessage(
	ctx context.Context,
	chatID int64,
	text string,
) (Message, error) {
	var sent tgMessage
	err := tg.doRequest(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, &sent)
	if err != nil {
		return Message{}, err
	}
	return sent.toMessage(), nil
}

// DeleteMessage removes a message from a chat
func (tg *Telegram) DeleteMessage(
	ctx context.Context,
	chatID int64,
	messageID int64,
) error {
	return tg.doRequest(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

func (tg *Telegram) doRequest(
	ctx context.Context,
	method string,
	params map[string]any,
	result any,
) error {
	reqBody, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	reqURL := fmt.Sprintf("%s/bot%s/%s", tg.baseURL, tg.token, method)
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		reqURL,
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := tg.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	var apiResp tgResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).
		Decode(&apiResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !apiResp.OK {
		return fmt.Errorf(
			"%s failed with status %d: %s",
			method,
			resp.StatusCode,
			apiResp.Description,
		)
	}
	if result != nil {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}
