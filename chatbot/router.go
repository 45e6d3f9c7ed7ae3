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
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blinklabs-io/doorman/database/models"
	"github.com/blinklabs-io/doorman/gatekeeper"
)

const helpText = `This room is gated: you must verify ownership of an address holding enough aged tokens before you can speak.

/verify <address> <signature>
  Prove you own an address. Sign the word "verify" with your wallet and paste the address and signature.
/revoke <address>
  Release your claim on an address.
/request <address>
  Request a token to get started.
/merit <username>
  Show a user's current merit.
/list
  List verified users.
/help
  Show this message.`

const sendTimeout = 30 * time.Second

// CommandEngine is the slice of the access-control engine the router needs.
// Satisfied by *gatekeeper.Engine.
type CommandEngine interface {
	Verify(
		ctx context.Context,
		identity gatekeeper.Identity,
		addr string,
		signature string,
	) (string, error)
	Revoke(
		ctx context.Context,
		identity gatekeeper.Identity,
		addr string,
	) (string, error)
	Request(
		ctx context.Context,
		identity gatekeeper.Identity,
		addr string,
	) (string, error)
	QueryMerit(ctx context.Context, displayName string) (string, error)
	ListVerified(ctx context.Context) (string, error)
	EnsureParticipant(
		ctx context.Context,
		identity gatekeeper.Identity,
	) (*models.Participant, bool, error)
}

type RouterConfig struct {
	Logger    *slog.Logger
	Engine    CommandEngine
	Transport Transport
	Janitor   *Janitor
	// ChatID restricts the router to one room; 0 handles every chat the bot
	// is in
	ChatID int64
}

// Router consumes transport updates, dispatches the bot commands, and
// enforces the speaking gate on everything else: messages from unverified
// identities are deleted on sight, and previously unseen identities get a
// participant record so their state can be tracked.
type Router struct {
	logger    *slog.Logger
	engine    CommandEngine
	transport Transport
	janitor   *Janitor
	chatID    int64
	doneCh    chan struct{}
	startOnce sync.Once
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Engine == nil {
		return nil, errors.New("no engine provided")
	}
	if cfg.Transport == nil {
		return nil, errors.New("no transport provided")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Router{
		logger:    cfg.Logger,
		engine:    cfg.Engine,
		transport: cfg.Transport,
		janitor:   cfg.Janitor,
		chatID:    cfg.ChatID,
		doneCh:    make(chan struct{}),
	}, nil
}

// Start launches the dispatch loop. The loop exits when the transport's
// updates channel is closed.
func (r *Router) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// Done returns a channel closed when the dispatch loop has exited
func (r *Router) Done() <-chan struct{} {
	return r.doneCh
}

func (r *Router) run() {
	defer close(r.doneCh)
	for msg := range r.transport.Updates() {
		r.handleMessage(msg)
	}
}

func (r *Router) handleMessage(msg Message) {
	if r.chatID != 0 && msg.ChatID != r.chatID {
		return
	}
	if msg.SenderID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if strings.HasPrefix(msg.Text, "/") {
		r.handleCommand(ctx, msg)
		return
	}
	r.gateMessage(ctx, msg)
}

// handleCommand dispatches one bot command. Commands with the wrong number
// of arguments are ignored outright rather than answered, matching the gate's
// one-reply-or-nothing contract.
func (r *Router) handleCommand(ctx context.Context, msg Message) {
	identity := gatekeeper.Identity{
		TelegramID: msg.SenderID,
		Username:   msg.Username,
	}
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return
	}
	// Commands in groups may arrive as /command@botname
	command, _, _ := strings.Cut(fields[0], "@")
	var reply string
	var err error
	switch command {
	case "/help", "/start":
		reply = helpText
	case "/verify":
		if len(fields) != 3 {
			return
		}
		reply, err = r.engine.Verify(ctx, identity, fields[1], fields[2])
	case "/revoke":
		if len(fields) != 2 {
			return
		}
		reply, err = r.engine.Revoke(ctx, identity, fields[1])
	case "/request":
		if len(fields) != 2 {
			return
		}
		reply, err = r.engine.Request(ctx, identity, fields[1])
	case "/merit":
		if len(fields) != 2 {
			return
		}
		reply, err = r.engine.QueryMerit(ctx, fields[1])
	case "/list":
		if len(fields) != 1 {
			return
		}
		reply, err = r.engine.ListVerified(ctx)
	default:
		// Unknown commands fall through to the speaking gate
		r.gateMessage(ctx, msg)
		return
	}
	if err != nil {
		r.logger.Error(
			"command failed",
			"component", "router",
			"command", command,
			"telegram_id", msg.SenderID,
			"error", err,
		)
		return
	}
	if reply == "" {
		return
	}
	sent, err := r.transport.SendMessage(ctx, msg.ChatID, reply)
	if err != nil {
		r.logger.Error(
			"failed to send reply",
			"component", "router",
			"command", command,
			"error", err,
		)
		return
	}
	if r.janitor != nil {
		r.janitor.ScheduleDelete(msg)
		r.janitor.ScheduleDelete(sent)
	}
}

// gateMessage enforces speaking rights on a non-command message: unseen
// identities get a record, and anything from an unverified identity is
// deleted
func (r *Router) gateMessage(ctx context.Context, msg Message) {
	identity := gatekeeper.Identity{
		TelegramID: msg.SenderID,
		Username:   msg.Username,
	}
	participant, created, err := r.engine.EnsureParticipant(ctx, identity)
	if err != nil {
		r.logger.Error(
			"failed to track participant",
			"component", "router",
			"telegram_id", msg.SenderID,
			"error", err,
		)
		return
	}
	if created {
		r.logger.Info(
			"new participant seen",
			"component", "router",
			"telegram_id", msg.SenderID,
			"username", msg.Username,
		)
	}
	if participant.Verified {
		return
	}
	if err := r.transport.DeleteMessage(ctx, msg.ChatID, msg.ID); err != nil {
		r.logger.Debug(
			"failed to delete unverified message",
			"component", "router",
			"chat_id", msg.ChatID,
			"message_id", msg.ID,
			"error", err,
		)
	}
}
