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
	"io"
	"log/slog"

	"github.com/blinklabs-io/doorman/event"
	"github.com/blinklabs-io/doorman/gatekeeper"
)

type NotifierConfig struct {
	Logger    *slog.Logger
	EventBus  *event.EventBus
	Transport Transport
	Engine    *gatekeeper.Engine
	ChatID    int64
}

// Notifier posts room notices for verifications paused by the revalidation
// sweeper, since those happen outside any command exchange. User-initiated
// revokes already got their reply from the router and are skipped.
type Notifier struct {
	logger    *slog.Logger
	eventBus  *event.EventBus
	transport Transport
	engine    *gatekeeper.Engine
	chatID    int64
	subID     event.EventSubscriberId
}

func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Notifier{
		logger:    cfg.Logger,
		eventBus:  cfg.EventBus,
		transport: cfg.Transport,
		engine:    cfg.Engine,
		chatID:    cfg.ChatID,
	}
}

// Start subscribes to revocation events
func (n *Notifier) Start() {
	if n.eventBus == nil {
		return
	}
	n.subID = n.eventBus.SubscribeFunc(
		event.VerificationRevokedEventType,
		n.handleRevoked,
	)
}

// Stop unsubscribes from revocation events
func (n *Notifier) Stop() {
	if n.eventBus == nil {
		return
	}
	n.eventBus.Unsubscribe(event.VerificationRevokedEventType, n.subID)
}

func (n *Notifier) handleRevoked(evt event.Event) {
	revoked, ok := evt.Data.(event.VerificationRevokedEvent)
	if !ok {
		return
	}
	if !revoked.Soft || n.chatID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	notice := n.engine.SoftRevokeNotice(revoked.Username, revoked.Merit)
	if _, err := n.transport.SendMessage(ctx, n.chatID, notice); err != nil {
		n.logger.Error(
			"failed to send revocation notice",
			"component", "notifier",
			"telegram_id", revoked.TelegramID,
			"error", err,
		)
	}
}
