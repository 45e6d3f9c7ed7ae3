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
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const janitorDeleteTimeout = 10 * time.Second

type JanitorConfig struct {
	Logger    *slog.Logger
	Transport Transport
	Delay     time.Duration
}

// Janitor deletes command messages and bot replies after a short delay so
// verification chatter doesn't pile up in the room. Deletion only happens in
// supergroup chats; the Bot API can't delete messages elsewhere, and private
// chats are where people actually read the replies. Delete failures are
// logged and otherwise ignored.
type Janitor struct {
	logger    *slog.Logger
	transport Transport
	delay     time.Duration
	mutex     sync.Mutex
	timers    map[string]*time.Timer
	stopped   bool
}

func NewJanitor(cfg JanitorConfig) *Janitor {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Janitor{
		logger:    cfg.Logger,
		transport: cfg.Transport,
		delay:     cfg.Delay,
		timers:    make(map[string]*time.Timer),
	}
}

// ScheduleDelete queues a message for deletion after the configured delay.
// Messages outside supergroups are left alone.
func (j *Janitor) ScheduleDelete(msg Message) {
	if !msg.Supergroup {
		return
	}
	key := fmt.Sprintf("%d/%d", msg.ChatID, msg.ID)
	j.mutex.Lock()
	defer j.mutex.Unlock()
	if j.stopped {
		return
	}
	if _, ok := j.timers[key]; ok {
		return
	}
	j.timers[key] = time.AfterFunc(j.delay, func() {
		j.mutex.Lock()
		delete(j.timers, key)
		j.mutex.Unlock()
		ctx, cancel := context.WithTimeout(
			context.Background(),
			janitorDeleteTimeout,
		)
		defer cancel()
		if err := j.transport.DeleteMessage(
			ctx,
			msg.ChatID,
			msg.ID,
		); err != nil {
			j.logger.Debug(
				"failed to delete message",
				"component", "janitor",
				"chat_id", msg.ChatID,
				"message_id", msg.ID,
				"error", err,
			)
		}
	})
}

// Stop cancels all pending deletions
func (j *Janitor) Stop() {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.stopped = true
	for key, timer := range j.timers {
		timer.Stop()
		delete(j.timers, key)
	}
}
