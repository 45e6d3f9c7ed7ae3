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

// Package chatbot is the room-facing side of doorman: the Telegram transport,
// the command router, and the janitor that keeps command chatter out of the
// room.
package chatbot

import (
	"context"
)

// Message is a chat message normalized away from the transport's wire format
type Message struct {
	ID         int64
	ChatID     int64
	SenderID   int64
	Username   string
	Text       string
	Supergroup bool
}

// Transport delivers messages to and from the chat service. Updates returns
// the channel of incoming messages; it is closed when the transport stops.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string) (Message, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int64) error
	Updates() <-chan Message
}
