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
	"testing"
	"time"

	"github.com/blinklabs-io/doorman/chatbot"
	"github.com/stretchr/testify/assert"
)

func TestJanitorDeletesAfterDelay(t *testing.T) {
	transport := newFakeTransport()
	janitor := chatbot.NewJanitor(chatbot.JanitorConfig{
		Transport: transport,
		Delay:     20 * time.Millisecond,
	})
	defer janitor.Stop()
	janitor.ScheduleDelete(chatbot.Message{
		ID:         1,
		ChatID:     100,
		Supergroup: true,
	})
	janitor.ScheduleDelete(chatbot.Message{
		ID:         2,
		ChatID:     100,
		Supergroup: true,
	})
	assert.Empty(t, transport.deletedMessages())
	waitFor(t, func() bool { return len(transport.deletedMessages()) == 2 })
}

func TestJanitorSkipsNonSupergroup(t *testing.T) {
	transport := newFakeTransport()
	janitor := chatbot.NewJanitor(chatbot.JanitorConfig{
		Transport: transport,
		Delay:     time.Millisecond,
	})
	defer janitor.Stop()
	janitor.ScheduleDelete(chatbot.Message{
		ID:     1,
		ChatID: 100,
	})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, transport.deletedMessages())
}

func TestJanitorStopCancelsPending(t *testing.T) {
	transport := newFakeTransport()
	janitor := chatbot.NewJanitor(chatbot.JanitorConfig{
		Transport: transport,
		Delay:     50 * time.Millisecond,
	})
	janitor.ScheduleDelete(chatbot.Message{
		ID:         1,
		ChatID:     100,
		Supergroup: true,
	})
	janitor.Stop()
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, transport.deletedMessages())
}
