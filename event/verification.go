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

package event

const (
	ParticipantCreatedEventType  EventType = "participant.created"
	VerificationGrantedEventType EventType = "verification.granted"
	VerificationRevokedEventType EventType = "verification.revoked"
)

// ParticipantCreatedEvent is published when a record is created for a
// previously unseen chat identity
type ParticipantCreatedEvent struct {
	TelegramID int64
	Username   string
}

// VerificationGrantedEvent is published when a participant passes the merit
// threshold, either on initial /verify or on a scheduled recheck
type VerificationGrantedEvent struct {
	TelegramID int64
	Username   string
	BchAddr    string
	Merit      uint64
}

// VerificationRevokedEvent is published when a participant loses speaking
// rights. Soft is true for scheduler-driven revocations, which preserve the
// claimed address; user-initiated /revoke clears it.
type VerificationRevokedEvent struct {
	TelegramID int64
	Username   string
	BchAddr    string
	Merit      uint64
	Soft       bool
}
