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

package models

import (
	"time"
)

// Participant is one chat identity and its verification state. TelegramID is
// the identity key; Username is advisory only and refreshed from the last
// message seen. BchAddr is empty until the participant proves ownership of
// an address via /verify.
type Participant struct {
	ID           uint   `gorm:"primarykey"`
	TelegramID   int64  `gorm:"uniqueIndex"`
	Username     string `gorm:"index;size:255"`
	BchAddr      string `gorm:"index;size:255"`
	SlpAddr      string `gorm:"size:255"`
	Merit        uint64
	Verified     bool `gorm:"index"`
	LastVerified *time.Time
	// Revision is bumped on every update and checked by the store's
	// optimistic-concurrency Update
	Revision  uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Participant) TableName() string {
	return "participant"
}

// HasClaim returns true if the participant has a claimed address on record
func (p *Participant) HasClaim() bool {
	return p.BchAddr != ""
}
