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

package database

import (
	"context"
	"errors"
	"time"

	"github.com/blinklabs-io/doorman/database/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no participant matches the query
	ErrNotFound = errors.New("participant not found")
	// ErrConflict is returned by UpdateParticipant when the stored revision
	// does not match the expected revision, meaning another writer got there
	// first. Callers must re-read and retry.
	ErrConflict = errors.New("participant revision conflict")
)

// GetParticipantByTelegramID returns the participant record for a chat identity
func (d *Database) GetParticipantByTelegramID(
	ctx context.Context,
	telegramId int64,
) (*models.Participant, error) {
	var tmpParticipant models.Participant
	result := d.db.WithContext(ctx).
		First(&tmpParticipant, "telegram_id = ?", telegramId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &tmpParticipant, nil
}

// GetParticipantByBchAddr returns the participant record holding a claimed
// address, if any
func (d *Database) GetParticipantByBchAddr(
	ctx context.Context,
	bchAddr string,
) (*models.Participant, error) {
	if bchAddr == "" {
		return nil, ErrNotFound
	}
	var tmpParticipant models.Participant
	result := d.db.WithContext(ctx).
		First(&tmpParticipant, "bch_addr = ?", bchAddr)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &tmpParticipant, nil
}

// GetParticipantByUsername returns the participant record for a display name.
// Display names are advisory and not unique; the most recently updated record
// wins.
func (d *Database) GetParticipantByUsername(
	ctx context.Context,
	username string,
) (*models.Participant, error) {
	var tmpParticipant models.Participant
	result := d.db.WithContext(ctx).
		Order("updated_at DESC").
		First(&tmpParticipant, "username = ?", username)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &tmpParticipant, nil
}

// CreateParticipant inserts a new participant record with revision 1
func (d *Database) CreateParticipant(
	ctx context.Context,
	participant *models.Participant,
) error {
	participant.Revision = 1
	result := d.db.WithContext(ctx).Create(participant)
	return result.Error
}

// UpdateParticipant persists the given record if and only if the stored
// revision still matches expectedRevision. On success the record's revision
// is bumped. Returns ErrConflict when another writer modified the record
// since it was read.
func (d *Database) UpdateParticipant(
	ctx context.Context,
	participant *models.Participant,
	expectedRevision uint64,
) error {
	newRevision := expectedRevision + 1
	result := d.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("id = ? AND revision = ?", participant.ID, expectedRevision).
		Updates(map[string]any{
			"username":      participant.Username,
			"bch_addr":      participant.BchAddr,
			"slp_addr":      participant.SlpAddr,
			"merit":         participant.Merit,
			"verified":      participant.Verified,
			"last_verified": participant.LastVerified,
			"revision":      newRevision,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if d.metrics != nil {
			d.metrics.conflicts.Inc()
		}
		return ErrConflict
	}
	participant.Revision = newRevision
	if d.metrics != nil {
		d.metrics.updates.Inc()
	}
	return nil
}

// ListVerifiedParticipants returns all records with verified speaking rights
func (d *Database) ListVerifiedParticipants(
	ctx context.Context,
) ([]models.Participant, error) {
	var ret []models.Participant
	result := d.db.WithContext(ctx).
		Where("verified = ?", true).
		Order("username ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// ListStaleVerified returns verified records whose last verification is
// older than the given cutoff. Used by the revalidation sweeper.
func (d *Database) ListStaleVerified(
	ctx context.Context,
	cutoff time.Time,
) ([]models.Participant, error) {
	var ret []models.Participant
	result := d.db.WithContext(ctx).
		Where("verified = ? AND last_verified < ?", true, cutoff).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
