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

// Package gatekeeper implements the verification and access-control engine.
// It decides who may speak in the room: a participant proves ownership of a
// BCH address by signing a challenge phrase, claims the address, and is
// granted speaking rights while their merit stays at or above the threshold.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/blinklabs-io/doorman/bch"
	"github.com/blinklabs-io/doorman/database"
	"github.com/blinklabs-io/doorman/database/models"
	"github.com/blinklabs-io/doorman/event"
	"github.com/blinklabs-io/doorman/merit"
	"github.com/prometheus/client_golang/prometheus"
)

// Verifier validates address-ownership proofs. Satisfied by bch.Verifier.
type Verifier interface {
	VerifyMessage(addr string, signature string, message string) (bool, error)
	NormalizeAddress(addr string) (string, error)
	SlpAddress(addr string) (string, error)
}

// Identity is the chat identity a command arrived from
type Identity struct {
	TelegramID int64
	Username   string
}

type Config struct {
	Logger          *slog.Logger
	EventBus        *event.EventBus
	PromRegistry    prometheus.Registerer
	Store           *database.Database
	Verifier        Verifier
	Oracle          merit.Oracle
	Wallet          bch.Wallet
	MeritThreshold  uint64
	ChallengePhrase string
}

// Engine is the access-control decision maker. All state-changing commands
// for an identity are serialized on a per-identity lock, and every store
// write goes through the revision check with a single retry of the whole
// sequence on conflict.
type Engine struct {
	logger          *slog.Logger
	eventBus        *event.EventBus
	store           *database.Database
	verifier        Verifier
	oracle          merit.Oracle
	wallet          bch.Wallet
	meritThreshold  uint64
	challengePhrase string
	locks           *identityLocks
	metrics         *engineMetrics
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("no store provided")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("no verifier provided")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("no oracle provided")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e := &Engine{
		logger:          cfg.Logger,
		eventBus:        cfg.EventBus,
		store:           cfg.Store,
		verifier:        cfg.Verifier,
		oracle:          cfg.Oracle,
		wallet:          cfg.Wallet,
		meritThreshold:  cfg.MeritThreshold,
		challengePhrase: cfg.ChallengePhrase,
		locks:           newIdentityLocks(),
		metrics:         registerEngineMetrics(cfg.PromRegistry),
	}
	return e, nil
}

// MeritThreshold returns the configured minimum merit for speaking rights
func (e *Engine) MeritThreshold() uint64 {
	return e.meritThreshold
}

// Verify processes an ownership proof for an address. The caller has already
// split the command into an address and signature. Returns the single reply
// to post in the room.
func (e *Engine) Verify(
	ctx context.Context,
	identity Identity,
	addr string,
	signature string,
) (string, error) {
	e.metrics.commands.WithLabelValues("verify").Inc()
	normalized, err := e.verifier.NormalizeAddress(addr)
	if err != nil {
		if errors.Is(err, bch.ErrInvalidInput) {
			return msgVerifyFailed(identity.Username), nil
		}
		return "", err
	}
	ok, err := e.verifier.VerifyMessage(
		normalized,
		signature,
		e.challengePhrase,
	)
	if err != nil {
		if errors.Is(err, bch.ErrInvalidInput) {
			return msgVerifyFailed(identity.Username), nil
		}
		return "", err
	}
	if !ok {
		e.logger.Info(
			"signature proof rejected",
			"component", "gatekeeper",
			"telegram_id", identity.TelegramID,
			"address", normalized,
		)
		return msgVerifyFailed(identity.Username), nil
	}
	slpAddr, err := e.verifier.SlpAddress(normalized)
	if err != nil {
		return "", err
	}
	unlock := e.locks.Lock(identity.TelegramID)
	defer unlock()
	// The claim check, scoring, and persist run as one sequence. A revision
	// conflict means a concurrent writer changed this identity's record, so
	// the whole sequence is retried once from a fresh read.
	var reply string
	for attempt := 0; attempt < 2; attempt++ {
		reply, err = e.verifyOnce(ctx, identity, normalized, slpAddr)
		if errors.Is(err, database.ErrConflict) {
			e.logger.Warn(
				"verify retry after revision conflict",
				"component", "gatekeeper",
				"telegram_id", identity.TelegramID,
				"attempt", attempt+1,
			)
			continue
		}
		break
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (e *Engine) verifyOnce(
	ctx context.Context,
	identity Identity,
	bchAddr string,
	slpAddr string,
) (string, error) {
	owner, claimed, err := e.checkClaim(ctx, bchAddr, identity.TelegramID)
	if err != nil {
		return "", err
	}
	if claimed {
		return msgAlreadyClaimed(identity.Username, owner), nil
	}
	score, err := e.oracle.Score(ctx, slpAddr)
	if err != nil {
		// Fail closed: no mutation on an oracle failure
		e.metrics.oracleFailures.Inc()
		e.logger.Error(
			"merit oracle failure",
			"component", "gatekeeper",
			"telegram_id", identity.TelegramID,
			"error", err,
		)
		return msgOracleFailure(identity.Username), nil
	}
	now := time.Now()
	verified := score >= e.meritThreshold
	participant, err := e.store.GetParticipantByTelegramID(
		ctx,
		identity.TelegramID,
	)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return "", err
		}
		participant = &models.Participant{
			TelegramID: identity.TelegramID,
		}
	}
	participant.Username = identity.Username
	participant.BchAddr = bchAddr
	participant.SlpAddr = slpAddr
	participant.Merit = score
	participant.Verified = verified
	participant.LastVerified = &now
	if participant.ID == 0 {
		if err := e.store.CreateParticipant(ctx, participant); err != nil {
			return "", err
		}
	} else {
		if err := e.store.UpdateParticipant(
			ctx,
			participant,
			participant.Revision,
		); err != nil {
			return "", err
		}
	}
	if verified {
		e.metrics.granted.Inc()
		e.publish(
			event.VerificationGrantedEventType,
			event.VerificationGrantedEvent{
				TelegramID: identity.TelegramID,
				Username:   identity.Username,
				BchAddr:    bchAddr,
				Merit:      score,
			},
		)
		e.logger.Info(
			"verification granted",
			"component", "gatekeeper",
			"telegram_id", identity.TelegramID,
			"merit", score,
		)
		return msgVerifySuccess(identity.Username, score), nil
	}
	e.logger.Info(
		"verification shortfall",
		"component", "gatekeeper",
		"telegram_id", identity.TelegramID,
		"merit", score,
		"threshold", e.meritThreshold,
	)
	return msgMeritShortfall(identity.Username, score, e.meritThreshold), nil
}

// Revoke releases an identity's claim on an address. Only the current
// claimant can revoke, and revoking an unclaimed address is a no-op with a
// friendly reply.
func (e *Engine) Revoke(
	ctx context.Context,
	identity Identity,
	addr string,
) (string, error) {
	e.metrics.commands.WithLabelValues("revoke").Inc()
	normalized, err := e.verifier.NormalizeAddress(addr)
	if err != nil {
		if errors.Is(err, bch.ErrInvalidInput) {
			return msgInvalidAddress(identity.Username), nil
		}
		return "", err
	}
	unlock := e.locks.Lock(identity.TelegramID)
	defer unlock()
	var reply string
	for i := 0; i < 2; i++ {
		reply, err = e.revokeOnce(ctx, identity, normalized)
		if errors.Is(err, database.ErrConflict) {
			continue
		}
		break
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (e *Engine) revokeOnce(
	ctx context.Context,
	identity Identity,
	bchAddr string,
) (string, error) {
	participant, err := e.store.GetParticipantByBchAddr(ctx, bchAddr)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return msgNothingToRevoke(identity.Username), nil
		}
		return "", err
	}
	if participant.TelegramID != identity.TelegramID {
		return msgRevokeWrongOwner(identity.Username), nil
	}
	participant.BchAddr = ""
	participant.SlpAddr = ""
	participant.Merit = 0
	participant.Verified = false
	if err := e.store.UpdateParticipant(
		ctx,
		participant,
		participant.Revision,
	); err != nil {
		return "", err
	}
	e.metrics.revoked.WithLabelValues("explicit").Inc()
	e.publish(
		event.VerificationRevokedEventType,
		event.VerificationRevokedEvent{
			TelegramID: identity.TelegramID,
			Username:   identity.Username,
			BchAddr:    bchAddr,
		},
	)
	e.logger.Info(
		"claim revoked",
		"component", "gatekeeper",
		"telegram_id", identity.TelegramID,
	)
	return msgRevoked(identity.Username), nil
}

// Request sends a single token to the given address so a prospective
// participant can bootstrap their merit. No participant state changes.
func (e *Engine) Request(
	ctx context.Context,
	identity Identity,
	addr string,
) (string, error) {
	e.metrics.commands.WithLabelValues("request").Inc()
	if e.wallet == nil {
		return msgTokenSendFailed(identity.Username), nil
	}
	normalized, err := e.verifier.NormalizeAddress(addr)
	if err != nil {
		if errors.Is(err, bch.ErrInvalidInput) {
			return msgInvalidAddress(identity.Username), nil
		}
		return "", err
	}
	slpAddr, err := e.verifier.SlpAddress(normalized)
	if err != nil {
		return "", err
	}
	txid, err := e.wallet.SendToken(ctx, slpAddr)
	if err != nil {
		e.logger.Error(
			"token send failure",
			"component", "gatekeeper",
			"telegram_id", identity.TelegramID,
			"error", err,
		)
		return msgTokenSendFailed(identity.Username), nil
	}
	e.logger.Info(
		"token sent",
		"component", "gatekeeper",
		"telegram_id", identity.TelegramID,
		"txid", txid,
	)
	return msgTokenSent(identity.Username, txid), nil
}

// QueryMerit reports the live merit score for a participant by display name
func (e *Engine) QueryMerit(
	ctx context.Context,
	displayName string,
) (string, error) {
	e.metrics.commands.WithLabelValues("merit").Inc()
	displayName = strings.TrimPrefix(displayName, "@")
	participant, err := e.store.GetParticipantByUsername(ctx, displayName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return msgMeritNotFound(displayName), nil
		}
		return "", err
	}
	if !participant.HasClaim() {
		return msgMeritNotFound(displayName), nil
	}
	score, err := e.oracle.Score(ctx, participant.SlpAddr)
	if err != nil {
		e.metrics.oracleFailures.Inc()
		return msgOracleFailure(displayName), nil
	}
	return msgMeritScore(displayName, score), nil
}

// ListVerified returns the room's verified participants as a single reply
func (e *Engine) ListVerified(ctx context.Context) (string, error) {
	e.metrics.commands.WithLabelValues("list").Inc()
	participants, err := e.store.ListVerifiedParticipants(ctx)
	if err != nil {
		return "", err
	}
	usernames := make([]string, 0, len(participants))
	for _, participant := range participants {
		usernames = append(usernames, participant.Username)
	}
	return msgVerifiedList(usernames), nil
}

// EnsureParticipant records an identity the first time it is seen and keeps
// its display name current. Returns the record and whether it was created.
func (e *Engine) EnsureParticipant(
	ctx context.Context,
	identity Identity,
) (*models.Participant, bool, error) {
	participant, err := e.store.GetParticipantByTelegramID(
		ctx,
		identity.TelegramID,
	)
	if err == nil {
		if participant.Username != identity.Username &&
			identity.Username != "" {
			participant.Username = identity.Username
			// Best effort: a conflict just means another writer already has a
			// fresher record
			if err := e.store.UpdateParticipant(
				ctx,
				participant,
				participant.Revision,
			); err != nil && !errors.Is(err, database.ErrConflict) {
				return nil, false, err
			}
		}
		return participant, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, err
	}
	participant = &models.Participant{
		TelegramID: identity.TelegramID,
		Username:   identity.Username,
	}
	if err := e.store.CreateParticipant(ctx, participant); err != nil {
		return nil, false, err
	}
	e.publish(
		event.ParticipantCreatedEventType,
		event.ParticipantCreatedEvent{
			TelegramID: identity.TelegramID,
			Username:   identity.Username,
		},
	)
	return participant, true, nil
}

// Recheck re-scores a verified participant's claimed address. Called by the
// revalidation sweeper; the stored proof of ownership is trusted, only the
// merit is re-checked. Below-threshold scores pause speaking rights but keep
// the claim so nobody else can grab the address. An oracle failure leaves
// the record untouched.
func (e *Engine) Recheck(ctx context.Context, telegramID int64) error {
	unlock := e.locks.Lock(telegramID)
	defer unlock()
	var err error
	for i := 0; i < 2; i++ {
		err = e.recheckOnce(ctx, telegramID)
		if errors.Is(err, database.ErrConflict) {
			continue
		}
		break
	}
	return err
}

func (e *Engine) recheckOnce(ctx context.Context, telegramID int64) error {
	participant, err := e.store.GetParticipantByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}
	if !participant.Verified || !participant.HasClaim() {
		return nil
	}
	score, err := e.oracle.Score(ctx, participant.SlpAddr)
	if err != nil {
		e.metrics.oracleFailures.Inc()
		return fmt.Errorf("re-scoring participant %d: %w", telegramID, err)
	}
	now := time.Now()
	participant.Merit = score
	participant.LastVerified = &now
	if score < e.meritThreshold {
		participant.Verified = false
	}
	if err := e.store.UpdateParticipant(
		ctx,
		participant,
		participant.Revision,
	); err != nil {
		return err
	}
	if !participant.Verified {
		e.metrics.revoked.WithLabelValues("soft").Inc()
		e.publish(
			event.VerificationRevokedEventType,
			event.VerificationRevokedEvent{
				TelegramID: participant.TelegramID,
				Username:   participant.Username,
				BchAddr:    participant.BchAddr,
				Merit:      score,
				Soft:       true,
			},
		)
		e.logger.Info(
			"verification paused below threshold",
			"component", "gatekeeper",
			"telegram_id", telegramID,
			"merit", score,
			"threshold", e.meritThreshold,
		)
	}
	return nil
}

// SoftRevokeNotice formats the room notice for a sweeper-initiated pause
func (e *Engine) SoftRevokeNotice(
	username string,
	score uint64,
) string {
	return msgSoftRevoked(username, score, e.meritThreshold)
}

func (e *Engine) publish(eventType event.EventType, data any) {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(eventType, event.NewEvent(eventType, data))
}
