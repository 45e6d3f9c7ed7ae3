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

package gatekeeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	// defaultRecheckTimeout bounds a single participant's recheck so one
	// stuck oracle call cannot stall the whole sweep
	defaultRecheckTimeout = 30 * time.Second
)

type SweeperConfig struct {
	Logger   *slog.Logger
	Engine   *Engine
	Interval time.Duration
	// RecheckTimeout overrides the per-participant timeout, mostly for tests
	RecheckTimeout time.Duration
}

// Sweeper periodically re-scores verified participants whose last
// verification has gone stale. The timer stays disarmed while a sweep runs
// and is re-armed unconditionally afterward, so overlapping sweeps are
// impossible and a failed sweep doesn't stop future ones.
type Sweeper struct {
	logger         *slog.Logger
	engine         *Engine
	interval       time.Duration
	recheckTimeout time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
	startOnce      sync.Once
	stopOnce       sync.Once
}

func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Engine == nil {
		return nil, errors.New("no engine provided")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.RecheckTimeout <= 0 {
		cfg.RecheckTimeout = defaultRecheckTimeout
	}
	return &Sweeper{
		logger:         cfg.Logger,
		engine:         cfg.Engine,
		interval:       cfg.Interval,
		recheckTimeout: cfg.RecheckTimeout,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}, nil
}

// Start launches the sweep loop. Safe to call once.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}

func (s *Sweeper) run() {
	defer close(s.doneCh)
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.Sweep()
			timer.Reset(s.interval)
		}
	}
}

// Sweep runs one revalidation pass over all stale verified participants. One
// participant's failure never aborts the rest of the pass.
func (s *Sweeper) Sweep() {
	start := time.Now()
	defer func() {
		s.engine.metrics.sweepDuration.Observe(time.Since(start).Seconds())
	}()
	ctx := context.Background()
	cutoff := start.Add(-s.interval)
	stale, err := s.engine.store.ListStaleVerified(ctx, cutoff)
	if err != nil {
		s.logger.Error(
			"failed to list stale participants",
			"component", "sweeper",
			"error", err,
		)
		return
	}
	if len(stale) == 0 {
		return
	}
	s.logger.Info(
		"revalidation sweep starting",
		"component", "sweeper",
		"participants", len(stale),
	)
	var failures int
	for _, participant := range stale {
		select {
		case <-s.stopCh:
			s.logger.Info(
				"revalidation sweep interrupted by shutdown",
				"component", "sweeper",
			)
			return
		default:
		}
		recheckCtx, cancel := context.WithTimeout(ctx, s.recheckTimeout)
		err := s.engine.Recheck(recheckCtx, participant.TelegramID)
		cancel()
		s.engine.metrics.sweepChecked.Inc()
		if err != nil {
			failures++
			s.engine.metrics.sweepFailures.Inc()
			s.logger.Error(
				"participant recheck failed",
				"component", "sweeper",
				"telegram_id", participant.TelegramID,
				"error", err,
			)
		}
	}
	s.logger.Info(
		"revalidation sweep finished",
		"component", "sweeper",
		"participants", len(stale),
		"failures", failures,
		"duration", time.Since(start).String(),
	)
}
