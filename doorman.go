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

// Package doorman wires the verification engine, participant store,
// revalidation sweeper, and chat transport into one runnable gatekeeper for
// a merit-gated chat room.
package doorman

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/doorman/bch"
	"github.com/blinklabs-io/doorman/chatbot"
	"github.com/blinklabs-io/doorman/database"
	"github.com/blinklabs-io/doorman/event"
	"github.com/blinklabs-io/doorman/gatekeeper"
	"github.com/blinklabs-io/doorman/merit"
)

type Gatekeeper struct {
	config        Config
	eventBus      *event.EventBus
	db            *database.Database
	engine        *gatekeeper.Engine
	sweeper       *gatekeeper.Sweeper
	transport     chatbot.Transport
	telegram      *chatbot.Telegram
	router        *chatbot.Router
	janitor       *chatbot.Janitor
	notifier      *chatbot.Notifier
	shutdownFuncs []func(context.Context) error
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Gatekeeper, error) {
	g := &Gatekeeper{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		done:     make(chan struct{}),
	}
	if err := g.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return g, nil
}

func (g *Gatekeeper) Run() error {
	// Configure tracing
	if g.config.tracing {
		if err := g.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:      g.config.dataDir,
		Logger:       g.config.logger,
		PromRegistry: g.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	g.db = db
	// Build the proof verifier for the configured network
	prefix, err := g.config.networkPrefix()
	if err != nil {
		return err
	}
	verifier := bch.NewVerifier(prefix)
	// Merit oracle
	oracle := g.config.oracle
	if oracle == nil {
		oracle = merit.NewClient(g.config.indexerURL, g.config.tokenID)
	}
	// Token wallet
	wallet := g.config.wallet
	if wallet == nil && g.config.walletURL != "" {
		wallet = bch.NewWalletClient(g.config.walletURL, g.config.tokenID)
	}
	// Access-control engine
	engine, err := gatekeeper.New(gatekeeper.Config{
		Logger:          g.config.logger,
		EventBus:        g.eventBus,
		PromRegistry:    g.config.promRegistry,
		Store:           g.db,
		Verifier:        verifier,
		Oracle:          oracle,
		Wallet:          wallet,
		MeritThreshold:  g.config.meritThreshold,
		ChallengePhrase: g.config.challengePhrase,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	g.engine = engine
	// Revalidation sweeper
	g.sweeper, err = gatekeeper.NewSweeper(gatekeeper.SweeperConfig{
		Logger:   g.config.logger,
		Engine:   g.engine,
		Interval: g.config.revalidateInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create sweeper: %w", err)
	}
	g.sweeper.Start()
	// Chat transport
	g.transport = g.config.transport
	if g.transport == nil {
		g.telegram = chatbot.NewTelegram(
			g.config.botToken,
			chatbot.WithTelegramLogger(g.config.logger),
		)
		g.telegram.Start()
		g.transport = g.telegram
	}
	// Janitor for command chatter
	g.janitor = chatbot.NewJanitor(chatbot.JanitorConfig{
		Logger:    g.config.logger,
		Transport: g.transport,
		Delay:     g.config.deleteDelay,
	})
	// Room notices for sweeper revocations
	g.notifier = chatbot.NewNotifier(chatbot.NotifierConfig{
		Logger:    g.config.logger,
		EventBus:  g.eventBus,
		Transport: g.transport,
		Engine:    g.engine,
		ChatID:    g.config.chatID,
	})
	g.notifier.Start()
	// Command router
	g.router, err = chatbot.NewRouter(chatbot.RouterConfig{
		Logger:    g.config.logger,
		Engine:    g.engine,
		Transport: g.transport,
		Janitor:   g.janitor,
		ChatID:    g.config.chatID,
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}
	g.router.Start()
	g.config.logger.Info(
		"doorman started",
		"component", "doorman",
		"merit_threshold", g.config.meritThreshold,
		"revalidate_interval", g.config.revalidateInterval.String(),
	)

	// Wait for shutdown signal
	<-g.done
	return nil
}

// Engine returns the access-control engine. Nil until Run has started it.
func (g *Gatekeeper) Engine() *gatekeeper.Engine {
	return g.engine
}

func (g *Gatekeeper) Stop() error {
	var err error
	g.shutdownOnce.Do(func() {
		err = g.shutdown()
	})
	return err
}

func (g *Gatekeeper) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if g.config.shutdownTimeout > 0 {
		shutdownTimeout = g.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	g.config.logger.Debug("starting graceful shutdown")

	// Phase 1: stop taking in new messages
	g.config.logger.Debug("shutdown phase 1: stopping transport")

	if g.telegram != nil {
		g.telegram.Stop()
	}
	if g.router != nil {
		// The router drains whatever the transport already delivered
		select {
		case <-g.router.Done():
		case <-ctx.Done():
			err = errors.Join(err, errors.New("router drain timed out"))
		}
	}

	// Phase 2: stop background work
	g.config.logger.Debug("shutdown phase 2: stopping background work")

	if g.sweeper != nil {
		g.sweeper.Stop()
	}
	if g.notifier != nil {
		g.notifier.Stop()
	}
	if g.janitor != nil {
		g.janitor.Stop()
	}

	// Phase 3: close the database
	g.config.logger.Debug("shutdown phase 3: closing database")

	if g.db != nil {
		if closeErr := g.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: cleanup resources
	g.config.logger.Debug("shutdown phase 4: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range g.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	g.shutdownFuncs = nil

	if g.eventBus != nil {
		g.eventBus.Stop()
	}

	g.config.logger.Debug("graceful shutdown complete")
	close(g.done)
	return err
}
