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

// Package bot bridges the CLI configuration to a running Gatekeeper: secret
// loading, metrics listener, and signal handling.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/doorman"
	"github.com/blinklabs-io/doorman/bch"
	"github.com/blinklabs-io/doorman/internal/config"
	"github.com/blinklabs-io/doorman/internal/secrets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "bot")
	// Load secrets. Inline values win; file values may be sops-encrypted.
	botToken := cfg.BotToken
	if botToken == "" && cfg.BotTokenFile != "" {
		tmpToken, err := secrets.LoadFile(cfg.BotTokenFile)
		if err != nil {
			return fmt.Errorf("loading bot token: %w", err)
		}
		botToken = tmpToken
	}
	mnemonic := cfg.Mnemonic
	if mnemonic == "" && cfg.MnemonicFile != "" {
		tmpMnemonic, err := secrets.LoadFile(cfg.MnemonicFile)
		if err != nil {
			return fmt.Errorf("loading wallet mnemonic: %w", err)
		}
		mnemonic = tmpMnemonic
	}
	shutdownTimeout := cfg.ShutdownTimeoutDuration()
	opts := []doorman.ConfigOptionFunc{
		doorman.WithLogger(logger),
		doorman.WithDataDir(cfg.DatabasePath),
		doorman.WithNetwork(cfg.Network),
		doorman.WithChatID(cfg.ChatId),
		doorman.WithBotToken(botToken),
		doorman.WithMeritThreshold(cfg.MeritThreshold),
		doorman.WithChallengePhrase(cfg.ChallengePhrase),
		doorman.WithTokenID(cfg.TokenId),
		doorman.WithIndexerURL(cfg.IndexerUrl),
		doorman.WithRevalidateInterval(cfg.RevalidateIntervalDuration()),
		doorman.WithDeleteDelay(cfg.DeleteDelayDuration()),
		doorman.WithShutdownTimeout(shutdownTimeout),
		// Enable metrics with default prometheus registry
		doorman.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		doorman.WithTracing(cfg.Tracing),
		doorman.WithTracingStdout(cfg.TracingStdout),
	}
	if cfg.WalletUrl != "" {
		var walletOpts []bch.WalletClientOption
		if mnemonic != "" {
			walletOpts = append(
				walletOpts,
				bch.WithWalletMnemonic(mnemonic),
			)
		}
		opts = append(
			opts,
			doorman.WithWallet(
				bch.NewWalletClient(cfg.WalletUrl, cfg.TokenId, walletOpts...),
			),
		)
	}
	g, err := doorman.New(doorman.NewConfig(opts...))
	if err != nil {
		return err
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		fmt.Sprintf("serving prometheus metrics on :%d", cfg.MetricsPort),
		"component", "bot",
	)
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "bot",
			)
			os.Exit(1)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run gatekeeper in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- g.Run()
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
		if err := g.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errChan:
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error(
				"metrics server shutdown error",
				"error", shutdownErr,
			)
		}
		if err != nil {
			return err
		}
		return g.Stop()
	}
}
