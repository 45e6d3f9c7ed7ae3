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

package doorman

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/doorman/bch"
	"github.com/blinklabs-io/doorman/chatbot"
	"github.com/blinklabs-io/doorman/merit"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry       prometheus.Registerer
	logger             *slog.Logger
	oracle             merit.Oracle
	wallet             bch.Wallet
	transport          chatbot.Transport
	dataDir            string
	network            string
	botToken           string
	tokenID            string
	walletURL          string
	indexerURL         string
	challengePhrase    string
	chatID             int64
	meritThreshold     uint64
	revalidateInterval time.Duration
	deleteDelay        time.Duration
	shutdownTimeout    time.Duration
	tracing            bool
	tracingStdout      bool
}

// ConfigOptionFunc is a function that modifies the Config
type ConfigOptionFunc func(*Config)

// NewConfig creates a Config with default values and applies the provided
// options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		logger:             slog.New(slog.NewJSONHandler(io.Discard, nil)),
		network:            "mainnet",
		challengePhrase:    "verify",
		meritThreshold:     30000,
		revalidateInterval: 24 * time.Hour,
		deleteDelay:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer for metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDataDir specifies the storage directory. An empty value means an
// in-memory participant store.
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithNetwork specifies the named BCH network (mainnet or testnet)
func WithNetwork(network string) ConfigOptionFunc {
	return func(c *Config) {
		c.network = network
	}
}

// WithChatID restricts the bot to a single chat room
func WithChatID(chatID int64) ConfigOptionFunc {
	return func(c *Config) {
		c.chatID = chatID
	}
}

// WithBotToken specifies the Telegram Bot API token
func WithBotToken(token string) ConfigOptionFunc {
	return func(c *Config) {
		c.botToken = token
	}
}

// WithMeritThreshold specifies the minimum merit for speaking rights
func WithMeritThreshold(threshold uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.meritThreshold = threshold
	}
}

// WithChallengePhrase specifies the message participants sign to prove
// address ownership
func WithChallengePhrase(phrase string) ConfigOptionFunc {
	return func(c *Config) {
		c.challengePhrase = phrase
	}
}

// WithTokenID specifies the token whose aged holdings count as merit
func WithTokenID(tokenID string) ConfigOptionFunc {
	return func(c *Config) {
		c.tokenID = tokenID
	}
}

// WithWalletURL specifies the wallet service endpoint for /request payouts
func WithWalletURL(walletURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.walletURL = walletURL
	}
}

// WithIndexerURL specifies the SLP indexer endpoint for merit scoring
func WithIndexerURL(indexerURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.indexerURL = indexerURL
	}
}

// WithRevalidateInterval specifies how often verified participants are
// re-scored
func WithRevalidateInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.revalidateInterval = interval
	}
}

// WithDeleteDelay specifies how long command chatter stays in the room
// before the janitor removes it
func WithDeleteDelay(delay time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.deleteDelay = delay
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithTracing enables OpenTelemetry tracing
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables the stdout trace exporter instead of OTLP-HTTP
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithOracle overrides the merit oracle, mostly for tests
func WithOracle(oracle merit.Oracle) ConfigOptionFunc {
	return func(c *Config) {
		c.oracle = oracle
	}
}

// WithWallet overrides the token wallet, mostly for tests
func WithWallet(wallet bch.Wallet) ConfigOptionFunc {
	return func(c *Config) {
		c.wallet = wallet
	}
}

// WithTransport overrides the chat transport, mostly for tests
func WithTransport(transport chatbot.Transport) ConfigOptionFunc {
	return func(c *Config) {
		c.transport = transport
	}
}

// networkPrefix maps the named network to its cashaddr prefix
func (c *Config) networkPrefix() (string, error) {
	switch c.network {
	case "", "mainnet":
		return bch.MainnetPrefix, nil
	case "testnet":
		return bch.TestnetPrefix, nil
	default:
		return "", fmt.Errorf("unknown network name: %s", c.network)
	}
}

func (g *Gatekeeper) configValidate() error {
	if _, err := g.config.networkPrefix(); err != nil {
		return err
	}
	if g.config.challengePhrase == "" {
		return errors.New("no challenge phrase defined")
	}
	if g.config.meritThreshold == 0 {
		return errors.New("merit threshold must be positive")
	}
	if g.config.revalidateInterval <= 0 {
		return errors.New("revalidate interval must be positive")
	}
	if g.config.oracle == nil && g.config.indexerURL == "" {
		return errors.New("no indexer URL defined")
	}
	if g.config.transport == nil && g.config.botToken == "" {
		return errors.New("no bot token defined")
	}
	if g.config.oracle == nil && g.config.tokenID == "" {
		return errors.New("no token ID defined")
	}
	return nil
}
