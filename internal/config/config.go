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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "doorman.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultMeritThreshold  = 30000
	DefaultChallengePhrase = "verify"
	DefaultShutdownTimeout = "30s"
)

type Config struct {
	Network            string `yaml:"network"`
	DatabasePath       string `yaml:"databasePath"       split_words:"true"`
	ChatId             int64  `yaml:"chatId"             split_words:"true"`
	BotToken           string `yaml:"botToken"           split_words:"true"`
	BotTokenFile       string `yaml:"botTokenFile"       split_words:"true"`
	Mnemonic           string `yaml:"mnemonic"`
	MnemonicFile       string `yaml:"mnemonicFile"       split_words:"true"`
	MeritThreshold     uint64 `yaml:"meritThreshold"     split_words:"true"`
	ChallengePhrase    string `yaml:"challengePhrase"    split_words:"true"`
	TokenId            string `yaml:"tokenId"            split_words:"true"`
	WalletUrl          string `yaml:"walletUrl"          envconfig:"WALLET_URL"`
	IndexerUrl         string `yaml:"indexerUrl"         envconfig:"INDEXER_URL"`
	RevalidateInterval string `yaml:"revalidateInterval" split_words:"true"`
	DeleteDelay        string `yaml:"deleteDelay"        split_words:"true"`
	ShutdownTimeout    string `yaml:"shutdownTimeout"    split_words:"true"`
	MetricsPort        uint   `yaml:"metricsPort"        split_words:"true"`
	Tracing            bool   `yaml:"tracing"`
	TracingStdout      bool   `yaml:"tracingStdout"      split_words:"true"`
}

var globalConfig = &Config{
	Network:            "mainnet",
	DatabasePath:       ".doorman",
	MeritThreshold:     DefaultMeritThreshold,
	ChallengePhrase:    DefaultChallengePhrase,
	TokenId:            "22f8475fd82a4163a64cdb0d868534d016964b3acc8a6f0e6572f3c373d01866",
	WalletUrl:          "https://api.fullstack.cash/v5",
	IndexerUrl:         "https://psf-slp-indexer.fullstack.cash/slp/v1",
	RevalidateInterval: "24h",
	DeleteDelay:        "30s",
	ShutdownTimeout:    DefaultShutdownTimeout,
	MetricsPort:        8090,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.doorman/doorman.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".doorman", "doorman.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/doorman/doorman.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/doorman/doorman.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	err := envconfig.Process("doorman", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Validate durations up front so a typo fails at startup rather
	// than when the timer is first armed
	for _, d := range []struct {
		name  string
		value string
	}{
		{"revalidateInterval", globalConfig.RevalidateInterval},
		{"deleteDelay", globalConfig.DeleteDelay},
		{"shutdownTimeout", globalConfig.ShutdownTimeout},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
	}

	if globalConfig.MeritThreshold == 0 {
		globalConfig.MeritThreshold = DefaultMeritThreshold
	}
	if globalConfig.ChallengePhrase == "" {
		globalConfig.ChallengePhrase = DefaultChallengePhrase
	}

	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}

// RevalidateIntervalDuration returns the parsed revalidation sweep interval
func (c *Config) RevalidateIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.RevalidateInterval)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// DeleteDelayDuration returns the parsed deferred message cleanup delay
func (c *Config) DeleteDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.DeleteDelay)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ShutdownTimeoutDuration returns the parsed graceful shutdown timeout
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
