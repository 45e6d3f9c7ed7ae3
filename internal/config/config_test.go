package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func resetGlobalConfig() {
	globalConfig = &Config{
		Network:            "mainnet",
		DatabasePath:       ".doorman",
		MeritThreshold:     30000,
		ChallengePhrase:    "verify",
		TokenId:            "22f8475fd82a4163a64cdb0d868534d016964b3acc8a6f0e6572f3c373d01866",
		WalletUrl:          "https://api.fullstack.cash/v5",
		IndexerUrl:         "https://psf-slp-indexer.fullstack.cash/slp/v1",
		RevalidateInterval: "24h",
		DeleteDelay:        "30s",
		ShutdownTimeout:    "30s",
		MetricsPort:        8090,
	}
}

func TestLoad_CompareFullStruct(t *testing.T) {
	resetGlobalConfig()
	yamlContent := `
network: "mainnet"
databasePath: ".doorman"
chatId: -1001234567890
meritThreshold: 40000
challengePhrase: "verify"
tokenId: "deadbeef"
walletUrl: "http://localhost:5001/v5"
indexerUrl: "http://localhost:5002/slp/v1"
revalidateInterval: "12h"
deleteDelay: "15s"
shutdownTimeout: "30s"
metricsPort: 8091
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-doorman.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	defer os.Remove(tmpFile)

	expected := &Config{
		Network:            "mainnet",
		DatabasePath:       ".doorman",
		ChatId:             -1001234567890,
		MeritThreshold:     40000,
		ChallengePhrase:    "verify",
		TokenId:            "deadbeef",
		WalletUrl:          "http://localhost:5001/v5",
		IndexerUrl:         "http://localhost:5002/slp/v1",
		RevalidateInterval: "12h",
		DeleteDelay:        "15s",
		ShutdownTimeout:    "30s",
		MetricsPort:        8091,
	}

	actual, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !reflect.DeepEqual(actual, expected) {
		t.Errorf(
			"Loaded config does not match expected.\nActual: %+v\nExpected: %+v",
			actual,
			expected,
		)
	}
}

func TestLoad_WithoutConfigFile_UsesDefaults(t *testing.T) {
	resetGlobalConfig()

	// Without Config file
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.MeritThreshold != DefaultMeritThreshold {
		t.Errorf(
			"expected default merit threshold %d, got: %d",
			DefaultMeritThreshold,
			cfg.MeritThreshold,
		)
	}
	if cfg.ChallengePhrase != DefaultChallengePhrase {
		t.Errorf(
			"expected default challenge phrase %q, got: %q",
			DefaultChallengePhrase,
			cfg.ChallengePhrase,
		)
	}
	if cfg.RevalidateIntervalDuration() != 24*time.Hour {
		t.Errorf(
			"expected default revalidate interval of 24h, got: %s",
			cfg.RevalidateIntervalDuration(),
		)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	resetGlobalConfig()

	yamlContent := `
revalidateInterval: "oneday"
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test-bad-duration.yaml")

	err := os.WriteFile(tmpFile, []byte(yamlContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(tmpFile); err == nil {
		t.Fatalf("expected error for invalid duration, got nil")
	}
}

func TestDurationHelpers(t *testing.T) {
	resetGlobalConfig()
	globalConfig.DeleteDelay = "45s"
	globalConfig.ShutdownTimeout = "10s"

	if d := globalConfig.DeleteDelayDuration(); d != 45*time.Second {
		t.Errorf("expected 45s delete delay, got: %s", d)
	}
	if d := globalConfig.ShutdownTimeoutDuration(); d != 10*time.Second {
		t.Errorf("expected 10s shutdown timeout, got: %s", d)
	}
}
