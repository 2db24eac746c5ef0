package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("DB_DSN", "/tmp/ledger.db")
	t.Setenv("INTERNAL_API_TOKEN", "secret")
	t.Setenv("PRICE_URL", "http://localhost:9000/prices")
	for _, key := range []string{
		"DB_DRIVER", "FEE_RATE", "LOCK_TIMEOUT", "LEADERBOARD_REFRESH",
		"LEADERBOARD_TTL", "LEADERBOARD_TOP", "WATCHLIST_MAX", "PRICE_CACHE_TTL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Errorf("DBDriver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.FeeRate.String() != "0.02" {
		t.Errorf("FeeRate = %s, want 0.02", cfg.FeeRate)
	}
	if cfg.LockTimeout != time.Second {
		t.Errorf("LockTimeout = %v, want 1s", cfg.LockTimeout)
	}
	if cfg.LeaderboardRefresh != 10*time.Minute {
		t.Errorf("LeaderboardRefresh = %v, want 10m", cfg.LeaderboardRefresh)
	}
	if cfg.LeaderboardTTL != time.Hour {
		t.Errorf("LeaderboardTTL = %v, want 1h", cfg.LeaderboardTTL)
	}
	if cfg.LeaderboardTop != 10 {
		t.Errorf("LeaderboardTop = %d, want 10", cfg.LeaderboardTop)
	}
	if cfg.WatchlistMax != 20 {
		t.Errorf("WatchlistMax = %d, want 20", cfg.WatchlistMax)
	}
	if cfg.PriceCacheTTL != 30*time.Second {
		t.Errorf("PriceCacheTTL = %v, want 30s", cfg.PriceCacheTTL)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("INTERNAL_API_TOKEN", "")
	os.Unsetenv("INTERNAL_API_TOKEN")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "INTERNAL_API_TOKEN") {
		t.Fatalf("err = %v, want missing INTERNAL_API_TOKEN", err)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "mysql")
	if _, err := Load(); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestLoadRejectsBadFeeRate(t *testing.T) {
	setRequired(t)
	t.Setenv("FEE_RATE", "-0.5")
	if _, err := Load(); err == nil {
		t.Fatal("negative fee rate accepted")
	}
	t.Setenv("FEE_RATE", "lots")
	if _, err := Load(); err == nil {
		t.Fatal("garbage fee rate accepted")
	}
}

func TestLoadCustomValues(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("FEE_RATE", "0.05")
	t.Setenv("LOCK_TIMEOUT", "250ms")
	t.Setenv("LEADERBOARD_TOP", "25")
	t.Setenv("PRICE_URL", "http://localhost:9000/prices/")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("DBDriver = %q, want postgres", cfg.DBDriver)
	}
	if cfg.FeeRate.String() != "0.05" {
		t.Errorf("FeeRate = %s, want 0.05", cfg.FeeRate)
	}
	if cfg.LockTimeout != 250*time.Millisecond {
		t.Errorf("LockTimeout = %v, want 250ms", cfg.LockTimeout)
	}
	if cfg.LeaderboardTop != 25 {
		t.Errorf("LeaderboardTop = %d, want 25", cfg.LeaderboardTop)
	}
	if cfg.PriceURL != "http://localhost:9000/prices" {
		t.Errorf("PriceURL = %q, want trailing slash trimmed", cfg.PriceURL)
	}
}
