package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr           string
	DBDriver           string
	DBDSN              string
	InternalToken      string
	FeeRate            decimal.Decimal
	LockTimeout        time.Duration
	LeaderboardRefresh time.Duration
	LeaderboardTTL     time.Duration
	LeaderboardTop     int
	WatchlistMax       int
	PriceURL           string
	PriceCacheTTL      time.Duration
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDriver = strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if c.DBDriver == "" {
		c.DBDriver = "sqlite"
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		return c, errors.New("invalid DB_DRIVER: use sqlite or postgres")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	feeRate := os.Getenv("FEE_RATE")
	if feeRate == "" {
		feeRate = "0.02"
	}
	rate, err := decimal.NewFromString(feeRate)
	if err != nil || rate.IsNegative() {
		return c, errors.New("invalid FEE_RATE")
	}
	c.FeeRate = rate
	c.LockTimeout, err = durationEnv("LOCK_TIMEOUT", time.Second)
	if err != nil {
		return c, err
	}
	c.LeaderboardRefresh, err = durationEnv("LEADERBOARD_REFRESH", 10*time.Minute)
	if err != nil {
		return c, err
	}
	c.LeaderboardTTL, err = durationEnv("LEADERBOARD_TTL", time.Hour)
	if err != nil {
		return c, err
	}
	c.LeaderboardTop, err = intEnv("LEADERBOARD_TOP", 10)
	if err != nil {
		return c, err
	}
	c.WatchlistMax, err = intEnv("WATCHLIST_MAX", 20)
	if err != nil {
		return c, err
	}
	c.PriceURL = strings.TrimRight(os.Getenv("PRICE_URL"), "/")
	if c.PriceURL == "" {
		missing = append(missing, "PRICE_URL")
	}
	c.PriceCacheTTL, err = durationEnv("PRICE_CACHE_TTL", 30*time.Second)
	if err != nil {
		return c, err
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}
