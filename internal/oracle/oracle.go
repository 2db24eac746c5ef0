// Package oracle defines the market-price lookup contract. The real price
// source lives in the host application; the ledger core only depends on
// this function shape.
package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable means the instrument is unknown, unsupported, or the
// upstream source failed. Callers abort before any mutation.
var ErrUnavailable = errors.New("oracle: price unavailable")

// Quote is the latest price for an instrument. Tradeable is false outside
// market hours: market orders are rejected then, while limit orders may
// still fill against this last quote.
type Quote struct {
	Price     decimal.Decimal
	Tradeable bool
}

// Func looks up the current quote for an instrument.
type Func func(ctx context.Context, instrument string) (Quote, error)

// Static returns an oracle backed by a fixed price table. Instruments not
// in the table report ErrUnavailable.
func Static(prices map[string]decimal.Decimal) Func {
	return func(_ context.Context, instrument string) (Quote, error) {
		p, ok := prices[instrument]
		if !ok {
			return Quote{}, ErrUnavailable
		}
		return Quote{Price: p, Tradeable: true}, nil
	}
}

// Cached wraps next with a TTL cache so the leaderboard aggregation does
// not hammer the upstream source with one lookup per holding. Lookup
// failures are not cached.
func Cached(next Func, ttl time.Duration) Func {
	type entry struct {
		quote Quote
		at    time.Time
	}
	var mu sync.Mutex
	cache := make(map[string]entry)
	return func(ctx context.Context, instrument string) (Quote, error) {
		mu.Lock()
		if e, ok := cache[instrument]; ok && time.Since(e.at) < ttl {
			mu.Unlock()
			return e.quote, nil
		}
		mu.Unlock()
		q, err := next(ctx, instrument)
		if err != nil {
			return Quote{}, err
		}
		mu.Lock()
		cache[instrument] = entry{quote: q, at: time.Now()}
		mu.Unlock()
		return q, nil
	}
}
