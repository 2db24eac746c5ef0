// Package leaderboard computes and caches the total-wealth rankings. The
// aggregator runs on its own timer and never takes account locks: it
// reads a best-effort snapshot while trading continues, accepting read
// skew in exchange for never stalling live trades. Readers only ever see
// the cache table.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/kitman0000/UpsAndDowns/internal/ledger"
	"github.com/kitman0000/UpsAndDowns/internal/metrics"
	"github.com/kitman0000/UpsAndDowns/internal/model"
	"github.com/kitman0000/UpsAndDowns/internal/oracle"
	"github.com/kitman0000/UpsAndDowns/internal/rowstore"
	"github.com/kitman0000/UpsAndDowns/internal/types"

	"github.com/shopspring/decimal"
)

// ErrStale means the cache exists but is older than the freshness window
// (or empty, right after process start). Readers surface this instead of
// triggering a recompute.
var ErrStale = errors.New("leaderboard: cache stale, recompute pending")

const relativePrecision = 4

// Snapshot is one account's aggregated wealth for a single cycle.
type Snapshot struct {
	AccountID     string
	TotalWealth   decimal.Decimal
	Balance       decimal.Decimal
	HoldingsValue decimal.Decimal
	Investment    decimal.Decimal
	AbsolutePL    decimal.Decimal
	RelativePL    decimal.Decimal
}

type Aggregator struct {
	store  *rowstore.Store
	ledger *ledger.Service
	price  oracle.Func
	ttl    time.Duration
	top    int
}

func NewAggregator(store *rowstore.Store, ledgerSvc *ledger.Service, price oracle.Func, ttl time.Duration, top int) *Aggregator {
	return &Aggregator{store: store, ledger: ledgerSvc, price: price, ttl: ttl, top: top}
}

// InitSchema creates the cache table. The aggregator is its only writer.
func (a *Aggregator) InitSchema(ctx context.Context) error {
	return a.store.CreateTable(ctx, "leaderboard", []rowstore.Column{
		{Name: "kind", Type: "TEXT NOT NULL"},
		{Name: "rank", Type: "INTEGER NOT NULL"},
		{Name: "account_id", Type: "TEXT NOT NULL"},
		{Name: "total_wealth", Type: "TEXT NOT NULL"},
		{Name: "balance", Type: "TEXT NOT NULL"},
		{Name: "holdings_value", Type: "TEXT NOT NULL"},
		{Name: "investment", Type: "TEXT NOT NULL"},
		{Name: "absolute_pl", Type: "TEXT NOT NULL"},
		{Name: "relative_pl", Type: "TEXT NOT NULL"},
		{Name: "refreshed_at", Type: "TIMESTAMP NOT NULL"},
	}, "UNIQUE (kind, rank)")
}

// Recompute aggregates every account that ever transferred money in.
// Instruments whose price lookup fails are skipped rather than failing
// the whole cycle.
func (a *Aggregator) Recompute(ctx context.Context) ([]Snapshot, error) {
	accountIDs, err := a.ledger.ListAccountIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	snapshots := make([]Snapshot, 0, len(accountIDs))
	for _, id := range accountIDs {
		acct, err := a.ledger.GetAccount(ctx, a.store, id)
		if err != nil {
			return nil, fmt.Errorf("read account %s: %w", id, err)
		}
		if acct.Investment.IsZero() {
			continue // never meaningfully traded
		}
		holdings, err := a.ledger.AllHoldings(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read holdings for %s: %w", id, err)
		}
		holdingsValue := decimal.Zero
		for _, h := range holdings {
			quote, err := a.price(ctx, h.Instrument)
			if err != nil {
				continue
			}
			holdingsValue = holdingsValue.Add(h.Shares.Mul(quote.Price))
		}
		wealth := holdingsValue.Add(acct.Balance)
		absolute := wealth.Sub(acct.Investment)
		relative := absolute.DivRound(acct.Investment, relativePrecision).Mul(decimal.NewFromInt(100))
		snapshots = append(snapshots, Snapshot{
			AccountID:     id,
			TotalWealth:   wealth,
			Balance:       acct.Balance,
			HoldingsValue: holdingsValue,
			Investment:    acct.Investment,
			AbsolutePL:    absolute,
			RelativePL:    relative,
		})
	}
	return snapshots, nil
}

// Persist replaces the cached rows of the given kind with the snapshots
// ranked 1-based by the kind's metric, descending.
func (a *Aggregator) Persist(ctx context.Context, snapshots []Snapshot, kind types.LeaderboardKind) error {
	ranked := make([]Snapshot, len(snapshots))
	copy(ranked, snapshots)
	sort.SliceStable(ranked, func(i, j int) bool {
		if kind == types.LeaderboardRelative {
			return ranked[i].RelativePL.GreaterThan(ranked[j].RelativePL)
		}
		return ranked[i].AbsolutePL.GreaterThan(ranked[j].AbsolutePL)
	})
	refreshedAt := time.Now().UTC()
	return a.store.WithTx(ctx, func(q rowstore.Querier) error {
		if err := q.Delete(ctx, "leaderboard", "kind = ?", string(kind)); err != nil {
			return err
		}
		for i, s := range ranked {
			if err := q.Insert(ctx, "leaderboard", map[string]any{
				"kind":           string(kind),
				"rank":           i + 1,
				"account_id":     s.AccountID,
				"total_wealth":   s.TotalWealth,
				"balance":        s.Balance,
				"holdings_value": s.HoldingsValue,
				"investment":     s.Investment,
				"absolute_pl":    s.AbsolutePL,
				"relative_pl":    s.RelativePL,
				"refreshed_at":   refreshedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// CachedTop serves the cache if it is newer than the freshness window,
// otherwise ErrStale. Limit defaults to the configured top size.
func (a *Aggregator) CachedTop(ctx context.Context, kind types.LeaderboardKind, limit int) ([]model.LeaderboardRow, error) {
	if limit <= 0 {
		limit = a.top
	}
	rows, err := a.store.QueryAll(ctx,
		"SELECT kind, rank, account_id, total_wealth, balance, holdings_value, investment, absolute_pl, relative_pl, refreshed_at FROM leaderboard WHERE kind = ? ORDER BY rank ASC LIMIT ?",
		string(kind), limit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrStale
	}
	cutoff := time.Now().Add(-a.ttl)
	out := make([]model.LeaderboardRow, 0, len(rows))
	for _, r := range rows {
		refreshed := r.Time("refreshed_at")
		if refreshed.Before(cutoff) {
			return nil, ErrStale
		}
		out = append(out, model.LeaderboardRow{
			Kind:          types.LeaderboardKind(r.String("kind")),
			Rank:          int(r.Int64("rank")),
			AccountID:     r.String("account_id"),
			TotalWealth:   r.Decimal("total_wealth"),
			Balance:       r.Decimal("balance"),
			HoldingsValue: r.Decimal("holdings_value"),
			Investment:    r.Decimal("investment"),
			AbsolutePL:    r.Decimal("absolute_pl"),
			RelativePL:    r.Decimal("relative_pl"),
			RefreshedAt:   refreshed,
		})
	}
	return out, nil
}

// RefreshOnce runs one full cycle: recompute, then persist both kinds.
func (a *Aggregator) RefreshOnce(ctx context.Context) error {
	started := time.Now()
	snapshots, err := a.Recompute(ctx)
	if err != nil {
		return err
	}
	for _, kind := range []types.LeaderboardKind{types.LeaderboardAbsolute, types.LeaderboardRelative} {
		if err := a.Persist(ctx, snapshots, kind); err != nil {
			return fmt.Errorf("persist %s leaderboard: %w", kind, err)
		}
	}
	metrics.LeaderboardRefreshDuration.Observe(time.Since(started).Seconds())
	metrics.LeaderboardAccounts.Set(float64(len(snapshots)))
	return nil
}

// Run refreshes on a fixed period until ctx is cancelled. A failed cycle
// is logged and retried at the next tick; readers keep seeing the last
// good cache in the meantime.
func (a *Aggregator) Run(ctx context.Context, period time.Duration) {
	if err := a.RefreshOnce(ctx); err != nil {
		log.Printf("leaderboard: initial refresh failed: %v", err)
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.RefreshOnce(ctx); err != nil {
				log.Printf("leaderboard: refresh failed: %v", err)
			}
		}
	}
}
