package model

import (
	"time"

	"github.com/kitman0000/UpsAndDowns/internal/types"

	"github.com/shopspring/decimal"
)

// Account is a player's cash account. Investment tracks cumulative
// transfer-in minus transfer-out and is never touched by trades.
type Account struct {
	AccountID  string          `json:"account_id"`
	Balance    decimal.Decimal `json:"balance"`
	Investment decimal.Decimal `json:"investment"`
}

// Holding is one (account, instrument) position. Rows are kept when the
// share count drops to zero; list queries filter them out.
type Holding struct {
	ID         int64           `json:"id"`
	AccountID  string          `json:"account_id"`
	Instrument string          `json:"instrument"`
	Shares     decimal.Decimal `json:"shares"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Order is pending between creation and finalization: the fill fields are
// nil until the order finalizes, and never change afterwards.
type Order struct {
	ID         int64            `json:"id"`
	AccountID  string           `json:"account_id"`
	Instrument string           `json:"instrument"`
	Shares     decimal.Decimal  `json:"shares"`
	Kind       types.OrderKind  `json:"kind"`
	Reference  string           `json:"reference"`
	CreatedAt  time.Time        `json:"created_at"`
	FillPrice  *decimal.Decimal `json:"fill_price"`
	FinishedAt *time.Time       `json:"finished_at"`
	Fee        *decimal.Decimal `json:"fee"`
	Total      *decimal.Decimal `json:"total"`
}

// Finalized reports whether the order has left the pending state.
func (o Order) Finalized() bool {
	return o.Total != nil
}

// LeaderboardRow is a cached snapshot produced by one aggregation cycle.
type LeaderboardRow struct {
	Kind          types.LeaderboardKind `json:"kind"`
	Rank          int                   `json:"rank"`
	AccountID     string                `json:"account_id"`
	TotalWealth   decimal.Decimal       `json:"total_wealth"`
	Balance       decimal.Decimal       `json:"balance"`
	HoldingsValue decimal.Decimal       `json:"holdings_value"`
	Investment    decimal.Decimal       `json:"investment"`
	AbsolutePL    decimal.Decimal       `json:"absolute_pl"`
	RelativePL    decimal.Decimal       `json:"relative_pl"`
	RefreshedAt   time.Time             `json:"refreshed_at"`
}

// WatchlistEntry is one bookmarked instrument for an account.
type WatchlistEntry struct {
	ID         int64     `json:"id"`
	AccountID  string    `json:"account_id"`
	Instrument string    `json:"instrument"`
	AddedAt    time.Time `json:"added_at"`
}
