package ledger

import (
	"context"

	"github.com/kitman0000/UpsAndDowns/internal/types"

	"github.com/shopspring/decimal"
)

// averageCostPrecision bounds the division results; money in this system
// never needs more than 8 fractional digits.
const averageCostPrecision = 8

// AverageCost derives the proportional average cost per remaining share
// for an (account, instrument) pair from its finalized order history.
//
// The allocation is FIFO-proportional, not lot-level FIFO: remaining cost
// is the total buy consideration scaled by the fraction of bought shares
// still held, which assumes uniform cost density across all buy lots.
// Returns nil when the pair has no current position.
func (s *Service) AverageCost(ctx context.Context, accountID, instrument string) (*decimal.Decimal, error) {
	rows, err := s.store.QueryAll(ctx,
		"SELECT kind, shares, total FROM orders WHERE account_id = ? AND instrument = ? AND total IS NOT NULL ORDER BY finished_at ASC, id ASC",
		accountID, instrument)
	if err != nil {
		return nil, err
	}
	var boughtShares, buyCost, soldShares decimal.Decimal
	for _, r := range rows {
		total := r.Decimal("total")
		if total.IsZero() {
			continue // rejected order, no effect on the position
		}
		shares := r.Decimal("shares")
		kind := types.OrderKind(r.String("kind"))
		switch {
		case kind.Buy():
			boughtShares = boughtShares.Add(shares)
			buyCost = buyCost.Add(total)
		case kind.Sell():
			soldShares = soldShares.Add(shares)
		}
	}
	remaining := boughtShares.Sub(soldShares)
	if !remaining.IsPositive() || !boughtShares.IsPositive() {
		return nil, nil
	}
	remainingCost := buyCost.Mul(remaining).DivRound(boughtShares, averageCostPrecision)
	avg := remainingCost.DivRound(remaining, averageCostPrecision)
	return &avg, nil
}
