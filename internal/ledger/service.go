// Package ledger implements the order/balance/holdings state machine. It
// is the only writer of account, holding, and order rows. Callers are
// responsible for holding the account's lock around every mutating call;
// nothing in this package re-checks balances or holdings (see the
// precondition notes on DebitBalance and FillSell).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kitman0000/UpsAndDowns/internal/model"
	"github.com/kitman0000/UpsAndDowns/internal/rowstore"
	"github.com/kitman0000/UpsAndDowns/internal/types"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound means no balance row exists; accounts are created
	// implicitly by the first credit, never by debits.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrHoldingMissing is an invariant violation: a sell fill reached the
	// store for a position that does not exist. The caller validated too
	// late or not at all.
	ErrHoldingMissing = errors.New("ledger: holding missing for sell fill")

	ErrOrderNotFound = errors.New("ledger: order not found")
)

const pageSize = 10

type Service struct {
	store *rowstore.Store
}

func NewService(store *rowstore.Store) *Service {
	return &Service{store: store}
}

// Store exposes the underlying adapter so the facade can open
// transactions spanning order, balance, and holding writes.
func (s *Service) Store() *rowstore.Store { return s.store }

// InitSchema creates the account, holding, and order tables.
func (s *Service) InitSchema(ctx context.Context) error {
	if err := s.store.CreateTable(ctx, "accounts", []rowstore.Column{
		{Name: "account_id", Type: "TEXT PRIMARY KEY"},
		{Name: "balance", Type: "TEXT NOT NULL"},
		{Name: "investment", Type: "TEXT NOT NULL"},
	}); err != nil {
		return err
	}
	if err := s.store.CreateTable(ctx, "holdings", []rowstore.Column{
		{Name: "id", Type: s.store.AutoincrementPK()},
		{Name: "account_id", Type: "TEXT NOT NULL"},
		{Name: "instrument", Type: "TEXT NOT NULL"},
		{Name: "shares", Type: "TEXT NOT NULL"},
		{Name: "updated_at", Type: "TIMESTAMP NOT NULL"},
	}, "UNIQUE (account_id, instrument)"); err != nil {
		return err
	}
	return s.store.CreateTable(ctx, "orders", []rowstore.Column{
		{Name: "id", Type: s.store.AutoincrementPK()},
		{Name: "account_id", Type: "TEXT NOT NULL"},
		{Name: "instrument", Type: "TEXT NOT NULL"},
		{Name: "shares", Type: "TEXT NOT NULL"},
		{Name: "kind", Type: "TEXT NOT NULL"},
		{Name: "reference", Type: "TEXT NOT NULL"},
		{Name: "created_at", Type: "TIMESTAMP NOT NULL"},
		{Name: "fill_price", Type: "TEXT"},
		{Name: "finished_at", Type: "TIMESTAMP"},
		{Name: "fee", Type: "TEXT"},
		{Name: "total", Type: "TEXT"},
	})
}

// CreateOrder inserts a pending order row and returns its identifier.
// Balance and holding validation happens later, before finalization.
func (s *Service) CreateOrder(ctx context.Context, q rowstore.Querier, accountID, instrument string, shares decimal.Decimal, kind types.OrderKind, reference string) (int64, error) {
	if err := q.Insert(ctx, "orders", map[string]any{
		"account_id": accountID,
		"instrument": instrument,
		"shares":     shares,
		"kind":       string(kind),
		"reference":  reference,
		"created_at": time.Now().UTC(),
	}); err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	row, err := q.QueryOne(ctx, "SELECT id FROM orders WHERE account_id = ? ORDER BY id DESC LIMIT 1", accountID)
	if err != nil {
		return 0, fmt.Errorf("read back order id: %w", err)
	}
	return row.Int64("id"), nil
}

// FillBuy credits shares to the (account, instrument) holding and
// finalizes the order. The holdings update runs before the order
// finalization inside one transaction: if the store loses atomicity the
// failure mode is an order stuck pending, never a phantom holding.
func (s *Service) FillBuy(ctx context.Context, q rowstore.Querier, orderID int64, accountID, instrument string, shares, price, fee, total decimal.Decimal) error {
	row, err := q.QueryOne(ctx, "SELECT id, shares FROM holdings WHERE account_id = ? AND instrument = ?", accountID, instrument)
	switch {
	case errors.Is(err, rowstore.ErrNoRows):
		if err := q.Insert(ctx, "holdings", map[string]any{
			"account_id": accountID,
			"instrument": instrument,
			"shares":     shares,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("insert holding: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read holding: %w", err)
	default:
		newShares := row.Decimal("shares").Add(shares)
		if err := q.Update(ctx, "holdings", map[string]any{
			"shares":     newShares,
			"updated_at": time.Now().UTC(),
		}, "id = ?", row.Int64("id")); err != nil {
			return fmt.Errorf("update holding: %w", err)
		}
	}
	return s.finalizeOrder(ctx, q, orderID, price, fee, total)
}

// FillSell debits shares from an existing holding and finalizes the
// order. The caller must have verified sufficient holding; this function
// trusts it and will record whatever remainder the arithmetic produces.
func (s *Service) FillSell(ctx context.Context, q rowstore.Querier, orderID int64, accountID, instrument string, shares, price, fee, total decimal.Decimal) error {
	row, err := q.QueryOne(ctx, "SELECT id, shares FROM holdings WHERE account_id = ? AND instrument = ?", accountID, instrument)
	if errors.Is(err, rowstore.ErrNoRows) {
		return ErrHoldingMissing
	}
	if err != nil {
		return fmt.Errorf("read holding: %w", err)
	}
	newShares := row.Decimal("shares").Sub(shares)
	if err := q.Update(ctx, "holdings", map[string]any{
		"shares":     newShares,
		"updated_at": time.Now().UTC(),
	}, "id = ?", row.Int64("id")); err != nil {
		return fmt.Errorf("update holding: %w", err)
	}
	return s.finalizeOrder(ctx, q, orderID, price, fee, total)
}

// FinalizeRejected closes an order that failed validation after it was
// recorded. The audit row keeps the attempted price; fee and total are
// zero because no balance or holding moved.
func (s *Service) FinalizeRejected(ctx context.Context, q rowstore.Querier, orderID int64, price decimal.Decimal) error {
	return s.finalizeOrder(ctx, q, orderID, price, decimal.Zero, decimal.Zero)
}

func (s *Service) finalizeOrder(ctx context.Context, q rowstore.Querier, orderID int64, price, fee, total decimal.Decimal) error {
	if err := q.Update(ctx, "orders", map[string]any{
		"fill_price":  price,
		"finished_at": time.Now().UTC(),
		"fee":         fee,
		"total":       total,
	}, "id = ?", orderID); err != nil {
		return fmt.Errorf("finalize order %d: %w", orderID, err)
	}
	return nil
}

// CreditBalance adds amount to the account balance, creating the account
// row on first credit. Transfer-ins also grow the cumulative investment;
// trade proceeds must not set transferIn.
func (s *Service) CreditBalance(ctx context.Context, q rowstore.Querier, accountID string, amount decimal.Decimal, transferIn bool) error {
	row, err := q.QueryOne(ctx, "SELECT balance, investment FROM accounts WHERE account_id = ?", accountID)
	if errors.Is(err, rowstore.ErrNoRows) {
		investment := decimal.Zero
		if transferIn {
			investment = amount
		}
		if err := q.Insert(ctx, "accounts", map[string]any{
			"account_id": accountID,
			"balance":    amount,
			"investment": investment,
		}); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read account: %w", err)
	}
	fields := map[string]any{"balance": row.Decimal("balance").Add(amount)}
	if transferIn {
		fields["investment"] = row.Decimal("investment").Add(amount)
	}
	if err := q.Update(ctx, "accounts", fields, "account_id = ?", accountID); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

// DebitBalance subtracts amount from the account balance. There is no
// floor check here: the caller pre-validates sufficient balance under the
// account lock, and a misuse produces a negative balance. Transfer-outs
// also shrink the cumulative investment, floored at zero.
func (s *Service) DebitBalance(ctx context.Context, q rowstore.Querier, accountID string, amount decimal.Decimal, transferOut bool) error {
	row, err := q.QueryOne(ctx, "SELECT balance, investment FROM accounts WHERE account_id = ?", accountID)
	if errors.Is(err, rowstore.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("read account: %w", err)
	}
	fields := map[string]any{"balance": row.Decimal("balance").Sub(amount)}
	if transferOut {
		investment := row.Decimal("investment").Sub(amount)
		if investment.IsNegative() {
			investment = decimal.Zero
		}
		fields["investment"] = investment
	}
	if err := q.Update(ctx, "accounts", fields, "account_id = ?", accountID); err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	return nil
}

// GetAccount reads one account row.
func (s *Service) GetAccount(ctx context.Context, q rowstore.Querier, accountID string) (model.Account, error) {
	row, err := q.QueryOne(ctx, "SELECT account_id, balance, investment FROM accounts WHERE account_id = ?", accountID)
	if errors.Is(err, rowstore.ErrNoRows) {
		return model.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	return model.Account{
		AccountID:  row.String("account_id"),
		Balance:    row.Decimal("balance"),
		Investment: row.Decimal("investment"),
	}, nil
}

// HasAccount reports whether a balance row exists for the account.
func (s *Service) HasAccount(ctx context.Context, accountID string) (bool, error) {
	_, err := s.store.QueryOne(ctx, "SELECT account_id FROM accounts WHERE account_id = ?", accountID)
	if errors.Is(err, rowstore.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HoldingShares returns the current share count for the pair, zero when
// no holding row exists.
func (s *Service) HoldingShares(ctx context.Context, q rowstore.Querier, accountID, instrument string) (decimal.Decimal, error) {
	row, err := q.QueryOne(ctx, "SELECT shares FROM holdings WHERE account_id = ? AND instrument = ?", accountID, instrument)
	if errors.Is(err, rowstore.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Decimal("shares"), nil
}

// ListHoldings returns one page of non-empty holdings, newest first.
// Pages are 1-based.
func (s *Service) ListHoldings(ctx context.Context, accountID string, page int) ([]model.Holding, error) {
	rows, err := s.store.QueryAll(ctx,
		"SELECT id, account_id, instrument, shares, updated_at FROM holdings WHERE account_id = ? AND CAST(shares AS REAL) > 0 ORDER BY id DESC LIMIT ? OFFSET ?",
		accountID, pageSize, pageOffset(page))
	if err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(rows))
	for _, r := range rows {
		h := model.Holding{
			ID:         r.Int64("id"),
			AccountID:  r.String("account_id"),
			Instrument: r.String("instrument"),
			Shares:     r.Decimal("shares"),
			UpdatedAt:  r.Time("updated_at"),
		}
		if !h.Shares.IsPositive() {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

// AllHoldings returns every non-empty holding for the account, for
// aggregation rather than display.
func (s *Service) AllHoldings(ctx context.Context, accountID string) ([]model.Holding, error) {
	rows, err := s.store.QueryAll(ctx,
		"SELECT id, account_id, instrument, shares, updated_at FROM holdings WHERE account_id = ?", accountID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(rows))
	for _, r := range rows {
		shares := r.Decimal("shares")
		if !shares.IsPositive() {
			continue
		}
		out = append(out, model.Holding{
			ID:         r.Int64("id"),
			AccountID:  r.String("account_id"),
			Instrument: r.String("instrument"),
			Shares:     shares,
			UpdatedAt:  r.Time("updated_at"),
		})
	}
	return out, nil
}

// ListOrders returns one page of finalized orders, newest first. Pending
// orders are invisible to callers; a pending row that survives a process
// restart is permanently stuck and harmless.
func (s *Service) ListOrders(ctx context.Context, accountID string, page int) ([]model.Order, error) {
	rows, err := s.store.QueryAll(ctx,
		"SELECT id, account_id, instrument, shares, kind, reference, created_at, fill_price, finished_at, fee, total FROM orders WHERE account_id = ? AND total IS NOT NULL ORDER BY id DESC LIMIT ? OFFSET ?",
		accountID, pageSize, pageOffset(page))
	if err != nil {
		return nil, err
	}
	out := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, scanOrder(r))
	}
	return out, nil
}

// GetOrder reads one order row by id.
func (s *Service) GetOrder(ctx context.Context, q rowstore.Querier, orderID int64) (model.Order, error) {
	row, err := q.QueryOne(ctx, "SELECT id, account_id, instrument, shares, kind, reference, created_at, fill_price, finished_at, fee, total FROM orders WHERE id = ?", orderID)
	if errors.Is(err, rowstore.ErrNoRows) {
		return model.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	return scanOrder(row), nil
}

// ListAccountIDs returns every account with a balance row, for the
// leaderboard aggregation pass.
func (s *Service) ListAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.store.QueryAll(ctx, "SELECT account_id FROM accounts ORDER BY account_id")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.String("account_id"))
	}
	return out, nil
}

func scanOrder(r rowstore.Row) model.Order {
	o := model.Order{
		ID:         r.Int64("id"),
		AccountID:  r.String("account_id"),
		Instrument: r.String("instrument"),
		Shares:     r.Decimal("shares"),
		Kind:       types.OrderKind(r.String("kind")),
		Reference:  r.String("reference"),
		CreatedAt:  r.Time("created_at"),
	}
	if r.Has("total") {
		price := r.Decimal("fill_price")
		finished := r.Time("finished_at")
		fee := r.Decimal("fee")
		total := r.Decimal("total")
		o.FillPrice = &price
		o.FinishedAt = &finished
		o.Fee = &fee
		o.Total = &total
	}
	return o
}

func pageOffset(page int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
