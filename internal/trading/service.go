// Package trading is the only surface external callers may use. Every
// mutating operation runs under the account's lock with a bounded wait,
// and all balance/holding pre-checks happen here, inside the lock, before
// the ledger primitives that trust them.
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kitman0000/UpsAndDowns/internal/ledger"
	"github.com/kitman0000/UpsAndDowns/internal/locker"
	"github.com/kitman0000/UpsAndDowns/internal/metrics"
	"github.com/kitman0000/UpsAndDowns/internal/model"
	"github.com/kitman0000/UpsAndDowns/internal/oracle"
	"github.com/kitman0000/UpsAndDowns/internal/rowstore"
	"github.com/kitman0000/UpsAndDowns/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Result reports the business outcome of a trading operation. Rejections
// arrive here with OK=false, never as errors; errors are reserved for
// infrastructure failures so callers can tell "your trade was rejected"
// from "the system is unavailable".
type Result struct {
	OK        bool   `json:"ok"`
	Retryable bool   `json:"retryable,omitempty"`
	Message   string `json:"message"`
	OrderID   int64  `json:"order_id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type Service struct {
	ledger      *ledger.Service
	locks       *locker.Registry
	price       oracle.Func
	feeRate     decimal.Decimal
	lockTimeout time.Duration
}

func NewService(ledgerSvc *ledger.Service, locks *locker.Registry, price oracle.Func, feeRate decimal.Decimal, lockTimeout time.Duration) *Service {
	return &Service{ledger: ledgerSvc, locks: locks, price: price, feeRate: feeRate, lockTimeout: lockTimeout}
}

func reject(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

func rejectRetry(message string) Result {
	return Result{Retryable: true, Message: message}
}

// Buy executes a market or limit buy. The price lookup happens before
// lock acquisition: it is only needed for validation and keeping it
// outside narrows the critical section.
func (s *Service) Buy(ctx context.Context, accountID, instrument string, shares decimal.Decimal, limitPrice *decimal.Decimal) (Result, error) {
	if r, ok := validateTradeInput(accountID, instrument, shares, limitPrice); !ok {
		return r, nil
	}
	quote, err := s.price(ctx, instrument)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("price_unavailable").Inc()
		return reject("instrument %s is unknown or unsupported", instrument), nil
	}
	// Outside market hours there is no executable market price, but limit
	// orders still fill against the last quote (after-hours trade).
	if !quote.Tradeable && limitPrice == nil {
		metrics.TradeRejections.WithLabelValues("market_closed").Inc()
		return reject("market for %s is closed, only limit orders execute after hours", instrument), nil
	}
	kind := types.OrderKindBuyMarket
	execPrice := quote.Price
	if limitPrice != nil {
		kind = types.OrderKindBuyLimit
		execPrice = *limitPrice
	}

	lock := s.locks.Get(accountID)
	if err := lock.Acquire(ctx, s.lockTimeout); err != nil {
		return s.lockFailure(err)
	}
	defer lock.Release()

	reference := uuid.NewString()
	var result Result
	err = s.ledger.Store().WithTx(ctx, func(q rowstore.Querier) error {
		orderID, err := s.ledger.CreateOrder(ctx, q, accountID, instrument, shares, kind, reference)
		if err != nil {
			return err
		}
		acct, err := s.ledger.GetAccount(ctx, q, accountID)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			metrics.TradeRejections.WithLabelValues("account_missing").Inc()
			result = reject("no trading account yet, transfer funds in first")
			result.OrderID = orderID
			return s.ledger.FinalizeRejected(ctx, q, orderID, execPrice)
		}
		if err != nil {
			return err
		}
		// A buy limit below the market never fills in this simulation:
		// nobody sells to you under the going price.
		if execPrice.LessThan(quote.Price) {
			metrics.TradeRejections.WithLabelValues("limit_miss").Inc()
			result = reject("buy rejected: market price is %s, nobody sells at your limit %s", quote.Price, execPrice)
			result.OrderID = orderID
			return s.ledger.FinalizeRejected(ctx, q, orderID, execPrice)
		}
		fee := execPrice.Mul(shares).Mul(s.feeRate)
		total := execPrice.Mul(shares).Add(fee)
		if acct.Balance.LessThan(total) {
			metrics.TradeRejections.WithLabelValues("insufficient_balance").Inc()
			result = reject("insufficient balance: need %s, have %s", total, acct.Balance)
			result.OrderID = orderID
			return s.ledger.FinalizeRejected(ctx, q, orderID, execPrice)
		}
		if err := s.ledger.DebitBalance(ctx, q, accountID, total, false); err != nil {
			return err
		}
		if err := s.ledger.FillBuy(ctx, q, orderID, accountID, instrument, shares, execPrice, fee, total); err != nil {
			return err
		}
		metrics.TradesTotal.WithLabelValues(string(kind)).Inc()
		result = Result{
			OK:        true,
			Message:   fmt.Sprintf("bought %s %s at %s, total %s (fee %s)", shares, instrument, execPrice, total, fee),
			OrderID:   orderID,
			Reference: reference,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Sell executes a market or limit sell. Proceeds are credited net of the
// fee; the order records the gross consideration.
func (s *Service) Sell(ctx context.Context, accountID, instrument string, shares decimal.Decimal, limitPrice *decimal.Decimal) (Result, error) {
	if r, ok := validateTradeInput(accountID, instrument, shares, limitPrice); !ok {
		return r, nil
	}
	quote, err := s.price(ctx, instrument)
	if err != nil {
		metrics.TradeRejections.WithLabelValues("price_unavailable").Inc()
		return reject("instrument %s is unknown or unsupported", instrument), nil
	}
	if !quote.Tradeable && limitPrice == nil {
		metrics.TradeRejections.WithLabelValues("market_closed").Inc()
		return reject("market for %s is closed, only limit orders execute after hours", instrument), nil
	}
	kind := types.OrderKindSellMarket
	execPrice := quote.Price
	if limitPrice != nil {
		kind = types.OrderKindSellLimit
		execPrice = *limitPrice
	}

	lock := s.locks.Get(accountID)
	if err := lock.Acquire(ctx, s.lockTimeout); err != nil {
		return s.lockFailure(err)
	}
	defer lock.Release()

	reference := uuid.NewString()
	var result Result
	err = s.ledger.Store().WithTx(ctx, func(q rowstore.Querier) error {
		orderID, err := s.ledger.CreateOrder(ctx, q, accountID, instrument, shares, kind, reference)
		if err != nil {
			return err
		}
		held, err := s.ledger.HoldingShares(ctx, q, accountID, instrument)
		if err != nil {
			return err
		}
		if held.LessThan(shares) {
			metrics.TradeRejections.WithLabelValues("insufficient_holding").Inc()
			result = reject("insufficient holding: you hold %s shares of %s", held, instrument)
			result.OrderID = orderID
			return s.ledger.FinalizeRejected(ctx, q, orderID, execPrice)
		}
		// A sell limit above the market never fills: nobody buys over
		// the going price.
		if quote.Price.LessThan(execPrice) {
			metrics.TradeRejections.WithLabelValues("limit_miss").Inc()
			result = reject("sell rejected: market price is %s, nobody buys at your limit %s", quote.Price, execPrice)
			result.OrderID = orderID
			return s.ledger.FinalizeRejected(ctx, q, orderID, execPrice)
		}
		gross := execPrice.Mul(shares)
		fee := gross.Mul(s.feeRate)
		net := gross.Sub(fee)
		if err := s.ledger.FillSell(ctx, q, orderID, accountID, instrument, shares, execPrice, fee, gross); err != nil {
			return err
		}
		if err := s.ledger.CreditBalance(ctx, q, accountID, net, false); err != nil {
			return err
		}
		metrics.TradesTotal.WithLabelValues(string(kind)).Inc()
		result = Result{
			OK:        true,
			Message:   fmt.Sprintf("sold %s %s at %s, proceeds %s (fee %s)", shares, instrument, execPrice, net, fee),
			OrderID:   orderID,
			Reference: reference,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// TransferIn credits funds moved from the host economy into the trading
// account, growing cumulative investment. The first transfer-in creates
// the account.
func (s *Service) TransferIn(ctx context.Context, accountID string, amount decimal.Decimal) (Result, error) {
	if accountID == "" || !amount.IsPositive() {
		return reject("transfer amount must be positive"), nil
	}
	lock := s.locks.Get(accountID)
	if err := lock.Acquire(ctx, s.lockTimeout); err != nil {
		return s.lockFailure(err)
	}
	defer lock.Release()

	err := s.ledger.Store().WithTx(ctx, func(q rowstore.Querier) error {
		return s.ledger.CreditBalance(ctx, q, accountID, amount, true)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{OK: true, Message: fmt.Sprintf("transferred %s into the trading account", amount)}, nil
}

// TransferOut debits funds back to the host economy, shrinking cumulative
// investment (floored at zero).
func (s *Service) TransferOut(ctx context.Context, accountID string, amount decimal.Decimal) (Result, error) {
	if accountID == "" || !amount.IsPositive() {
		return reject("transfer amount must be positive"), nil
	}
	lock := s.locks.Get(accountID)
	if err := lock.Acquire(ctx, s.lockTimeout); err != nil {
		return s.lockFailure(err)
	}
	defer lock.Release()

	var result Result
	err := s.ledger.Store().WithTx(ctx, func(q rowstore.Querier) error {
		acct, err := s.ledger.GetAccount(ctx, q, accountID)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			result = reject("no trading account yet, transfer funds in first")
			return nil
		}
		if err != nil {
			return err
		}
		if acct.Balance.LessThan(amount) {
			result = reject("insufficient balance: have %s", acct.Balance)
			return nil
		}
		if err := s.ledger.DebitBalance(ctx, q, accountID, amount, true); err != nil {
			return err
		}
		result = Result{OK: true, Message: fmt.Sprintf("transferred %s out of the trading account", amount)}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// Balance returns the account row. Reads take no lock: a single row read
// is atomic at the store level.
func (s *Service) Balance(ctx context.Context, accountID string) (model.Account, error) {
	return s.ledger.GetAccount(ctx, s.ledger.Store(), accountID)
}

// Holdings returns one page of non-empty holdings.
func (s *Service) Holdings(ctx context.Context, accountID string, page int) ([]model.Holding, error) {
	return s.ledger.ListHoldings(ctx, accountID, page)
}

// Orders returns one page of finalized orders, newest first.
func (s *Service) Orders(ctx context.Context, accountID string, page int) ([]model.Order, error) {
	return s.ledger.ListOrders(ctx, accountID, page)
}

// AverageCost returns the proportional average cost per remaining share,
// or nil when the account holds no position in the instrument.
func (s *Service) AverageCost(ctx context.Context, accountID, instrument string) (*decimal.Decimal, error) {
	return s.ledger.AverageCost(ctx, accountID, instrument)
}

func (s *Service) lockFailure(err error) (Result, error) {
	if errors.Is(err, locker.ErrTimeout) {
		metrics.LockTimeouts.Inc()
		return rejectRetry("another operation for this account is in progress, try again shortly"), nil
	}
	return Result{}, err
}

func validateTradeInput(accountID, instrument string, shares decimal.Decimal, limitPrice *decimal.Decimal) (Result, bool) {
	if accountID == "" || instrument == "" {
		return reject("account and instrument are required"), false
	}
	if !shares.IsPositive() || !shares.Equal(shares.Truncate(0)) {
		return reject("share quantity must be a positive whole number"), false
	}
	if limitPrice != nil && !limitPrice.IsPositive() {
		return reject("limit price must be positive"), false
	}
	return Result{}, true
}
