package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/kitman0000/UpsAndDowns/internal/rowstore"
	"github.com/kitman0000/UpsAndDowns/internal/types"

	"github.com/shopspring/decimal"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := rowstore.Open(rowstore.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	svc := NewService(store)
	if err := svc.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return svc
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestCreditCreatesAccount(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.GetAccount(ctx, svc.Store(), "steve"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("GetAccount before credit = %v, want ErrAccountNotFound", err)
	}
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		return svc.CreditBalance(ctx, q, "steve", dec(t, "100"), true)
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	acct, err := svc.GetAccount(ctx, svc.Store(), "steve")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acct.Balance.Equal(dec(t, "100")) {
		t.Errorf("balance = %s, want 100", acct.Balance)
	}
	if !acct.Investment.Equal(dec(t, "100")) {
		t.Errorf("investment = %s, want 100", acct.Investment)
	}
}

func TestCreditWithoutTransferDoesNotGrowInvestment(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		if err := svc.CreditBalance(ctx, q, "steve", dec(t, "100"), true); err != nil {
			return err
		}
		return svc.CreditBalance(ctx, q, "steve", dec(t, "50"), false)
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	acct, err := svc.GetAccount(ctx, svc.Store(), "steve")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acct.Balance.Equal(dec(t, "150")) {
		t.Errorf("balance = %s, want 150", acct.Balance)
	}
	if !acct.Investment.Equal(dec(t, "100")) {
		t.Errorf("investment = %s, want 100", acct.Investment)
	}
}

func TestDebitMissingAccount(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		return svc.DebitBalance(ctx, q, "nobody", dec(t, "1"), false)
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("debit = %v, want ErrAccountNotFound", err)
	}
}

func TestTransferOutFloorsInvestmentAtZero(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		if err := svc.CreditBalance(ctx, q, "steve", dec(t, "100"), true); err != nil {
			return err
		}
		// Trade proceeds inflate the balance past the investment.
		if err := svc.CreditBalance(ctx, q, "steve", dec(t, "200"), false); err != nil {
			return err
		}
		return svc.DebitBalance(ctx, q, "steve", dec(t, "250"), true)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	acct, err := svc.GetAccount(ctx, svc.Store(), "steve")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acct.Balance.Equal(dec(t, "50")) {
		t.Errorf("balance = %s, want 50", acct.Balance)
	}
	if !acct.Investment.IsZero() {
		t.Errorf("investment = %s, want 0", acct.Investment)
	}
}

func TestFillBuyCreatesAndGrowsHolding(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		id, err := svc.CreateOrder(ctx, q, "steve", "IRON", dec(t, "10"), types.OrderKindBuyMarket, "ref-1")
		if err != nil {
			return err
		}
		return svc.FillBuy(ctx, q, id, "steve", "IRON", dec(t, "10"), dec(t, "5"), dec(t, "1"), dec(t, "51"))
	})
	if err != nil {
		t.Fatalf("first buy: %v", err)
	}
	err = svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		id, err := svc.CreateOrder(ctx, q, "steve", "IRON", dec(t, "5"), types.OrderKindBuyMarket, "ref-2")
		if err != nil {
			return err
		}
		return svc.FillBuy(ctx, q, id, "steve", "IRON", dec(t, "5"), dec(t, "6"), dec(t, "0.6"), dec(t, "30.6"))
	})
	if err != nil {
		t.Fatalf("second buy: %v", err)
	}
	held, err := svc.HoldingShares(ctx, svc.Store(), "steve", "IRON")
	if err != nil {
		t.Fatalf("holding shares: %v", err)
	}
	if !held.Equal(dec(t, "15")) {
		t.Errorf("held = %s, want 15", held)
	}
}

func TestFillSellRequiresHolding(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		id, err := svc.CreateOrder(ctx, q, "steve", "IRON", dec(t, "1"), types.OrderKindSellMarket, "ref-1")
		if err != nil {
			return err
		}
		return svc.FillSell(ctx, q, id, "steve", "IRON", dec(t, "1"), dec(t, "5"), dec(t, "0.1"), dec(t, "5"))
	})
	if !errors.Is(err, ErrHoldingMissing) {
		t.Fatalf("sell fill = %v, want ErrHoldingMissing", err)
	}
}

func TestFillSellDebitsShares(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		id, err := svc.CreateOrder(ctx, q, "steve", "IRON", dec(t, "10"), types.OrderKindBuyMarket, "ref-1")
		if err != nil {
			return err
		}
		if err := svc.FillBuy(ctx, q, id, "steve", "IRON", dec(t, "10"), dec(t, "5"), dec(t, "1"), dec(t, "51")); err != nil {
			return err
		}
		id, err = svc.CreateOrder(ctx, q, "steve", "IRON", dec(t, "4"), types.OrderKindSellMarket, "ref-2")
		if err != nil {
			return err
		}
		return svc.FillSell(ctx, q, id, "steve", "IRON", dec(t, "4"), dec(t, "6"), dec(t, "0.48"), dec(t, "24"))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	held, err := svc.HoldingShares(ctx, svc.Store(), "steve", "IRON")
	if err != nil {
		t.Fatalf("holding shares: %v", err)
	}
	if !held.Equal(dec(t, "6")) {
		t.Errorf("held = %s, want 6", held)
	}
}

func TestListOrdersHidesPendingAndOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		first, err := svc.CreateOrder(ctx, q, "steve", "IRON", dec(t, "1"), types.OrderKindBuyMarket, "ref-1")
		if err != nil {
			return err
		}
		if err := svc.FillBuy(ctx, q, first, "steve", "IRON", dec(t, "1"), dec(t, "5"), dec(t, "0.1"), dec(t, "5.1")); err != nil {
			return err
		}
		second, err := svc.CreateOrder(ctx, q, "steve", "GOLD", dec(t, "2"), types.OrderKindBuyMarket, "ref-2")
		if err != nil {
			return err
		}
		if err := svc.FillBuy(ctx, q, second, "steve", "GOLD", dec(t, "2"), dec(t, "9"), dec(t, "0.36"), dec(t, "18.36")); err != nil {
			return err
		}
		// Left pending on purpose.
		_, err = svc.CreateOrder(ctx, q, "steve", "COAL", dec(t, "3"), types.OrderKindBuyMarket, "ref-3")
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	orders, err := svc.ListOrders(ctx, "steve", 1)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2 (pending hidden)", len(orders))
	}
	if orders[0].Instrument != "GOLD" || orders[1].Instrument != "IRON" {
		t.Errorf("order sequence = %s, %s; want GOLD, IRON", orders[0].Instrument, orders[1].Instrument)
	}
	if !orders[0].Finalized() {
		t.Error("listed order not finalized")
	}
}

func TestFinalizeRejectedKeepsAuditRow(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	var orderID int64
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		id, err := svc.CreateOrder(ctx, q, "steve", "IRON", dec(t, "10"), types.OrderKindBuyLimit, "ref-1")
		if err != nil {
			return err
		}
		orderID = id
		return svc.FinalizeRejected(ctx, q, id, dec(t, "5"))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	order, err := svc.GetOrder(ctx, svc.Store(), orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !order.Finalized() {
		t.Fatal("rejected order not finalized")
	}
	if !order.Total.IsZero() || !order.Fee.IsZero() {
		t.Errorf("rejected order total/fee = %s/%s, want 0/0", order.Total, order.Fee)
	}
	if !order.FillPrice.Equal(dec(t, "5")) {
		t.Errorf("rejected order keeps price %s, want 5", order.FillPrice)
	}
}

func TestListHoldingsSkipsEmptied(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
		id, err := svc.CreateOrder(ctx, q, "steve", "IRON", dec(t, "3"), types.OrderKindBuyMarket, "ref-1")
		if err != nil {
			return err
		}
		if err := svc.FillBuy(ctx, q, id, "steve", "IRON", dec(t, "3"), dec(t, "5"), dec(t, "0.3"), dec(t, "15.3")); err != nil {
			return err
		}
		id, err = svc.CreateOrder(ctx, q, "steve", "IRON", dec(t, "3"), types.OrderKindSellMarket, "ref-2")
		if err != nil {
			return err
		}
		return svc.FillSell(ctx, q, id, "steve", "IRON", dec(t, "3"), dec(t, "5"), dec(t, "0.3"), dec(t, "15"))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	holdings, err := svc.ListHoldings(ctx, "steve", 1)
	if err != nil {
		t.Fatalf("list holdings: %v", err)
	}
	if len(holdings) != 0 {
		t.Fatalf("got %d holdings, want 0 after selling out", len(holdings))
	}
}

func TestHasAccountAndListAccountIDs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	for _, id := range []string{"steve", "alex"} {
		err := svc.Store().WithTx(ctx, func(q rowstore.Querier) error {
			return svc.CreditBalance(ctx, q, id, dec(t, "10"), true)
		})
		if err != nil {
			t.Fatalf("credit %s: %v", id, err)
		}
	}
	ok, err := svc.HasAccount(ctx, "steve")
	if err != nil || !ok {
		t.Fatalf("HasAccount(steve) = %v, %v; want true", ok, err)
	}
	ok, err = svc.HasAccount(ctx, "herobrine")
	if err != nil || ok {
		t.Fatalf("HasAccount(herobrine) = %v, %v; want false", ok, err)
	}
	ids, err := svc.ListAccountIDs(ctx)
	if err != nil {
		t.Fatalf("list account ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alex" || ids[1] != "steve" {
		t.Errorf("account ids = %v, want [alex steve]", ids)
	}
}
