package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/kitman0000/UpsAndDowns/internal/httputil"
	"github.com/kitman0000/UpsAndDowns/internal/leaderboard"
	"github.com/kitman0000/UpsAndDowns/internal/ledger"
	"github.com/kitman0000/UpsAndDowns/internal/model"
	"github.com/kitman0000/UpsAndDowns/internal/trading"
	"github.com/kitman0000/UpsAndDowns/internal/types"
	"github.com/kitman0000/UpsAndDowns/internal/watchlist"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Handler binds the trading facade to the host-facing HTTP surface.
// Business outcomes travel as 200 responses carrying the Result body;
// non-200 statuses mean the request itself was bad or the system failed.
type Handler struct {
	trading   *trading.Service
	board     *leaderboard.Aggregator
	watchlist *watchlist.Service
}

func NewHandler(tradingSvc *trading.Service, board *leaderboard.Aggregator, watchlistSvc *watchlist.Service) *Handler {
	return &Handler{trading: tradingSvc, board: board, watchlist: watchlistSvc}
}

type tradeRequest struct {
	Instrument string  `json:"instrument"`
	Shares     string  `json:"shares"`
	LimitPrice *string `json:"limit_price,omitempty"`
}

type transferRequest struct {
	Amount string `json:"amount"`
}

type tradeFunc func(ctx context.Context, accountID, instrument string, shares decimal.Decimal, limitPrice *decimal.Decimal) (trading.Result, error)

type transferFunc func(ctx context.Context, accountID string, amount decimal.Decimal) (trading.Result, error)

func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.trading.Buy)
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.trading.Sell)
}

func (h *Handler) trade(w http.ResponseWriter, r *http.Request, exec tradeFunc) {
	accountID := chi.URLParam(r, "accountID")
	var req tradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	shares, err := decimal.NewFromString(req.Shares)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid shares"})
		return
	}
	var limitPrice *decimal.Decimal
	if req.LimitPrice != nil {
		p, err := decimal.NewFromString(*req.LimitPrice)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit_price"})
			return
		}
		limitPrice = &p
	}
	result, err := exec(r.Context(), accountID, req.Instrument, shares, limitPrice)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) TransferIn(w http.ResponseWriter, r *http.Request) {
	h.transferMove(w, r, h.trading.TransferIn)
}

func (h *Handler) TransferOut(w http.ResponseWriter, r *http.Request) {
	h.transferMove(w, r, h.trading.TransferOut)
}

func (h *Handler) transferMove(w http.ResponseWriter, r *http.Request, exec transferFunc) {
	accountID := chi.URLParam(r, "accountID")
	var req transferRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	result, err := exec(r.Context(), accountID, amount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	acct, err := h.trading.Balance(r.Context(), accountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "account not found"})
		return
	}
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acct)
}

func (h *Handler) Holdings(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	holdings, err := h.trading.Holdings(r.Context(), accountID, pageParam(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, holdings)
}

func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	orders, err := h.trading.Orders(r.Context(), accountID, pageParam(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) AverageCost(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	instrument := chi.URLParam(r, "instrument")
	avg, err := h.trading.AverageCost(r.Context(), accountID, instrument)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if avg == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"average_cost": nil})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"average_cost": avg.String()})
}

type leaderboardResponse struct {
	Stale bool                   `json:"stale"`
	Rows  []model.LeaderboardRow `json:"rows"`
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	kind := types.LeaderboardKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "kind must be absolute or relative"})
		return
	}
	rows, err := h.board.CachedTop(r.Context(), kind, 0)
	if errors.Is(err, leaderboard.ErrStale) {
		httputil.WriteJSON(w, http.StatusOK, leaderboardResponse{Stale: true, Rows: []model.LeaderboardRow{}})
		return
	}
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, leaderboardResponse{Rows: rows})
}

func (h *Handler) WatchlistAdd(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	instrument := chi.URLParam(r, "instrument")
	err := h.watchlist.Add(r.Context(), accountID, instrument)
	switch {
	case errors.Is(err, watchlist.ErrAlreadyWatched):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "already watched"})
	case errors.Is(err, watchlist.ErrFull):
		httputil.WriteJSON(w, http.StatusConflict, httputil.ErrorResponse{Error: "watchlist is full"})
	case err != nil:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) WatchlistRemove(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	instrument := chi.URLParam(r, "instrument")
	if err := h.watchlist.Remove(r.Context(), accountID, instrument); err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) WatchlistList(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	entries, err := h.watchlist.List(r.Context(), accountID, pageParam(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
