package httpserver

import (
	"net/http"

	"github.com/kitman0000/UpsAndDowns/internal/metrics"
	"github.com/kitman0000/UpsAndDowns/internal/rowstore"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	Handler       *Handler
	Store         *rowstore.Store
	InternalToken string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(InternalAuth(d.InternalToken))

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Post("/buy", d.Handler.Buy)
			r.Post("/sell", d.Handler.Sell)
			r.Post("/transfers/in", d.Handler.TransferIn)
			r.Post("/transfers/out", d.Handler.TransferOut)
			r.Get("/balance", d.Handler.Balance)
			r.Get("/holdings", d.Handler.Holdings)
			r.Get("/orders", d.Handler.Orders)
			r.Get("/holdings/{instrument}/average-cost", d.Handler.AverageCost)
			r.Route("/watchlist", func(r chi.Router) {
				r.Get("/", d.Handler.WatchlistList)
				r.Put("/{instrument}", d.Handler.WatchlistAdd)
				r.Delete("/{instrument}", d.Handler.WatchlistRemove)
			})
		})
		r.Get("/leaderboard/{kind}", d.Handler.Leaderboard)
	})

	return r
}
