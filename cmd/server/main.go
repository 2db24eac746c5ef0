package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kitman0000/UpsAndDowns/internal/config"
	"github.com/kitman0000/UpsAndDowns/internal/httpserver"
	"github.com/kitman0000/UpsAndDowns/internal/leaderboard"
	"github.com/kitman0000/UpsAndDowns/internal/ledger"
	"github.com/kitman0000/UpsAndDowns/internal/locker"
	"github.com/kitman0000/UpsAndDowns/internal/oracle"
	"github.com/kitman0000/UpsAndDowns/internal/rowstore"
	"github.com/kitman0000/UpsAndDowns/internal/trading"
	"github.com/kitman0000/UpsAndDowns/internal/watchlist"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := rowstore.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	ledgerSvc := ledger.NewService(store)
	watchlistSvc := watchlist.NewService(store, cfg.WatchlistMax)
	price := oracle.HTTP(cfg.PriceURL, cfg.InternalToken)
	board := leaderboard.NewAggregator(store, ledgerSvc, oracle.Cached(price, cfg.PriceCacheTTL), cfg.LeaderboardTTL, cfg.LeaderboardTop)

	if err := ledgerSvc.InitSchema(ctx); err != nil {
		log.Fatal(err)
	}
	if err := watchlistSvc.InitSchema(ctx); err != nil {
		log.Fatal(err)
	}
	if err := board.InitSchema(ctx); err != nil {
		log.Fatal(err)
	}

	locks := locker.NewRegistry()
	tradingSvc := trading.NewService(ledgerSvc, locks, price, cfg.FeeRate, cfg.LockTimeout)

	go board.Run(ctx, cfg.LeaderboardRefresh)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Handler:       httpserver.NewHandler(tradingSvc, board, watchlistSvc),
		Store:         store,
		InternalToken: cfg.InternalToken,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Printf("server listening on %s", cfg.HTTPAddr)
	log.Printf("db driver %s, leaderboard refresh every %s", cfg.DBDriver, cfg.LeaderboardRefresh)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
