// Package watchlist stores per-account instrument bookmarks.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kitman0000/UpsAndDowns/internal/model"
	"github.com/kitman0000/UpsAndDowns/internal/rowstore"
)

var (
	ErrAlreadyWatched = errors.New("watchlist: instrument already watched")
	ErrFull           = errors.New("watchlist: watchlist is full")
)

const pageSize = 10

type Service struct {
	store *rowstore.Store
	max   int
}

func NewService(store *rowstore.Store, max int) *Service {
	return &Service{store: store, max: max}
}

func (s *Service) InitSchema(ctx context.Context) error {
	return s.store.CreateTable(ctx, "watchlist", []rowstore.Column{
		{Name: "id", Type: s.store.AutoincrementPK()},
		{Name: "account_id", Type: "TEXT NOT NULL"},
		{Name: "instrument", Type: "TEXT NOT NULL"},
		{Name: "added_at", Type: "TIMESTAMP NOT NULL"},
	}, "UNIQUE (account_id, instrument)")
}

// Add bookmarks an instrument. Duplicate adds and adds beyond the
// configured cap fail with sentinel errors the caller can message on.
func (s *Service) Add(ctx context.Context, accountID, instrument string) error {
	if accountID == "" || instrument == "" {
		return errors.New("watchlist: account and instrument are required")
	}
	watched, err := s.Contains(ctx, accountID, instrument)
	if err != nil {
		return err
	}
	if watched {
		return ErrAlreadyWatched
	}
	count, err := s.Count(ctx, accountID)
	if err != nil {
		return err
	}
	if count >= s.max {
		return ErrFull
	}
	if err := s.store.Insert(ctx, "watchlist", map[string]any{
		"account_id": accountID,
		"instrument": instrument,
		"added_at":   time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("add watchlist entry: %w", err)
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, accountID, instrument string) error {
	return s.store.Delete(ctx, "watchlist", "account_id = ? AND instrument = ?", accountID, instrument)
}

func (s *Service) Contains(ctx context.Context, accountID, instrument string) (bool, error) {
	_, err := s.store.QueryOne(ctx, "SELECT id FROM watchlist WHERE account_id = ? AND instrument = ?", accountID, instrument)
	if errors.Is(err, rowstore.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns one page of bookmarks, newest first. Pages are 1-based.
func (s *Service) List(ctx context.Context, accountID string, page int) ([]model.WatchlistEntry, error) {
	if page < 1 {
		page = 1
	}
	rows, err := s.store.QueryAll(ctx,
		"SELECT id, account_id, instrument, added_at FROM watchlist WHERE account_id = ? ORDER BY added_at DESC, id DESC LIMIT ? OFFSET ?",
		accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	out := make([]model.WatchlistEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.WatchlistEntry{
			ID:         r.Int64("id"),
			AccountID:  r.String("account_id"),
			Instrument: r.String("instrument"),
			AddedAt:    r.Time("added_at"),
		})
	}
	return out, nil
}

func (s *Service) Count(ctx context.Context, accountID string) (int, error) {
	row, err := s.store.QueryOne(ctx, "SELECT COUNT(*) AS count FROM watchlist WHERE account_id = ?", accountID)
	if err != nil {
		return 0, err
	}
	return int(row.Int64("count")), nil
}
