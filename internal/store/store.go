// Package store holds the PostgreSQL persistence layer. Each store speaks
// plain SQL through the Querier interface so tests can substitute a mock
// pool.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// Querier is the subset of pgxpool.Pool the stores need. Satisfied by
// *pgxpool.Pool and pgxmock.PgxPoolIface.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Stores bundles every store over one shared pool.
type Stores struct {
	Content   *ContentStore
	Ratings   *RatingStore
	Watchlist *WatchlistStore
	RecLog    *RecommendationLogStore
	Profiles  *ProfileStore
	Rooms     *RoomStore
}

func New(db Querier, logger *logrus.Logger) *Stores {
	return &Stores{
		Content:   NewContentStore(db, logger),
		Ratings:   NewRatingStore(db, logger),
		Watchlist: NewWatchlistStore(db, logger),
		RecLog:    NewRecommendationLogStore(db, logger),
		Profiles:  NewProfileStore(db, logger),
		Rooms:     NewRoomStore(db, logger),
	}
}
