package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/pkg/models"
)

// ContentStore mirrors the vector index payload into PostgreSQL so the index
// can be rebuilt after a lost snapshot.
type ContentStore struct {
	db     Querier
	logger *logrus.Logger
}

func NewContentStore(db Querier, logger *logrus.Logger) *ContentStore {
	return &ContentStore{db: db, logger: logger}
}

// Upsert writes one catalogue item keyed by (content_type, tmdb_id).
func (s *ContentStore) Upsert(ctx context.Context, item *models.ContentItem) error {
	query := `
		INSERT INTO content_items (
			content_type, tmdb_id, title, original_title, overview, genres,
			release_date, poster_path, tagline, cast_names, network,
			vote_average, vote_count, popularity, original_language,
			embedding, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (content_type, tmdb_id) DO UPDATE SET
			title = EXCLUDED.title,
			original_title = EXCLUDED.original_title,
			overview = EXCLUDED.overview,
			genres = EXCLUDED.genres,
			release_date = EXCLUDED.release_date,
			poster_path = EXCLUDED.poster_path,
			tagline = EXCLUDED.tagline,
			cast_names = EXCLUDED.cast_names,
			network = EXCLUDED.network,
			vote_average = EXCLUDED.vote_average,
			vote_count = EXCLUDED.vote_count,
			popularity = EXCLUDED.popularity,
			original_language = EXCLUDED.original_language,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()`

	_, err := s.db.Exec(ctx, query,
		item.ContentType, item.TmdbID, item.Title, item.OriginalTitle,
		item.Overview, item.Genres, item.ReleaseDate, item.PosterPath,
		item.Tagline, item.Cast, item.Network, item.VoteAverage,
		item.VoteCount, item.Popularity, item.OriginalLanguage,
		item.Embedding,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert content item: %w", err)
	}
	return nil
}

// All streams the full catalogue, embeddings included, for index rebuilds.
func (s *ContentStore) All(ctx context.Context) ([]models.ContentItem, error) {
	query := `
		SELECT content_type, tmdb_id, title, original_title, overview, genres,
		       release_date, poster_path, tagline, cast_names, network,
		       vote_average, vote_count, popularity, original_language, embedding
		FROM content_items
		ORDER BY content_type, tmdb_id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query content items: %w", err)
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var item models.ContentItem
		if err := rows.Scan(
			&item.ContentType, &item.TmdbID, &item.Title, &item.OriginalTitle,
			&item.Overview, &item.Genres, &item.ReleaseDate, &item.PosterPath,
			&item.Tagline, &item.Cast, &item.Network, &item.VoteAverage,
			&item.VoteCount, &item.Popularity, &item.OriginalLanguage,
			&item.Embedding,
		); err != nil {
			return nil, fmt.Errorf("failed to scan content item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Count returns the catalogue size per content type ("" for all).
func (s *ContentStore) Count(ctx context.Context, contentType string) (int, error) {
	var count int
	var err error
	if contentType == "" || contentType == models.ContentTypeAll {
		err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM content_items`).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM content_items WHERE content_type = $1`,
			contentType,
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count content items: %w", err)
	}
	return count, nil
}
