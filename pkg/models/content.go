package models

// Content type discriminators. Rooms additionally allow "mixed" decks and the
// public recommendation surface accepts "all" to merge both catalogues.
const (
	ContentTypeMovie = "movie"
	ContentTypeTV    = "tv"
	ContentTypeMixed = "mixed"
	ContentTypeAll   = "all"
)

// ContentItem is one catalogue entry mirrored into the vector index and the
// content store. Embedding is always L2-normalized (384 dimensions).
type ContentItem struct {
	TmdbID           int64     `json:"tmdb_id"`
	ContentType      string    `json:"content_type"`
	Title            string    `json:"title"`
	OriginalTitle    string    `json:"original_title,omitempty"`
	Overview         string    `json:"overview"`
	Genres           []string  `json:"genres,omitempty"`
	ReleaseDate      string    `json:"release_date,omitempty"`
	PosterPath       string    `json:"poster_path,omitempty"`
	Tagline          string    `json:"tagline,omitempty"`
	Cast             []string  `json:"cast,omitempty"`
	Network          string    `json:"network,omitempty"`
	VoteAverage      float64   `json:"vote_average"`
	VoteCount        int64     `json:"vote_count"`
	Popularity       float64   `json:"popularity"`
	OriginalLanguage string    `json:"original_language,omitempty"`
	Embedding        []float32 `json:"embedding_vector,omitempty"`
}

// Key uniquely identifies an item across both catalogues.
func (c *ContentItem) Key() ContentKey {
	return ContentKey{ContentType: c.ContentType, TmdbID: c.TmdbID}
}

// ContentKey is the (content_type, tmdb_id) pair used for deduplication.
type ContentKey struct {
	ContentType string `json:"content_type"`
	TmdbID      int64  `json:"tmdb_id"`
}

// Sanitized returns a copy without the embedding vector. Outbound payloads
// (room decks, admin listings) are metadata only.
func (c ContentItem) Sanitized() ContentItem {
	c.Embedding = nil
	return c
}

// IndexStats describes the state of the vector index.
type IndexStats struct {
	TotalItems int    `json:"total_items"`
	MovieCount int    `json:"movie_count"`
	TVCount    int    `json:"tv_count"`
	Dimension  int    `json:"index_dimension"`
	Backend    string `json:"backend"` // flat or ivf
}
