package metadata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/cache"
	"github.com/mooviq/mooviq/internal/errs"
	"github.com/mooviq/mooviq/pkg/models"
)

const (
	detailsTTL = 24 * time.Hour
	genresTTL  = 24 * time.Hour

	// castLimit keeps only the leading cast members on an item.
	castLimit = 5
)

// PageResult is one page of a paginated listing (popular, search, discover).
type PageResult struct {
	Page         int    `json:"page"`
	TotalPages   int    `json:"total_pages"`
	TotalResults int    `json:"total_results"`
	Results      []Item `json:"results"`
}

// Item is a provider catalogue entry. Listing endpoints carry GenreIDs,
// detail endpoints carry Genres; movies use Title/ReleaseDate while TV uses
// Name/FirstAirDate.
type Item struct {
	ID               int64      `json:"id"`
	Title            string     `json:"title"`
	Name             string     `json:"name"`
	OriginalTitle    string     `json:"original_title"`
	OriginalName     string     `json:"original_name"`
	Overview         string     `json:"overview"`
	Tagline          string     `json:"tagline"`
	PosterPath       string     `json:"poster_path"`
	BackdropPath     string     `json:"backdrop_path"`
	ReleaseDate      string     `json:"release_date"`
	FirstAirDate     string     `json:"first_air_date"`
	GenreIDs         []int      `json:"genre_ids"`
	Genres           []genreRef `json:"genres"`
	Networks         []nameRef  `json:"networks"`
	VoteAverage      float64    `json:"vote_average"`
	VoteCount        int64      `json:"vote_count"`
	Popularity       float64    `json:"popularity"`
	OriginalLanguage string     `json:"original_language"`
}

type genreRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type nameRef struct {
	Name string `json:"name"`
}

// Credits is the cast listing of an item.
type Credits struct {
	Cast []struct {
		Name string `json:"name"`
	} `json:"cast"`
}

// DisplayTitle normalizes the movie/TV title split.
func (i Item) DisplayTitle() string {
	if i.Title != "" {
		return i.Title
	}
	return i.Name
}

func (i Item) displayOriginalTitle() string {
	if i.OriginalTitle != "" {
		return i.OriginalTitle
	}
	return i.OriginalName
}

func (i Item) displayReleaseDate() string {
	if i.ReleaseDate != "" {
		return i.ReleaseDate
	}
	return i.FirstAirDate
}

// ToContent maps the provider item onto the internal catalogue model.
// genreNames resolves listing-style genre ids; nil is fine when the item
// came from a detail endpoint.
func (i Item) ToContent(contentType string, genreNames map[int]string) models.ContentItem {
	var genres []string
	for _, g := range i.Genres {
		genres = append(genres, g.Name)
	}
	if len(genres) == 0 {
		for _, id := range i.GenreIDs {
			if name, ok := genreNames[id]; ok {
				genres = append(genres, name)
			}
		}
	}

	var network string
	if len(i.Networks) > 0 {
		network = i.Networks[0].Name
	}

	return models.ContentItem{
		TmdbID:           i.ID,
		ContentType:      contentType,
		Title:            i.DisplayTitle(),
		OriginalTitle:    i.displayOriginalTitle(),
		Overview:         i.Overview,
		Genres:           genres,
		ReleaseDate:      i.displayReleaseDate(),
		PosterPath:       i.PosterPath,
		Tagline:          i.Tagline,
		Network:          network,
		VoteAverage:      i.VoteAverage,
		VoteCount:        i.VoteCount,
		Popularity:       i.Popularity,
		OriginalLanguage: i.OriginalLanguage,
	}
}

// Catalog wraps the raw client with typed endpoints and a read-through cache
// on the hot detail paths.
type Catalog struct {
	client *Client
	cache  *cache.Cache
	logger *logrus.Logger
}

func NewCatalog(client *Client, c *cache.Cache, logger *logrus.Logger) *Catalog {
	return &Catalog{
		client: client,
		cache:  c,
		logger: logger,
	}
}

func endpointRoot(contentType string) (string, error) {
	switch contentType {
	case models.ContentTypeMovie:
		return "movie", nil
	case models.ContentTypeTV:
		return "tv", nil
	default:
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
}

// Popular returns one page of the popular listing for a content type.
func (c *Catalog) Popular(ctx context.Context, contentType string, page int) (*PageResult, error) {
	root, err := endpointRoot(contentType)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))

	resp, err := c.client.Get(ctx, root+"/popular", params)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errs.Transientf("popular %s page %d returned status %d", contentType, page, resp.StatusCode)
	}

	var result PageResult
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode popular %s page %d: %w", contentType, page, err)
	}
	return &result, nil
}

// Details returns full metadata for one item, cached for a day. Unknown ids
// come back as ErrNotFound.
func (c *Catalog) Details(ctx context.Context, contentType string, tmdbID int64) (*Item, error) {
	root, err := endpointRoot(contentType)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("tmdb:%s:%d:details", contentType, tmdbID)
	var item Item
	if c.cache != nil && c.cache.GetJSON(ctx, cacheKey, &item) {
		return &item, nil
	}

	resp, err := c.client.Get(ctx, fmt.Sprintf("%s/%d", root, tmdbID), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, fmt.Errorf("%s %d: %w", contentType, tmdbID, errs.ErrNotFound)
	}
	if !resp.Success {
		return nil, errs.Transientf("details for %s %d returned status %d", contentType, tmdbID, resp.StatusCode)
	}

	if err := resp.Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode details for %s %d: %w", contentType, tmdbID, err)
	}

	if c.cache != nil {
		c.cache.SetJSON(ctx, cacheKey, item, detailsTTL)
	}
	return &item, nil
}

// CastNames returns the leading cast of an item.
func (c *Catalog) CastNames(ctx context.Context, contentType string, tmdbID int64) ([]string, error) {
	root, err := endpointRoot(contentType)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Get(ctx, fmt.Sprintf("%s/%d/credits", root, tmdbID), nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errs.Transientf("credits for %s %d returned status %d", contentType, tmdbID, resp.StatusCode)
	}

	var credits Credits
	if err := resp.Decode(&credits); err != nil {
		return nil, fmt.Errorf("failed to decode credits for %s %d: %w", contentType, tmdbID, err)
	}

	names := make([]string, 0, castLimit)
	for _, member := range credits.Cast {
		if len(names) == castLimit {
			break
		}
		names = append(names, member.Name)
	}
	return names, nil
}

// Search queries the provider full-text search for a content type.
func (c *Catalog) Search(ctx context.Context, contentType, query string, page int) (*PageResult, error) {
	root, err := endpointRoot(contentType)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))

	resp, err := c.client.Get(ctx, "search/"+root, params)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errs.Transientf("search %s %q returned status %d", contentType, query, resp.StatusCode)
	}

	var result PageResult
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return &result, nil
}

// Discover runs a filtered discovery query.
func (c *Catalog) Discover(ctx context.Context, contentType string, page int, filters map[string]string) (*PageResult, error) {
	root, err := endpointRoot(contentType)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	for key, value := range filters {
		params.Set(key, value)
	}

	resp, err := c.client.Get(ctx, "discover/"+root, params)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errs.Transientf("discover %s returned status %d", contentType, resp.StatusCode)
	}

	var result PageResult
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode discover results: %w", err)
	}
	return &result, nil
}

// Recommendations returns the provider's own related-titles listing.
func (c *Catalog) Recommendations(ctx context.Context, contentType string, tmdbID int64, page int) (*PageResult, error) {
	root, err := endpointRoot(contentType)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))

	resp, err := c.client.Get(ctx, fmt.Sprintf("%s/%d/recommendations", root, tmdbID), params)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errs.Transientf("recommendations for %s %d returned status %d", contentType, tmdbID, resp.StatusCode)
	}

	var result PageResult
	if err := resp.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode recommendation listing: %w", err)
	}
	return &result, nil
}

// WatchProviders returns the raw streaming-availability payload for the
// configured region.
func (c *Catalog) WatchProviders(ctx context.Context, contentType string, tmdbID int64) (Response, error) {
	root, err := endpointRoot(contentType)
	if err != nil {
		return Response{}, err
	}
	return c.client.Get(ctx, fmt.Sprintf("%s/%d/watch/providers", root, tmdbID), nil)
}

// GenreNames returns the id-to-name genre table for a content type, cached
// for a day. Failures yield an empty map; callers degrade to id-less genres.
func (c *Catalog) GenreNames(ctx context.Context, contentType string) map[int]string {
	root, err := endpointRoot(contentType)
	if err != nil {
		return map[int]string{}
	}

	cacheKey := fmt.Sprintf("tmdb:genres:%s", contentType)
	var cached map[int]string
	if c.cache != nil && c.cache.GetJSON(ctx, cacheKey, &cached) {
		return cached
	}

	resp, err := c.client.Get(ctx, fmt.Sprintf("genre/%s/list", root), nil)
	if err != nil || !resp.Success {
		return map[int]string{}
	}

	var payload struct {
		Genres []genreRef `json:"genres"`
	}
	if err := resp.Decode(&payload); err != nil {
		c.logger.WithError(err).Warn("Failed to decode genre listing")
		return map[int]string{}
	}

	names := make(map[int]string, len(payload.Genres))
	for _, g := range payload.Genres {
		names[g.ID] = g.Name
	}

	if c.cache != nil {
		c.cache.SetJSON(ctx, cacheKey, names, genresTTL)
	}
	return names
}

// FullItem assembles a complete content record from details plus credits.
// Credit failures are tolerated; the cast list is advisory.
func (c *Catalog) FullItem(ctx context.Context, contentType string, tmdbID int64) (*models.ContentItem, error) {
	item, err := c.Details(ctx, contentType, tmdbID)
	if err != nil {
		return nil, err
	}

	content := item.ToContent(contentType, nil)

	castNames, err := c.CastNames(ctx, contentType, tmdbID)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"content_type": contentType,
			"tmdb_id":      tmdbID,
		}).Debug("Credits unavailable")
	} else {
		content.Cast = castNames
	}

	return &content, nil
}
