// Package metadata talks to the external catalogue provider (a TMDB-style
// REST API). Every call returns an envelope carrying the upstream status so
// callers can distinguish "upstream said no" from "we never got an answer".
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mooviq/mooviq/internal/config"
	"github.com/mooviq/mooviq/internal/errs"
)

// Response is the provider envelope. Success is true only for 2xx answers;
// Data holds the raw JSON body for typed decoding.
type Response struct {
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"status_code"`
	Success    bool            `json:"success"`
}

// Decode unmarshals the envelope body into dest.
func (r Response) Decode(dest any) error {
	if !r.Success {
		return fmt.Errorf("provider returned status %d", r.StatusCode)
	}
	return json.Unmarshal(r.Data, dest)
}

// Client issues rate-limited requests against the provider. Safe for
// concurrent use.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *logrus.Logger
	baseURL     string
	apiKey      string
	language    string
	watchRegion string
}

func NewClient(cfg *config.Config, logger *logrus.Logger) *Client {
	perSec := cfg.Metadata.RatePerSec
	if perSec <= 0 {
		perSec = 40
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Metadata.Timeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(perSec), perSec),
		logger:      logger,
		baseURL:     strings.TrimRight(cfg.Metadata.BaseURL, "/"),
		apiKey:      cfg.Metadata.APIKey,
		language:    cfg.Metadata.Language,
		watchRegion: cfg.Metadata.WatchRegion,
	}
}

// Get issues a GET against endpoint with the given query parameters. The api
// key and language are always attached; watch_region only on watch-provider
// endpoints. Transport failures come back as transient errors, upstream
// non-2xx answers as a Success=false envelope with a nil error.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, errs.Transientf("rate limiter interrupted")
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	if strings.Contains(endpoint, "watch/providers") && c.watchRegion != "" {
		params.Set("watch_region", c.watchRegion)
	}

	reqURL := c.baseURL + "/" + strings.TrimLeft(endpoint, "/") + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("failed to build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("endpoint", endpoint).Warn("Metadata request failed")
		return Response{}, errs.Transientf("metadata request for %s failed", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, errs.Transientf("failed to read metadata response for %s", endpoint)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Warn("Metadata provider rejected request")
		return Response{StatusCode: resp.StatusCode, Success: false}, nil
	}

	return Response{Data: body, StatusCode: resp.StatusCode, Success: true}, nil
}
