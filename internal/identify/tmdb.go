package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"debridvfs/pkg/logger"
)

// SearchResult is one TMDB search hit. The upstream API's own schema omits
// vote/popularity fields for movies depending on endpoint version; all
// fields used by scoreResult are declared here regardless.
type SearchResult struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Name          string  `json:"name"`
	OriginalTitle string  `json:"original_title"`
	OriginalName  string  `json:"original_name"`
	ReleaseDate   string  `json:"release_date"`
	FirstAirDate  string  `json:"first_air_date"`
	VoteCount     int     `json:"vote_count"`
	VoteAverage   float64 `json:"vote_average"`
	Popularity    float64 `json:"popularity"`
}

// DisplayTitle returns the localized title for a movie or show result.
func (r SearchResult) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// DisplayOriginalTitle returns the original-language title.
func (r SearchResult) DisplayOriginalTitle() string {
	if r.OriginalTitle != "" {
		return r.OriginalTitle
	}
	return r.OriginalName
}

// Date returns the release/first-air date string, whichever applies.
func (r SearchResult) Date() string {
	if r.ReleaseDate != "" {
		return r.ReleaseDate
	}
	return r.FirstAirDate
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// TmdbClient is a minimal TMDB search client with bounded retry/backoff.
type TmdbClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewTmdbClient constructs a client with a 10s timeout, matching the
// original prototype.
func NewTmdbClient(apiKey string) *TmdbClient {
	return &TmdbClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		baseURL:    "https://api.themoviedb.org/3",
	}
}

// SetBaseURLForTest points the client at a test server instead of the
// real TMDB API. Exported only for use by other packages' tests.
func (c *TmdbClient) SetBaseURLForTest(u string) { c.baseURL = u }

// SearchMovie searches TMDB's movie index.
func (c *TmdbClient) SearchMovie(ctx context.Context, query string, year *int) []SearchResult {
	u := fmt.Sprintf("%s/search/movie?api_key=%s&query=%s", c.baseURL, c.apiKey, url.QueryEscape(query))
	if year != nil {
		u += fmt.Sprintf("&year=%d", *year)
	}
	return c.search(ctx, u)
}

// SearchTV searches TMDB's TV index.
func (c *TmdbClient) SearchTV(ctx context.Context, query string, year *int) []SearchResult {
	u := fmt.Sprintf("%s/search/tv?api_key=%s&query=%s", c.baseURL, c.apiKey, url.QueryEscape(query))
	if year != nil {
		u += fmt.Sprintf("&first_air_date_year=%d", *year)
	}
	return c.search(ctx, u)
}

func (c *TmdbClient) search(ctx context.Context, u string) []SearchResult {
	resp, err := c.fetchWithRetry(ctx, u)
	if err != nil {
		logger.Warn("TMDB search failed: %v", err)
		return nil
	}
	return resp.Results
}

// fetchWithRetry makes up to 3 attempts with exponential backoff + jitter
// between them, honoring a 429's Retry-After header.
func (c *TmdbClient) fetchWithRetry(ctx context.Context, u string) (*searchResponse, error) {
	const maxAttempts = 3
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			jitter := time.Duration(rand.Intn(500)) * time.Millisecond
			time.Sleep(backoff + jitter)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("TMDB request failed (attempt %d/%d): %v", attempt, maxAttempts, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := 1
			if h := resp.Header.Get("Retry-After"); h != "" {
				if v, err := strconv.Atoi(h); err == nil {
					retryAfter = v
				}
			}
			resp.Body.Close()
			logger.Warn("TMDB rate limited (429), waiting %ds (attempt %d/%d)", retryAfter, attempt, maxAttempts)
			time.Sleep(time.Duration(retryAfter) * time.Second)
			lastErr = fmt.Errorf("rate limited")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		var out searchResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		return &out, nil
	}

	return nil, lastErr
}
