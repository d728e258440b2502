// Package debrid implements the Real-Debrid REST client: adaptive rate
// limiting, bounded retries, and the unrestrict/torrent endpoints the rest
// of this module depends on.
package debrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"debridvfs/internal/config"
	"debridvfs/pkg/logger"
)

const (
	defaultBaseURL = "https://api.real-debrid.com/rest/1.0"
	httpTimeout = 30 * time.Second
)

// Client is the Real-Debrid API client.
type Client struct {
	tokens     *tokenManager
	httpClient *http.Client
	limiter    *rateLimiter
	cache      *unrestrictCache
	maxRetries int
	baseURL    string
}

// NewClient constructs a Client from a (possibly comma-separated) API token
// string and the module's rate-limit settings.
func NewClient(apiToken string) (*Client, error) {
	tm, err := newTokenManager(apiToken)
	if err != nil {
		return nil, err
	}

	rl := config.RateLimit()
	return &Client{
		tokens:     tm,
		httpClient: &http.Client{Timeout: httpTimeout},
		limiter:    newRateLimiter(rl.MinIntervalMs, rl.MaxIntervalMs),
		cache:      newUnrestrictCache(),
		maxRetries: rl.MaxRetries,
		baseURL:    defaultBaseURL,
	}, nil
}

func (c *Client) authHeader(req *http.Request) error {
	tok, err := c.tokens.current()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return req.Context().Err()
}

// doRequest builds and sends a fresh request for method/rawURL/body on every
// attempt (so a retried POST resends its body, not an exhausted reader),
// respecting the rate limiter and retrying on transient failures, transient
// 5xx (502/503/504), and 429s, for at most maxRetries attempts in total
// (default 10). 500 and other non-listed statuses are returned to the
// caller unretried.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, body []byte, contentType, operation string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff(attempt))
		}

		c.limiter.wait()

		req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader(body))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", operation, err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if err := c.authHeader(req); err != nil {
			return nil, fmt.Errorf("%s: %w", operation, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("%s: request error (attempt %d/%d): %v", operation, attempt+1, c.maxRetries, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			c.limiter.onThrottled(retryAfter)
			resp.Body.Close()
			lastErr = fmt.Errorf("%s: rate limited (429)", operation)
			logger.Warn("%s: 429 received, interval now %dms", operation, c.limiter.currentIntervalMs())
			continue
		}

		if isTransientServerError(resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("%s: transient status %d", operation, resp.StatusCode)
			logger.Warn("%s: transient status %d (attempt %d/%d)", operation, resp.StatusCode, attempt+1, c.maxRetries)
			continue
		}

		c.limiter.onSuccess()
		return resp, nil
	}

	return nil, fmt.Errorf("%s: exhausted retries: %w", operation, lastErr)
}

// bodyReader turns a request body back into a fresh io.Reader on every
// attempt; nil for bodyless requests.
func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

// isTransientServerError reports the 5xx statuses worth retrying. 500 is
// deliberately excluded: Real-Debrid uses it for ordinary application
// errors, not upstream unavailability.
func isTransientServerError(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// parseRetryAfter reads a Retry-After header (seconds or HTTP-date form),
// clamped to 300s, per the rate limiter's next_allowed contract.
func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}

	const maxRetryAfter = 300 * time.Second

	if secs, err := strconv.Atoi(h); err == nil {
		d := time.Duration(secs) * time.Second
		if d < 0 {
			return 0
		}
		if d > maxRetryAfter {
			return maxRetryAfter
		}
		return d
	}

	if t, err := http.ParseTime(h); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		if d > maxRetryAfter {
			return maxRetryAfter
		}
		return d
	}

	return 0
}

// retryBackoff implements min(2^attempt, 30)s plus up to 500ms of jitter.
func retryBackoff(attempt int) time.Duration {
	secs := 1 << attempt
	if secs > 30 {
		secs = 30
	}
	jitter := time.Duration(rand.Intn(500)) * time.Millisecond
	return time.Duration(secs)*time.Second + jitter
}

func readErrorBody(resp *http.Response) ErrorResponse {
	var er ErrorResponse
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	_ = json.Unmarshal(body, &er)
	return er
}

// GetTorrents lists the user's torrents, paginating with limit/offset. A
// page fetch failure returns whatever pages were already collected rather
// than discarding the whole listing.
func (c *Client) GetTorrents(ctx context.Context) ([]TorrentSummary, error) {
	var all []TorrentSummary
	const pageSize = 100

	for offset := 0; ; offset += pageSize {
		u := fmt.Sprintf("%s/torrents?limit=%d&offset=%d", c.baseURL, pageSize, offset)

		resp, err := c.doRequest(ctx, http.MethodGet, u, nil, "", "GetTorrents")
		if err != nil {
			logger.Warn("GetTorrents: page at offset %d failed, returning %d torrents collected so far: %v", offset, len(all), err)
			return all, nil
		}

		if resp.StatusCode != http.StatusOK {
			er := readErrorBody(resp)
			logger.Warn("GetTorrents: page at offset %d returned %d (%s), returning %d torrents collected so far", offset, resp.StatusCode, er.Error, len(all))
			return all, nil
		}

		var page []TorrentSummary
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err := json.Unmarshal(body, &page); err != nil {
			logger.Warn("GetTorrents: decode failure at offset %d, returning %d torrents collected so far: %v", offset, len(all), err)
			return all, nil
		}

		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// GetTorrentInfo fetches the detailed view of a single torrent.
func (c *Client) GetTorrentInfo(ctx context.Context, id string) (*TorrentInfo, error) {
	u := fmt.Sprintf("%s/torrents/info/%s", c.baseURL, url.PathEscape(id))

	resp, err := c.doRequest(ctx, http.MethodGet, u, nil, "", "GetTorrentInfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &ErrTorrentNotFound{TorrentID: id}
	}
	if resp.StatusCode != http.StatusOK {
		er := readErrorBody(resp)
		if er.ErrorCode == 7 {
			return nil, &ErrTorrentNotFound{TorrentID: id, Message: er.Error}
		}
		return nil, fmt.Errorf("GetTorrentInfo: status %d: %s", resp.StatusCode, er.Error)
	}

	var info TorrentInfo
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("GetTorrentInfo: decode: %w", err)
	}
	return &info, nil
}

// AddMagnet submits a magnet URI and returns the new torrent id.
func (c *Client) AddMagnet(ctx context.Context, magnet string) (*AddMagnetResponse, error) {
	form := url.Values{"magnet": {magnet}}

	resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/torrents/addMagnet", []byte(form.Encode()), "application/x-www-form-urlencoded", "AddMagnet")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		er := readErrorBody(resp)
		return nil, fmt.Errorf("AddMagnet: status %d: %s", resp.StatusCode, er.Error)
	}

	var out AddMagnetResponse
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("AddMagnet: decode: %w", err)
	}
	return &out, nil
}

// SelectFiles marks the given file ids (comma-joined) as wanted on a torrent.
func (c *Client) SelectFiles(ctx context.Context, torrentID string, fileIDs []string) error {
	form := url.Values{"files": {strings.Join(fileIDs, ",")}}
	u := fmt.Sprintf("%s/torrents/selectFiles/%s", c.baseURL, url.PathEscape(torrentID))

	resp, err := c.doRequest(ctx, http.MethodPost, u, []byte(form.Encode()), "application/x-www-form-urlencoded", "SelectFiles")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		er := readErrorBody(resp)
		return fmt.Errorf("SelectFiles: status %d: %s", resp.StatusCode, er.Error)
	}
	return nil
}

// DeleteTorrent removes a torrent. A 404 is treated as success: deleting
// an already-gone torrent is not an error.
func (c *Client) DeleteTorrent(ctx context.Context, id string) error {
	u := fmt.Sprintf("%s/torrents/delete/%s", c.baseURL, url.PathEscape(id))

	resp, err := c.doRequest(ctx, http.MethodDelete, u, nil, "", "DeleteTorrent")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		er := readErrorBody(resp)
		return fmt.Errorf("DeleteTorrent: status %d: %s", resp.StatusCode, er.Error)
	}
}

// UnrestrictLink resolves a Real-Debrid hoster link into a direct download
// link, consulting and populating the 1h/10k-entry cache.
func (c *Client) UnrestrictLink(ctx context.Context, link string) (*DownloadLink, error) {
	if failed, ok := c.cache.getFailed(link); ok {
		return nil, fmt.Errorf("UnrestrictLink: cached failure: %s", failed.errMsg)
	}
	if cached, ok := c.cache.get(link); ok {
		return &cached, nil
	}

	form := url.Values{"link": {link}}

	resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/unrestrict/link", []byte(form.Encode()), "application/x-www-form-urlencoded", "UnrestrictLink")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		er := readErrorBody(resp)
		c.cache.putFailed(link, er.Error, er.ErrorCode)
		return nil, fmt.Errorf("UnrestrictLink: status %d: %s", resp.StatusCode, er.Error)
	}

	var dl DownloadLink
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &dl); err != nil {
		return nil, fmt.Errorf("UnrestrictLink: decode: %w", err)
	}

	c.cache.put(link, dl)
	return &dl, nil
}

// CheckLink validates a download link is still alive without unrestricting
// it, used by the repair manager's health checks.
func (c *Client) CheckLink(ctx context.Context, link string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("CheckLink: status %d", resp.StatusCode)
	}
	return nil
}

// ClearUnrestrictCache empties both unrestrict caches.
func (c *Client) ClearUnrestrictCache() { c.cache.clear() }

// UnrestrictCacheSize reports the number of live unrestrict cache entries.
func (c *Client) UnrestrictCacheSize() int { return c.cache.size() }

// SetBaseURLForTest points the client at a test server instead of the real
// Real-Debrid API. Exported only for use by other packages' tests.
func (c *Client) SetBaseURLForTest(u string) { c.baseURL = u }
