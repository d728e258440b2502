// Package notify implements a Jellyfin "library changed" notifier.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"debridvfs/internal/config"
	"debridvfs/internal/vfs"
	"debridvfs/pkg/logger"
)

const (
	maxRetries = 10
	retryDelay = 5 * time.Second

	// notificationDelay lets rclone's directory cache expire before
	// Jellyfin re-scans; must exceed rclone's --dir-cache-time.
	notificationDelay = 15 * time.Second
)

// Client notifies a Jellyfin server of VFS changes via its library-update
// webhook endpoint.
type Client struct {
	url       string
	apiKey    string
	mountPath string
	http      *http.Client
}

// New constructs a Client, trimming trailing slashes from both path-like
// inputs so they can be joined unconditionally.
func New(url, apiKey, mountPath string) *Client {
	return &Client{
		url:       strings.TrimRight(url, "/"),
		apiKey:    apiKey,
		mountPath: strings.TrimRight(mountPath, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// FromEnv constructs a Client from config.Settings's all-or-none Jellyfin
// fields, returning nil if they aren't fully configured.
func FromEnv(settings config.Settings) *Client {
	if !settings.JellyfinConfigured() {
		return nil
	}
	return New(settings.JellyfinURL, settings.JellyfinAPIKey, settings.JellyfinRcloneMountPath)
}

type update struct {
	Path       string `json:"Path"`
	UpdateType string `json:"UpdateType"`
}

type requestBody struct {
	Updates []update `json:"Updates"`
}

func updateTypeName(t vfs.ChangeType) string {
	switch t {
	case vfs.Created:
		return "Created"
	case vfs.Modified:
		return "Modified"
	case vfs.Deleted:
		return "Deleted"
	default:
		return "Modified"
	}
}

func (c *Client) buildRequestBody(changes []vfs.Change) requestBody {
	updates := make([]update, 0, len(changes))
	for _, ch := range changes {
		updates = append(updates, update{
			Path:       fmt.Sprintf("%s/%s", c.mountPath, ch.Path),
			UpdateType: updateTypeName(ch.Type),
		})
	}
	return requestBody{Updates: updates}
}

// NotifyChanges waits notificationDelay, then POSTs changes to Jellyfin,
// retrying up to maxRetries times on connection failures or a 503
// response. Any other non-2xx response or terminal send error is logged
// and dropped without retrying. A nil Client or an empty change set is a
// no-op.
func (c *Client) NotifyChanges(ctx context.Context, changes []vfs.Change) {
	if c == nil || len(changes) == 0 {
		return
	}

	body := c.buildRequestBody(changes)
	payload, err := json.Marshal(body)
	if err != nil {
		logger.Warn("notify: failed to encode request body: %v", err)
		return
	}

	endpoint := c.url + "/Library/Media/Updated"

	paths := make([]string, len(changes))
	for i, ch := range changes {
		paths[i] = ch.Path
	}
	logger.Info("notifying Jellyfin of %d change(s) in %ds: %s", len(changes), int(notificationDelay.Seconds()), strings.Join(paths, ", "))

	select {
	case <-time.After(notificationDelay):
	case <-ctx.Done():
		return
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			logger.Warn("notify: failed to build request: %v", err)
			return
		}
		req.Header.Set("X-Emby-Token", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			logger.Warn("cannot connect to Jellyfin (not started?), retry %d/%d", attempt+1, maxRetries)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp.Body.Close()
			logger.Info("Jellyfin notified successfully")
			return
		}

		if resp.StatusCode == http.StatusServiceUnavailable {
			resp.Body.Close()
			logger.Warn("Jellyfin returned 503 (still starting?), retry %d/%d", attempt+1, maxRetries)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		logger.Warn("Jellyfin notification returned status %d: %s", resp.StatusCode, string(respBody))
		return
	}

	logger.Warn("Jellyfin notification failed after %d retries", maxRetries)
}
