// Package repair implements the torrent health/repair state machine:
// Healthy -> Broken -> Repairing -> Failed.
package repair

import (
	"context"
	"fmt"
	"sync"
	"time"

	"debridvfs/internal/debrid"
	"debridvfs/pkg/logger"
)

// State is one of the four externally observable torrent health states.
// A transient "checking" phase during health verification is an internal
// detail of the synchronous check pass, not a separately reported state.
type State int

const (
	Healthy State = iota
	Broken
	Repairing
	Failed
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Broken:
		return "broken"
	case Repairing:
		return "repairing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// TorrentHealth tracks one torrent's repair state.
type TorrentHealth struct {
	TorrentID         string
	State             State
	FailedLinks       map[string]struct{}
	LastCheck         time.Time
	RepairAttempts    int
	LastRepairTrigger time.Time
}

const (
	maxRepairAttempts  = 3
	repairCooldown     = 30 * time.Second
)

// Manager owns the in-memory health table for every torrent the
// reconciliation loop has seen.
type Manager struct {
	mu     sync.RWMutex
	health map[string]*TorrentHealth
	client *debrid.Client
}

// New constructs an empty Manager.
func New(client *debrid.Client) *Manager {
	return &Manager{health: map[string]*TorrentHealth{}, client: client}
}

// MarkBroken records torrentID as Broken due to failedLink, preserving any
// prior repair-attempt count.
func (m *Manager) MarkBroken(torrentID, failedLink string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempts := 0
	if existing, ok := m.health[torrentID]; ok {
		attempts = existing.RepairAttempts
	}

	m.health[torrentID] = &TorrentHealth{
		TorrentID:      torrentID,
		State:          Broken,
		FailedLinks:    map[string]struct{}{failedLink: {}},
		LastCheck:      time.Now(),
		RepairAttempts: attempts,
	}
}

// ShouldHide reports whether torrentID should be excluded from the VFS:
// true for Broken, Repairing, and Failed.
func (m *Manager) ShouldHide(torrentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.health[torrentID]
	if !ok {
		return false
	}
	return h.State == Broken || h.State == Repairing || h.State == Failed
}

// Snapshot returns a defensive copy of the health table, for an embedder
// that wants to expose repair progress without this package knowing about
// HTTP at all (spec's open question 2).
func (m *Manager) Snapshot() map[string]TorrentHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]TorrentHealth, len(m.health))
	for k, v := range m.health {
		out[k] = *v
	}
	return out
}

// RepairTorrent implements the exact repair_torrent contract: refuse if
// permanently Failed, already Repairing, or rate-limited by a recent
// trigger; otherwise gate on the attempt count, rebuild a magnet link from
// the torrent's hash, re-add it, wait for it to settle, match selected
// files back by path, delete the old torrent (tolerating a 404), and swap
// the health entry onto the new torrent id.
func (m *Manager) RepairTorrent(ctx context.Context, original *debrid.TorrentInfo) error {
	m.mu.Lock()
	h, ok := m.health[original.ID]
	if !ok {
		h = &TorrentHealth{TorrentID: original.ID, FailedLinks: map[string]struct{}{}}
		m.health[original.ID] = h
	}

	if h.State == Failed {
		m.mu.Unlock()
		return fmt.Errorf("torrent permanently failed")
	}
	if h.State == Repairing {
		m.mu.Unlock()
		return fmt.Errorf("repair already in progress")
	}
	if !h.LastRepairTrigger.IsZero() && time.Since(h.LastRepairTrigger) < repairCooldown {
		m.mu.Unlock()
		return fmt.Errorf("repair rate limited")
	}
	if h.RepairAttempts >= maxRepairAttempts {
		h.State = Failed
		m.mu.Unlock()
		return fmt.Errorf("maximum repair attempts exceeded")
	}

	h.State = Repairing
	h.RepairAttempts++
	h.LastRepairTrigger = time.Now()
	m.mu.Unlock()

	newID, err := m.performRepair(ctx, original)
	if err != nil {
		m.mu.Lock()
		if cur, ok := m.health[original.ID]; ok {
			if cur.RepairAttempts >= maxRepairAttempts {
				cur.State = Failed
			} else {
				cur.State = Broken
			}
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	delete(m.health, original.ID)
	m.health[newID] = &TorrentHealth{TorrentID: newID, State: Healthy, FailedLinks: map[string]struct{}{}, LastCheck: time.Now(), RepairAttempts: 0}
	m.mu.Unlock()

	return nil
}

func (m *Manager) performRepair(ctx context.Context, original *debrid.TorrentInfo) (string, error) {
	magnet := fmt.Sprintf("magnet:?xt=urn:btih:%s", original.Hash)

	added, err := m.client.AddMagnet(ctx, magnet)
	if err != nil {
		return "", fmt.Errorf("re-adding magnet: %w", err)
	}

	time.Sleep(2 * time.Second)

	newInfo, err := m.client.GetTorrentInfo(ctx, added.ID)
	if err != nil {
		return "", fmt.Errorf("fetching new torrent info: %w", err)
	}

	var selectedIDs []string
	wantedPaths := map[string]struct{}{}
	for _, f := range original.Files {
		if f.Selected == 1 {
			wantedPaths[f.Path] = struct{}{}
		}
	}
	for _, f := range newInfo.Files {
		if _, want := wantedPaths[f.Path]; want {
			selectedIDs = append(selectedIDs, fmt.Sprintf("%d", f.ID))
		}
	}

	if len(selectedIDs) > 0 {
		if err := m.client.SelectFiles(ctx, added.ID, selectedIDs); err != nil {
			return "", fmt.Errorf("selecting files on repaired torrent: %w", err)
		}
	}

	if err := m.client.DeleteTorrent(ctx, original.ID); err != nil {
		logger.Warn("repair: failed to delete old torrent %s (non-fatal): %v", original.ID, err)
	}

	return added.ID, nil
}

// CheckTorrentHealth samples the first, middle, and last links of a
// torrent to decide Healthy vs Broken, skipping torrents that are already
// Repairing or were checked healthy within the last 5 minutes.
func (m *Manager) CheckTorrentHealth(ctx context.Context, info *debrid.TorrentInfo) {
	m.mu.RLock()
	h, ok := m.health[info.ID]
	m.mu.RUnlock()

	if ok && h.State == Repairing {
		return
	}
	if ok && h.State == Healthy && time.Since(h.LastCheck) < 5*time.Minute {
		return
	}
	if len(info.Links) == 0 {
		return
	}

	indices := sampleIndices(len(info.Links))
	for _, idx := range indices {
		if err := m.client.CheckLink(ctx, info.Links[idx]); err != nil {
			m.MarkBroken(info.ID, info.Links[idx])
			return
		}
		time.Sleep(500 * time.Millisecond)
	}

	m.mu.Lock()
	m.health[info.ID] = &TorrentHealth{TorrentID: info.ID, State: Healthy, FailedLinks: map[string]struct{}{}, LastCheck: time.Now()}
	m.mu.Unlock()
}

// RepairByID fetches torrentID's current detail from Real-Debrid and
// attempts to repair it, for callers (the WebDAV read path) that only have
// an id and a dead link on hand, not the full TorrentInfo.
func (m *Manager) RepairByID(ctx context.Context, torrentID string) error {
	info, err := m.client.GetTorrentInfo(ctx, torrentID)
	if err != nil {
		return fmt.Errorf("fetching torrent info for repair: %w", err)
	}
	return m.RepairTorrent(ctx, info)
}

func sampleIndices(n int) []int {
	if n == 1 {
		return []int{0}
	}
	if n == 2 {
		return []int{0, 1}
	}
	return []int{0, n / 2, n - 1}
}
