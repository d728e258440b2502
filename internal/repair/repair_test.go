package repair

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"debridvfs/internal/debrid"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *debrid.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := debrid.NewClient("tok")
	if err != nil {
		t.Fatal(err)
	}
	c.SetBaseURLForTest(srv.URL)
	return c
}

func TestMarkBrokenThenShouldHide(t *testing.T) {
	m := New(nil)
	if m.ShouldHide("t1") {
		t.Fatal("unknown torrent should not be hidden")
	}

	m.MarkBroken("t1", "https://host/dead")
	if !m.ShouldHide("t1") {
		t.Fatal("broken torrent should be hidden")
	}

	snap := m.Snapshot()
	if snap["t1"].State != Broken {
		t.Fatalf("expected Broken, got %v", snap["t1"].State)
	}
}

func TestRepairTorrentFailsThriceThenPermanentlyFailed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(debrid.ErrorResponse{Error: "boom"})
	})
	m := New(client)

	original := &debrid.TorrentInfo{ID: "orig", Hash: "abc123", Files: []debrid.TorrentFile{{ID: 1, Path: "/a.mkv", Selected: 1}}}
	m.MarkBroken(original.ID, "https://host/dead")

	for i := 0; i < maxRepairAttempts; i++ {
		h := m.Snapshot()[original.ID]
		h.LastRepairTrigger = h.LastRepairTrigger.Add(-repairCooldown - 1)
		m.mu.Lock()
		m.health[original.ID].LastRepairTrigger = h.LastRepairTrigger
		m.mu.Unlock()

		if err := m.RepairTorrent(context.Background(), original); err == nil {
			t.Fatalf("attempt %d: expected repair to fail against a failing server", i)
		}
	}

	snap := m.Snapshot()
	if snap[original.ID].State != Failed {
		t.Fatalf("expected Failed after %d attempts, got %v", maxRepairAttempts, snap[original.ID].State)
	}

	h := m.Snapshot()[original.ID]
	h.LastRepairTrigger = h.LastRepairTrigger.Add(-repairCooldown - 1)
	m.mu.Lock()
	m.health[original.ID].LastRepairTrigger = h.LastRepairTrigger
	m.mu.Unlock()

	if err := m.RepairTorrent(context.Background(), original); err == nil {
		t.Fatal("expected a permanently-failed torrent to refuse further repair attempts")
	}
}

func TestRepairTorrentSucceedsThenRefusesRetryWithinCooldown(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/torrents/addMagnet":
			_ = json.NewEncoder(w).Encode(debrid.AddMagnetResponse{ID: "new1"})
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(debrid.TorrentInfo{
				ID:    "new1",
				Hash:  "abc123",
				Files: []debrid.TorrentFile{{ID: 9, Path: "/a.mkv", Selected: 1}},
			})
		case r.URL.Path == "/torrents/selectFiles/new1":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	m := New(client)
	original := &debrid.TorrentInfo{ID: "orig", Hash: "abc123", Files: []debrid.TorrentFile{{ID: 1, Path: "/a.mkv", Selected: 1}}}
	m.MarkBroken(original.ID, "https://host/dead")

	if err := m.RepairTorrent(context.Background(), original); err != nil {
		t.Fatalf("expected repair to succeed, got %v", err)
	}

	snap := m.Snapshot()
	if _, stillPresent := snap[original.ID]; stillPresent {
		t.Fatal("expected health entry to move off the old torrent id")
	}
	if snap["new1"].State != Healthy {
		t.Fatalf("expected new torrent id to be Healthy, got %v", snap["new1"].State)
	}

	m.mu.Lock()
	m.health["new1"].State = Broken
	m.health["new1"].LastRepairTrigger = time.Now()
	m.mu.Unlock()

	if err := m.RepairTorrent(context.Background(), &debrid.TorrentInfo{ID: "new1", Hash: "abc123"}); err == nil {
		t.Fatal("expected a repair attempted within the cooldown window to be refused")
	}
}
