package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"debridvfs/internal/debrid"
	"debridvfs/internal/identify"
	"debridvfs/internal/repair"
	"debridvfs/internal/store"
)

func newTestRDClient(t *testing.T, handler http.HandlerFunc) *debrid.Client {
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

func TestRunOnceIdentifiesNewTorrentAndPersists(t *testing.T) {
	rd := newTestRDClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/torrents":
			_ = json.NewEncoder(w).Encode([]debrid.TorrentSummary{{ID: "t1", Filename: "Movie.2020", Status: "downloaded"}})
		case r.URL.Path == "/torrents/info/t1":
			_ = json.NewEncoder(w).Encode(debrid.TorrentInfo{
				ID:       "t1",
				Filename: "Movie.2020",
				Status:   "downloaded",
				Files:    []debrid.TorrentFile{{ID: 1, Path: "/Movie.2020.mkv", Selected: 1}},
				Links:    []string{"https://host/link"},
			})
		case r.URL.Path == "/unrestrict/link":
			_ = json.NewEncoder(w).Encode(debrid.DownloadLink{Download: "https://cdn.example.com/x"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	tmdbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer tmdbSrv.Close()
	tmdb := identify.NewTmdbClient("key")
	tmdb.SetBaseURLForTest(tmdbSrv.URL)

	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	repairMgr := repair.New(rd)

	l := New(rd, tmdb, st, repairMgr, nil, nil, 1, time.Hour)
	l.runOnce(context.Background())

	count, err := st.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 persisted match, got %d", count)
	}

	l.mu.Lock()
	_, seen := l.seenMatches["t1"]
	l.mu.Unlock()
	if !seen {
		t.Fatal("expected t1 to be tracked as seen")
	}
}

func TestRunOncePurgesMatchesForVanishedTorrents(t *testing.T) {
	rd := newTestRDClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/torrents" {
			_ = json.NewEncoder(w).Encode([]debrid.TorrentSummary{})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	_ = st.Upsert(store.Match{TorrentID: "gone", Info: debrid.TorrentInfo{ID: "gone"}})

	l := New(rd, identify.NewTmdbClient("key"), st, repair.New(rd), nil, nil, 1, time.Hour)
	l.hydrateFromStore()
	l.runOnce(context.Background())

	has, err := st.Has("gone")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Fatal("expected vanished torrent's match to be purged from the store")
	}
}
