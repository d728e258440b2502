package store

import (
	"path/filepath"
	"testing"

	"debridvfs/internal/debrid"
	"debridvfs/internal/media"
)

func TestUpsertGetRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	year := 2010
	m := Match{
		TorrentID: "t1",
		Info:      debrid.TorrentInfo{ID: "t1", Filename: "Inception.mkv", Bytes: 123},
		Metadata:  media.Metadata{Title: "Inception", Year: &year, MediaType: media.Movie, ExternalID: "tmdb:27205"},
	}

	if err := s.Upsert(m); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Get("t1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected match to be found")
	}
	if got.Info.Filename != "Inception.mkv" || got.Metadata.Title != "Inception" {
		t.Fatalf("unexpected round-trip: %+v", got)
	}
	if got.Metadata.Year == nil || *got.Metadata.Year != 2010 {
		t.Fatalf("expected year 2010, got %v", got.Metadata.Year)
	}
}

func TestUpsertOverwritesExistingRow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_ = s.Upsert(Match{TorrentID: "t1", Info: debrid.TorrentInfo{ID: "t1", Filename: "old.mkv"}, Metadata: media.Metadata{Title: "Old"}})
	_ = s.Upsert(Match{TorrentID: "t1", Info: debrid.TorrentInfo{ID: "t1", Filename: "new.mkv"}, Metadata: media.Metadata{Title: "New"}})

	got, _, err := s.Get("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Metadata.Title != "New" {
		t.Fatalf("expected overwritten row, got %q", got.Metadata.Title)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 row after overwrite, got %d", n)
	}
}

func TestHasAndDelete(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if has, _ := s.Has("missing"); has {
		t.Fatal("expected missing id to not be present")
	}

	_ = s.Upsert(Match{TorrentID: "t1", Info: debrid.TorrentInfo{ID: "t1"}, Metadata: media.Metadata{Title: "X"}})
	if has, _ := s.Has("t1"); !has {
		t.Fatal("expected t1 to be present after upsert")
	}

	if err := s.Delete("t1"); err != nil {
		t.Fatal(err)
	}
	if has, _ := s.Has("t1"); has {
		t.Fatal("expected t1 to be gone after delete")
	}
}

func TestAllIDsReflectsAllRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_ = s.Upsert(Match{TorrentID: "a", Info: debrid.TorrentInfo{ID: "a"}, Metadata: media.Metadata{Title: "A"}})
	_ = s.Upsert(Match{TorrentID: "b", Info: debrid.TorrentInfo{ID: "b"}, Metadata: media.Metadata{Title: "B"}})

	ids, err := s.AllIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
}
