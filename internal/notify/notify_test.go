package notify

import (
	"testing"

	"debridvfs/internal/vfs"
)

func TestBuildRequestBodySingleCreated(t *testing.T) {
	c := New("http://jellyfin:8096", "test-key", "/mnt/debrid")
	changes := []vfs.Change{{Path: "Shows/Breaking Bad/Season 03", Type: vfs.Created}}

	body := c.buildRequestBody(changes)
	if len(body.Updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(body.Updates))
	}
	if body.Updates[0].Path != "/mnt/debrid/Shows/Breaking Bad/Season 03" {
		t.Fatalf("unexpected path: %q", body.Updates[0].Path)
	}
	if body.Updates[0].UpdateType != "Created" {
		t.Fatalf("unexpected update type: %q", body.Updates[0].UpdateType)
	}
}

func TestBuildRequestBodyMultipleChanges(t *testing.T) {
	c := New("http://jellyfin:8096", "test-key", "/mnt/debrid")
	changes := []vfs.Change{
		{Path: "Movies/Old Movie", Type: vfs.Deleted},
		{Path: "Movies/New Movie", Type: vfs.Created},
		{Path: "Shows/Breaking Bad/Season 01", Type: vfs.Modified},
	}

	body := c.buildRequestBody(changes)
	if len(body.Updates) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(body.Updates))
	}
	if body.Updates[0].UpdateType != "Deleted" {
		t.Fatalf("expected first update Deleted, got %q", body.Updates[0].UpdateType)
	}
	if body.Updates[1].UpdateType != "Created" {
		t.Fatalf("expected second update Created, got %q", body.Updates[1].UpdateType)
	}
	if body.Updates[2].Path != "/mnt/debrid/Shows/Breaking Bad/Season 01" {
		t.Fatalf("unexpected third path: %q", body.Updates[2].Path)
	}
}

func TestBuildRequestBodyTrimsTrailingSlashes(t *testing.T) {
	c := New("http://jellyfin:8096/", "test-key", "/mnt/debrid/")
	changes := []vfs.Change{{Path: "Movies/Test", Type: vfs.Created}}

	body := c.buildRequestBody(changes)
	if body.Updates[0].Path != "/mnt/debrid/Movies/Test" {
		t.Fatalf("unexpected path after trimming: %q", body.Updates[0].Path)
	}
}

func TestBuildRequestBodyEmptyChanges(t *testing.T) {
	c := New("http://jellyfin:8096", "test-key", "/mnt/debrid")
	body := c.buildRequestBody(nil)
	if len(body.Updates) != 0 {
		t.Fatalf("expected no updates, got %d", len(body.Updates))
	}
}
