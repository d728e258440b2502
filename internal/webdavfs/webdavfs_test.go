package webdavfs

import (
	"context"
	"io"
	"os"
	"testing"

	"debridvfs/internal/vfs"
)

func fixedPayload(url string) []byte {
	buf := make([]byte, 1024)
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf, []byte(url+"\n"))
	return buf
}

func buildTestTree() *vfs.Node {
	root := vfs.NewDirectory()
	movies := vfs.NewDirectory()
	movie := vfs.NewDirectory()
	movie.Children["Movie.strm"] = &vfs.Node{Kind: vfs.StreamFile, Payload: fixedPayload("https://cdn.example.com/x"), OriginLink: "https://host/x", TorrentID: "t1"}
	movie.Children["movie.nfo"] = &vfs.Node{Kind: vfs.VirtualFile, Content: []byte("<movie></movie>")}
	movies.Children["Test Movie [tmdbid-1]"] = movie
	root.Children["Movies"] = movies
	return root
}

func TestStatDirectoryAndFile(t *testing.T) {
	fs := New(buildTestTree(), nil, nil)

	info, err := fs.Stat(context.Background(), "/Movies/Test Movie [tmdbid-1]")
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory")
	}

	finfo, err := fs.Stat(context.Background(), "/Movies/Test Movie [tmdbid-1]/Movie.strm")
	if err != nil {
		t.Fatal(err)
	}
	if finfo.IsDir() {
		t.Fatal("expected file, not directory")
	}
	if finfo.Size() != 1024 {
		t.Fatalf("expected 1024-byte metadata size (includes padding), got %d", finfo.Size())
	}
}

func TestOpenFileReadMatchesMetadataLength(t *testing.T) {
	fs := New(buildTestTree(), nil, nil)

	f, err := fs.OpenFile(context.Background(), "/Movies/Test Movie [tmdbid-1]/Movie.strm", os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1024 {
		t.Fatalf("expected a full 1024-byte read, got %d bytes", len(data))
	}
}

func TestOpenFileRefusesWriteFlags(t *testing.T) {
	fs := New(buildTestTree(), nil, nil)
	_, err := fs.OpenFile(context.Background(), "/Movies/Test Movie [tmdbid-1]/Movie.strm", os.O_RDWR, 0)
	if err != os.ErrPermission {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
}

func TestMkdirRemoveAllRenameAllRefuse(t *testing.T) {
	fs := New(buildTestTree(), nil, nil)
	ctx := context.Background()

	if err := fs.Mkdir(ctx, "/NewDir", 0755); err != os.ErrPermission {
		t.Fatalf("expected ErrPermission from Mkdir, got %v", err)
	}
	if err := fs.RemoveAll(ctx, "/Movies"); err != os.ErrPermission {
		t.Fatalf("expected ErrPermission from RemoveAll, got %v", err)
	}
	if err := fs.Rename(ctx, "/Movies", "/MoviesRenamed"); err != os.ErrPermission {
		t.Fatalf("expected ErrPermission from Rename, got %v", err)
	}
}

func TestReaddirListsDirectoryChildren(t *testing.T) {
	fs := New(buildTestTree(), nil, nil)
	f, err := fs.OpenFile(context.Background(), "/Movies/Test Movie [tmdbid-1]", os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	infos, err := f.Readdir(-1)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(infos))
	}
}

func TestStatMissingPathReturnsNotExist(t *testing.T) {
	fs := New(buildTestTree(), nil, nil)
	_, err := fs.Stat(context.Background(), "/Missing")
	if !os.IsNotExist(err) {
		t.Fatalf("expected IsNotExist, got %v", err)
	}
}
