// Package webdavfs adapts an internal/vfs.Node tree into a read-only
// golang.org/x/net/webdav.FileSystem backed entirely by in-memory nodes
// instead of a real directory.
package webdavfs

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/webdav"

	"debridvfs/internal/debrid"
	"debridvfs/internal/repair"
	"debridvfs/internal/vfs"
	"debridvfs/pkg/logger"
)

// repairTimeout bounds a background repair triggered by a failed live read;
// the HTTP request that discovered the failure is long gone by the time
// repair finishes.
const repairTimeout = 2 * time.Minute

// FileSystem serves an in-memory VFS tree over WebDAV. All write
// operations return os.ErrPermission; the only supported opens are
// read-only. client and repairMgr may be nil (as in tests), in which case
// StreamFile reads serve the stored build-time payload with no live
// re-resolution or hiding.
type FileSystem struct {
	mu        sync.RWMutex
	root      *vfs.Node
	client    *debrid.Client
	repairMgr *repair.Manager
}

// New constructs a FileSystem rooted at root, resolving StreamFile reads
// through client and consulting repairMgr to hide broken torrents.
func New(root *vfs.Node, client *debrid.Client, repairMgr *repair.Manager) *FileSystem {
	return &FileSystem{root: root, client: client, repairMgr: repairMgr}
}

func (fs *FileSystem) shouldHide(node *vfs.Node) bool {
	return node.Kind == vfs.StreamFile && fs.repairMgr != nil && fs.repairMgr.ShouldHide(node.TorrentID)
}

// Swap atomically replaces the served tree, used by the reconciliation
// loop after each rebuild.
func (fs *FileSystem) Swap(root *vfs.Node) {
	fs.mu.Lock()
	fs.root = root
	fs.mu.Unlock()
}

func (fs *FileSystem) snapshot() *vfs.Node {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.root
}

func segments(name string) []string {
	trimmed := strings.Trim(path.Clean("/"+name), "/")
	if trimmed == "" || trimmed == "." {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func (fs *FileSystem) lookup(name string) *vfs.Node {
	return fs.snapshot().Lookup(segments(name))
}

// Mkdir always refuses: the tree is built by reconciliation, not by
// WebDAV clients.
func (fs *FileSystem) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission
}

// RemoveAll always refuses.
func (fs *FileSystem) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission
}

// Rename always refuses.
func (fs *FileSystem) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission
}

// OpenFile opens name read-only. Any write-capable flag (O_WRONLY,
// O_RDWR, O_CREATE, O_APPEND, O_TRUNC) is refused. A StreamFile hidden by
// the repair manager is reported as not existing; otherwise its origin
// link is resolved again through the client's unrestrict cache on every
// open.
func (fs *FileSystem) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_APPEND|os.O_TRUNC) != 0 {
		return nil, os.ErrPermission
	}

	node := fs.lookup(name)
	if node == nil {
		return nil, os.ErrNotExist
	}
	if fs.shouldHide(node) {
		return nil, os.ErrNotExist
	}

	var content []byte
	switch node.Kind {
	case vfs.StreamFile:
		c, err := fs.resolveStreamContent(ctx, node)
		if err != nil {
			return nil, err
		}
		content = c
	case vfs.VirtualFile:
		content = node.Content
	}

	return &openFile{node: node, content: content, name: path.Base(strings.TrimRight(name, "/"))}, nil
}

// resolveStreamContent resolves node's origin link through
// client.UnrestrictLink and re-pads the result to the fixed payload size.
// UnrestrictLink serves a cached result for up to an hour, so within that
// window an open returns the same URL the build stored; after it, a new
// direct link is fetched. client is nil only in tests, where the stored
// payload is served directly. On failure the torrent is marked broken and a repair is
// triggered in the background, since the request context will be gone
// long before repair finishes.
func (fs *FileSystem) resolveStreamContent(ctx context.Context, node *vfs.Node) ([]byte, error) {
	if fs.client == nil {
		return node.Payload, nil
	}

	dl, err := fs.client.UnrestrictLink(ctx, node.OriginLink)
	if err != nil {
		logger.Warn("webdavfs: re-unrestrict failed for torrent %s: %v", node.TorrentID, err)
		if fs.repairMgr != nil {
			fs.repairMgr.MarkBroken(node.TorrentID, node.OriginLink)
			torrentID := node.TorrentID
			go func() {
				repairCtx, cancel := context.WithTimeout(context.Background(), repairTimeout)
				defer cancel()
				if err := fs.repairMgr.RepairByID(repairCtx, torrentID); err != nil {
					logger.Warn("webdavfs: background repair for torrent %s failed: %v", torrentID, err)
				}
			}()
		}
		return nil, os.ErrNotExist
	}

	return vfs.PadPayload(dl.Download), nil
}

// Stat returns metadata for name.
func (fs *FileSystem) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	node := fs.lookup(name)
	if node == nil {
		return nil, os.ErrNotExist
	}
	if fs.shouldHide(node) {
		return nil, os.ErrNotExist
	}
	return fileInfo{name: path.Base(strings.TrimRight(name, "/")), node: node}, nil
}

// openFile is the webdav.File returned for a read-only open; it satisfies
// io.Writer only to match the interface, always failing writes. content is
// resolved once at open time by OpenFile.
type openFile struct {
	node    *vfs.Node
	content []byte
	name    string
	offset  int64
}

func (f *openFile) Read(p []byte) (int, error) {
	if f.node.Kind == vfs.Directory {
		return 0, os.ErrInvalid
	}
	if f.offset >= int64(len(f.content)) {
		return 0, io.EOF
	}
	n := copy(p, f.content[f.offset:])
	f.offset += int64(n)
	return n, nil
}

func (f *openFile) Write(p []byte) (int, error) {
	return 0, os.ErrPermission
}

func (f *openFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.offset
	case io.SeekEnd:
		base = int64(len(f.content))
	}
	newOffset := base + offset
	if newOffset < 0 {
		return 0, os.ErrInvalid
	}
	f.offset = newOffset
	return f.offset, nil
}

func (f *openFile) Close() error { return nil }

func (f *openFile) Stat() (os.FileInfo, error) {
	return fileInfo{name: f.name, node: f.node}, nil
}

func (f *openFile) Readdir(count int) ([]os.FileInfo, error) {
	if f.node.Kind != vfs.Directory {
		return nil, os.ErrInvalid
	}

	names := f.node.SortedChildNames()
	infos := make([]os.FileInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, fileInfo{name: n, node: f.node.Children[n]})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	if count <= 0 || count > len(infos) {
		return infos, nil
	}
	return infos[:count], nil
}

// fileInfo implements os.FileInfo over a vfs.Node.
type fileInfo struct {
	name string
	node *vfs.Node
}

func (fi fileInfo) Name() string { return fi.name }

func (fi fileInfo) Size() int64 {
	switch fi.node.Kind {
	case vfs.StreamFile:
		return int64(len(fi.node.Payload))
	case vfs.VirtualFile:
		return int64(len(fi.node.Content))
	default:
		return 0
	}
}

func (fi fileInfo) Mode() os.FileMode {
	if fi.node.Kind == vfs.Directory {
		return os.ModeDir | 0555
	}
	return 0444
}

// ModTime reports the current wall-clock time for every node: stream-file
// metadata always reports "now".
func (fi fileInfo) ModTime() time.Time { return time.Now() }

func (fi fileInfo) IsDir() bool { return fi.node.Kind == vfs.Directory }

func (fi fileInfo) Sys() any { return nil }
