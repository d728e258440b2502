package vfs

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"debridvfs/internal/debrid"
	"debridvfs/internal/identify"
	"debridvfs/internal/media"
	"debridvfs/pkg/logger"
)

// Entry pairs a torrent's detail with the Metadata the identifier assigned
// it; Build groups entries sharing equal Metadata into one VFS folder.
type Entry struct {
	Info     *debrid.TorrentInfo
	Metadata media.Metadata
}

// Build constructs a fresh VFS tree rooted with Movies/ and Shows/ always
// present, following a 9-step algorithm: group by Metadata equality, sort
// groups by (title, year, external id), sort each
// group's torrents by size descending, compute a sanitized folder name,
// keep only the largest torrent's files for a movie but every torrent's
// files (bucketed by season) for a show, and append an NFO file whenever a
// folder ends up with any children at all.
func Build(ctx context.Context, entries []Entry, client *debrid.Client) *Node {
	root := NewDirectory()
	movies := root.ensureDir("Movies")
	shows := root.ensureDir("Shows")

	groups := groupByMetadata(entries)
	sortGroups(groups)

	usedNames := map[media.Type]map[string]int{media.Movie: {}, media.Show: {}}

	for _, g := range groups {
		sort.SliceStable(g.entries, func(i, j int) bool {
			return g.entries[i].Info.Bytes > g.entries[j].Info.Bytes
		})

		folderName := folderNameFor(g.meta, usedNames[g.meta.MediaType])

		var parent *Node
		if g.meta.MediaType == media.Show {
			parent = shows
		} else {
			parent = movies
		}

		folder := NewDirectory()

		if g.meta.MediaType == media.Movie {
			if len(g.entries) > 0 {
				addTorrentFiles(ctx, folder, g.entries[0].Info, client)
			}
		} else {
			for _, e := range g.entries {
				addShowTorrentFiles(ctx, folder, e.Info, client)
			}
		}

		if len(folder.Children) > 0 {
			nfoName := "movie.nfo"
			if g.meta.MediaType == media.Show {
				nfoName = "tvshow.nfo"
			}
			folder.Children[nfoName] = &Node{Kind: VirtualFile, Content: generateNFO(g.meta)}
		} else {
			logger.Warn("skipping NFO for %q: no playable files found (archive-only or all files deselected)", g.meta.Title)
		}

		parent.Children[folderName] = folder
	}

	return root
}

type group struct {
	meta    media.Metadata
	entries []Entry
}

func groupByMetadata(entries []Entry) []*group {
	byKey := map[string]*group{}
	var order []string

	for _, e := range entries {
		k := e.Metadata.Key()
		g, ok := byKey[k]
		if !ok {
			g = &group{meta: e.Metadata}
			byKey[k] = g
			order = append(order, k)
		}
		g.entries = append(g.entries, e)
	}

	out := make([]*group, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

func sortGroups(groups []*group) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].meta, groups[j].meta
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		ay, by := yearOrZero(a.Year), yearOrZero(b.Year)
		if ay != by {
			return ay < by
		}
		return a.ExternalID < b.ExternalID
	})
}

func yearOrZero(y *int) int {
	if y == nil {
		return 0
	}
	return *y
}

func folderNameFor(meta media.Metadata, used map[string]int) string {
	base := sanitizeName(meta.Title)

	if meta.ExternalID != "" {
		source, id := splitExternalID(meta.ExternalID)
		return fmt.Sprintf("%s [%sid-%s]", base, source, id)
	}

	count := used[base]
	used[base] = count + 1
	if count == 0 {
		return base
	}
	return fmt.Sprintf("%s (%d)", base, count)
}

func sanitizeName(name string) string {
	r := strings.NewReplacer(`/`, "-", `\`, "-", `:`, "-", `*`, "", `?`, "", `"`, "", `<`, "", `>`, "", `|`, "-")
	return strings.TrimSpace(r.Replace(name))
}

// addTorrentFiles adds every selected video file from info into dir,
// resolving each through addPathToTree.
func addTorrentFiles(ctx context.Context, dir *Node, info *debrid.TorrentInfo, client *debrid.Client) {
	for i := range info.Files {
		f := &info.Files[i]
		if f.Selected != 1 || !media.IsVideoFile(f.Path) {
			continue
		}
		link := linkForFile(info, f.Path)
		if link == "" {
			continue
		}
		addPathToTree(ctx, dir, path.Base(f.Path), link, info.ID, client)
	}
}

// addShowTorrentFiles buckets a show torrent's files into Season NN
// subdirectories derived from each file's path.
func addShowTorrentFiles(ctx context.Context, dir *Node, info *debrid.TorrentInfo, client *debrid.Client) {
	for i := range info.Files {
		f := &info.Files[i]
		if f.Selected != 1 || !media.IsVideoFile(f.Path) {
			continue
		}
		link := linkForFile(info, f.Path)
		if link == "" {
			continue
		}

		season := identify.SeasonNumber(f.Path)
		seasonDir := dir.ensureDir(fmt.Sprintf("Season %02d", season))
		addPathToTree(ctx, seasonDir, path.Base(f.Path), link, info.ID, client)
	}
}

// linkForFile pairs a selected file with its hoster link by position: RD
// reports Links in the same order as the selected Files.
func linkForFile(info *debrid.TorrentInfo, filePath string) string {
	selectedIdx := 0
	for i := range info.Files {
		f := &info.Files[i]
		if f.Selected != 1 {
			continue
		}
		if f.Path == filePath {
			if selectedIdx < len(info.Links) {
				return info.Links[selectedIdx]
			}
			return ""
		}
		selectedIdx++
	}
	return ""
}

// addPathToTree eagerly unrestricts link and, on success, inserts a
// StreamFile node named after baseName's stem with a ".strm" extension,
// de-conflicting against any existing sibling of the same name. On
// failure it logs a warning and inserts nothing at all — there is no
// error-placeholder file.
func addPathToTree(ctx context.Context, dir *Node, baseName, link, torrentID string, client *debrid.Client) {
	dl, err := client.UnrestrictLink(ctx, link)
	if err != nil {
		logger.Warn("skipping %q: unrestrict failed: %v", baseName, err)
		return
	}

	name := strmName(baseName, dir.Children)
	dir.Children[name] = &Node{
		Kind:       StreamFile,
		Payload:    PadPayload(dl.Download),
		OriginLink: link,
		TorrentID:  torrentID,
	}
}

func strmName(baseName string, siblings map[string]*Node) string {
	stem := strings.TrimSuffix(baseName, path.Ext(baseName))
	stem = sanitizeName(stem)
	name := stem + ".strm"
	for i := 1; ; i++ {
		if _, exists := siblings[name]; !exists {
			return name
		}
		name = fmt.Sprintf("%s (%d).strm", stem, i)
	}
}
