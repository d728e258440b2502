// Package identify guesses a Metadata (title/year/type/external id) for a
// torrent by cleaning its name and disambiguating candidates from TMDB.
package identify

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"debridvfs/internal/debrid"
	"debridvfs/internal/media"
)

// IdentifyName cleans rawName, searches TMDB for both movie and TV
// candidates, and returns the best-scoring match. A short (<=3 char)
// normalized title is only trusted when a candidate matches both title and
// year exactly — short titles are too ambiguous otherwise.
func IdentifyName(ctx context.Context, tmdb *TmdbClient, rawName string, videoFileCount int) *media.Metadata {
	title, year := CleanName(rawName)
	if IsGenericTitle(title) {
		return nil
	}

	isShow := IsShowGuess(rawName, videoFileCount)
	normalized := NormalizeTitle(title)
	if normalized == "" {
		return nil
	}

	candidates := searchBoth(ctx, tmdb, title, year)

	if len(candidates) == 0 {
		split := CamelCaseSplit(title)
		if split != title {
			candidates = searchBoth(ctx, tmdb, split, year)
		}
	}

	if len(candidates) > 0 && year != nil {
		hasExact := false
		for _, c := range candidates {
			if NormalizeTitle(c.result.DisplayTitle()) == normalized || NormalizeTitle(c.result.DisplayOriginalTitle()) == normalized {
				hasExact = true
				break
			}
		}
		if !hasExact {
			candidates = append(candidates, searchBoth(ctx, tmdb, title, nil)...)
		}
	}

	if len(normalized) <= 3 {
		var filtered []candidate
		for _, c := range candidates {
			resultYear, hasYear := parseYear(c.result.Date())
			exactYear := year != nil && hasYear && resultYear == *year
			exactTitle := NormalizeTitle(c.result.DisplayTitle()) == normalized || NormalizeTitle(c.result.DisplayOriginalTitle()) == normalized
			if exactTitle && exactYear {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	best := selectBestMatch(candidates, normalized, year, isShow)
	if best == nil {
		return nil
	}

	meta := media.Metadata{
		Title:      best.result.DisplayTitle(),
		Year:       year,
		MediaType:  best.mediaType,
		ExternalID: "tmdb:" + strconv.Itoa(best.result.ID),
	}
	if resultYear, ok := parseYear(best.result.Date()); ok {
		meta.Year = &resultYear
	}
	return &meta
}

func searchBoth(ctx context.Context, tmdb *TmdbClient, query string, year *int) []candidate {
	var out []candidate
	for _, r := range tmdb.SearchTV(ctx, query, year) {
		out = append(out, candidate{result: r, mediaType: media.Show})
	}
	for _, r := range tmdb.SearchMovie(ctx, query, year) {
		out = append(out, candidate{result: r, mediaType: media.Movie})
	}
	return out
}

// IdentifyTorrent runs the outer fallback chain: try the representative
// (largest) video file's name first, then the torrent's own filename, and
// finally fall back to a cleaned-but-unresolved Metadata built straight
// from the torrent's name with no external id, so every torrent gets a
// folder even when TMDB has nothing for it.
func IdentifyTorrent(ctx context.Context, tmdb *TmdbClient, info *debrid.TorrentInfo) media.Metadata {
	videoCount := 0
	var largest *debrid.TorrentFile
	for i := range info.Files {
		f := &info.Files[i]
		if f.Selected != 1 || !media.IsVideoFile(f.Path) {
			continue
		}
		videoCount++
		if largest == nil || f.Bytes > largest.Bytes {
			largest = f
		}
	}

	if largest != nil {
		if meta := IdentifyName(ctx, tmdb, path.Base(largest.Path), videoCount); meta != nil {
			return *meta
		}
	}

	if meta := IdentifyName(ctx, tmdb, info.Filename, videoCount); meta != nil {
		return *meta
	}

	title, year := CleanName(info.Filename)
	if title == "" {
		title = fmt.Sprintf("Unknown (%s)", info.ID)
	}
	mediaType := media.Movie
	if IsShowGuess(info.Filename, videoCount) {
		mediaType = media.Show
	}
	return media.Metadata{Title: title, Year: year, MediaType: mediaType}
}
