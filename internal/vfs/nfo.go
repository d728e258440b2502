package vfs

import (
	"fmt"
	"strings"

	"debridvfs/internal/media"
)

// nfoSource identifies this module in the <source> tag.
const nfoSource = "debridvfs"

// generateNFO renders the movie.nfo / tvshow.nfo XML body for a Metadata
// grouping: title/originaltitle duplicated, year + premiered date when
// known, a uniqueid + (for tmdb) tmdbid/url block when an external id is
// known, and a fixed lockdata/source footer.
func generateNFO(meta media.Metadata) []byte {
	root := "movie"
	if meta.MediaType == media.Show {
		root = "tvshow"
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n")
	fmt.Fprintf(&b, "<%s>\n", root)
	fmt.Fprintf(&b, "  <title>%s</title>\n", xmlEscape(meta.Title))
	fmt.Fprintf(&b, "  <originaltitle>%s</originaltitle>\n", xmlEscape(meta.Title))

	if meta.Year != nil {
		fmt.Fprintf(&b, "  <year>%d</year>\n", *meta.Year)
		fmt.Fprintf(&b, "  <premiered>%d-01-01</premiered>\n", *meta.Year)
	}

	if meta.ExternalID != "" {
		source, id := splitExternalID(meta.ExternalID)
		fmt.Fprintf(&b, "  <uniqueid type=\"%s\" default=\"true\">%s</uniqueid>\n", xmlEscape(source), xmlEscape(id))
		if source == "tmdb" {
			fmt.Fprintf(&b, "  <tmdbid>%s</tmdbid>\n", xmlEscape(id))
			mediaPath := "movie"
			if meta.MediaType == media.Show {
				mediaPath = "tv"
			}
			fmt.Fprintf(&b, "  <url>https://www.themoviedb.org/%s/%s</url>\n", mediaPath, xmlEscape(id))
		}
	}

	b.WriteString("  <lockdata>false</lockdata>\n")
	fmt.Fprintf(&b, "  <source>%s</source>\n", nfoSource)
	fmt.Fprintf(&b, "</%s>\n", root)

	return []byte(b.String())
}

func splitExternalID(id string) (source, value string) {
	if idx := strings.Index(id, ":"); idx >= 0 {
		return id[:idx], id[idx+1:]
	}
	return "", id
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
