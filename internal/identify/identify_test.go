package identify

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestCleanNameStripsQualityTags(t *testing.T) {
	title, year := CleanName("The.Matrix.1999.1080p.BluRay.x264-GROUP.mkv")
	if title != "The Matrix" {
		t.Fatalf("expected %q, got %q", "The Matrix", title)
	}
	if year == nil || *year != 1999 {
		t.Fatalf("expected year 1999, got %v", year)
	}
}

func TestCleanNameKeepsYearRangeIntact(t *testing.T) {
	title, _ := CleanName("Peaky.Blinders.2013-2022.COMPLETE.1080p")
	if title == "" {
		t.Fatalf("expected non-empty title for a year-range name, got %q", title)
	}
	if !strings.Contains(title, "2013-2022") {
		t.Fatalf("expected the year range to stay in the title, got %q", title)
	}
}

func TestIsShowGuessBySeasonEpisodeMarker(t *testing.T) {
	if !IsShowGuess("Peaky.Blinders.S01E05.Episode.5.mkv", 1) {
		t.Fatal("expected SxxEyy marker to guess show")
	}
}

func TestIsShowGuessByMultipleVideoFiles(t *testing.T) {
	if !IsShowGuess("Random Release Name", 3) {
		t.Fatal("expected >1 video files to guess show")
	}
	if IsShowGuess("Random Release Name", 1) {
		t.Fatal("expected a single video file not to guess show")
	}
}

func TestNormalizeTitleFoldsDiacriticsAndFilters(t *testing.T) {
	got := NormalizeTitle("Amélie & Co.")
	if got != "amelieco" {
		t.Fatalf("expected %q, got %q", "amelieco", got)
	}
}

func TestIsGenericTitleRejectsPureDigitsAndKnownWords(t *testing.T) {
	cases := []struct {
		in     string
		generic bool
	}{
		{"", true},
		{"12345", true},
		{"7", true},
		{"Inception", false},
		{"video", true},
	}
	for _, c := range cases {
		if got := IsGenericTitle(c.in); got != c.generic {
			t.Errorf("IsGenericTitle(%q) = %v, want %v", c.in, got, c.generic)
		}
	}
}

func TestSelectBestMatchPrefersExactTitleAndYear(t *testing.T) {
	year2010 := 2010
	candidates := []candidate{
		{result: SearchResult{ID: 1, Title: "Inception", ReleaseDate: "2010-07-16", VoteCount: 20000, VoteAverage: 8.4, Popularity: 90}, mediaType: "movie"},
		{result: SearchResult{ID: 2, Title: "Inception 2", ReleaseDate: "2010-07-16", VoteCount: 5, VoteAverage: 5, Popularity: 10}, mediaType: "movie"},
	}
	best := selectBestMatch(candidates, NormalizeTitle("Inception"), &year2010, false)
	if best == nil || best.result.ID != 1 {
		t.Fatalf("expected candidate 1 to win, got %+v", best)
	}
}

func TestShortTitleRequiresExactTitleAndYear(t *testing.T) {
	// "UC" is a 2-char normalized title; the only candidate TMDB returns
	// matches neither title nor year exactly, so no candidate should be
	// selected at all.
	tmdb := newTestTmdbClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":1,"title":"UC Berkeley Story","release_date":"1999-01-01"}]}`))
	})
	best := IdentifyName(context.Background(), tmdb, "UC", 1)
	if best != nil {
		t.Fatalf("expected no match for an under-filled short title query, got %+v", best)
	}
}
