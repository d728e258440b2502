package identify

import (
	"math"
	"strconv"
	"time"

	"debridvfs/internal/media"
)

type candidate struct {
	result    SearchResult
	mediaType media.Type
}

// scoreResult ranks how well a TMDB result matches the query title/year.
// Weights mirror the original identification engine's scoring table:
// an exact normalized-title match dominates (+1000), a substring match is
// a weaker signal (+100), vote count and vote average contribute a
// log-scaled popularity term, a year match is worth more than a ±1-year
// near miss, and an unscored-by-year query instead gets a recency bonus.
func scoreResult(r SearchResult, queryNormalized string, queryYear *int) float64 {
	var score float64

	title := NormalizeTitle(r.DisplayTitle())
	original := NormalizeTitle(r.DisplayOriginalTitle())

	switch {
	case title == queryNormalized || original == queryNormalized:
		score += 1000
	case contains(title, queryNormalized) || contains(original, queryNormalized):
		score += 100
	}

	if r.VoteCount >= 10 {
		logVotes := math.Log10(float64(r.VoteCount))
		score += r.VoteAverage * math.Min(15, 5*logVotes)
		score += 30 * logVotes
	}

	resultYear, hasYear := parseYear(r.Date())

	if queryYear != nil && hasYear {
		diff := *queryYear - resultYear
		if diff < 0 {
			diff = -diff
		}
		switch diff {
		case 0:
			score += 200
		case 1:
			score += 150
		}
	} else if queryYear == nil && hasYear {
		age := time.Now().Year() - resultYear
		bonus := 80 - 8*age
		if bonus > 0 {
			score += float64(bonus)
		}
	}

	score += r.Popularity
	return score
}

func contains(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

func parseYear(date string) (int, bool) {
	if len(date) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0, false
	}
	return y, true
}

// selectBestMatch implements the disambiguation ladder: an exact title AND
// year match wins outright and beats the other media type's exact+year
// match; failing that, a candidate whose type matches the show/movie guess
// and whose year matches wins; failing that, prefer any exact-title match,
// then any year match, then fall back to the show/movie guess as a final
// tiebreaker; the highest score within the winning tier is returned.
func selectBestMatch(candidates []candidate, queryNormalized string, queryYear *int, isShowGuess bool) *candidate {
	if len(candidates) == 0 {
		return nil
	}

	type scored struct {
		c            candidate
		score        float64
		exactTitle   bool
		exactYear    bool
		typeMatches  bool
	}

	var scoredList []scored
	for _, c := range candidates {
		title := NormalizeTitle(c.result.DisplayTitle())
		original := NormalizeTitle(c.result.DisplayOriginalTitle())
		exactTitle := title == queryNormalized || original == queryNormalized

		resultYear, hasYear := parseYear(c.result.Date())
		exactYear := queryYear != nil && hasYear && resultYear == *queryYear

		wantShow := c.mediaType == media.Show
		typeMatches := wantShow == isShowGuess

		scoredList = append(scoredList, scored{
			c:           c,
			score:       scoreResult(c.result, queryNormalized, queryYear),
			exactTitle:  exactTitle,
			exactYear:   exactYear,
			typeMatches: typeMatches,
		})
	}

	tier := func(s scored) int {
		switch {
		case s.exactTitle && s.exactYear:
			return 5
		case s.typeMatches && s.exactYear:
			return 4
		case s.exactTitle:
			return 3
		case s.exactYear:
			return 2
		case s.typeMatches:
			return 1
		default:
			return 0
		}
	}

	best := -1
	bestTier := -1
	var bestScore float64
	for i, s := range scoredList {
		t := tier(s)
		if t > bestTier || (t == bestTier && s.score > bestScore) {
			best = i
			bestTier = t
			bestScore = s.score
		}
	}

	if best < 0 {
		return nil
	}
	return &scoredList[best].c
}
