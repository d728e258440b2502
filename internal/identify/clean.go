package identify

import (
	"path/filepath"
	"strconv"
	"strings"
)

// CleanName reduces a raw release/file name down to a best-guess title and
// an optional year, following an 8-step pipeline: strip the extension, strip
// a leading bracketed release-group prefix, normalize separators to spaces,
// drop an "aka" alternate-title tail, pull out a year, iteratively strip
// trailing quality/source/codec stop words, truncate at the year unless it
// is part of a year range, and finally trim any trailing punctuation.
func CleanName(raw string) (title string, year *int) {
	name := raw
	if ext := filepath.Ext(name); ext != "" && len(ext) <= 5 {
		name = strings.TrimSuffix(name, ext)
	}

	name = prefixRE.ReplaceAllString(name, "")

	name = strings.NewReplacer(".", " ", "_", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")

	if idx := indexOfAka(name); idx >= 0 {
		name = strings.TrimSpace(name[:idx])
	}

	isRange := yearRangeRE.MatchString(name)
	var yearStr string
	if loc := yearRE.FindStringIndex(name); loc != nil {
		yearStr = name[loc[0]:loc[1]]
	}

	name = stripStopWords(name)

	if yearStr != "" && !isRange {
		if idx := strings.Index(name, yearStr); idx >= 0 {
			name = name[:idx]
		}
	}

	name = strings.TrimRight(strings.TrimSpace(name), " .-_([{")
	name = strings.TrimSpace(name)

	if yearStr != "" {
		if y, err := strconv.Atoi(yearStr); err == nil {
			year = &y
		}
	}

	return name, year
}

func indexOfAka(s string) int {
	lower := strings.ToLower(s)
	for _, marker := range []string{" aka ", " a.k.a. ", " a.k.a "} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			return idx
		}
	}
	return -1
}

func stripStopWords(s string) string {
	tokens := strings.Fields(s)
	for len(tokens) > 0 {
		last := strings.ToLower(strings.Trim(tokens[len(tokens)-1], ".-_()[]{}"))
		stopped := false
		for _, w := range stopWords {
			if last == w {
				stopped = true
				break
			}
		}
		if !stopped {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// IsShowGuess reports whether a torrent looks like a TV show: either its
// name carries an SxxEyy / NxNN marker, or it contains more than one video
// file (a season pack almost never has exactly one).
func IsShowGuess(name string, videoFileCount int) bool {
	return showRE.MatchString(name) || videoFileCount > 1
}

// SeasonNumber extracts a season number from a path component, defaulting
// to 1 when no season marker is present (a lone special/episode file is
// treated as season 1).
func SeasonNumber(path string) int {
	m := seasonRE.FindStringSubmatch(path)
	if m == nil {
		return 1
	}
	for _, g := range m[1:] {
		if g != "" {
			if n, err := strconv.Atoi(g); err == nil {
				return n
			}
		}
	}
	return 1
}

// NormalizeTitle lowercases, folds a handful of diacritics, normalizes
// "and"/"&", and strips everything but letters and digits — used as the
// equality check for "is this TMDB result actually what we asked for".
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " and ", " & ")

	var b strings.Builder
	for _, r := range s {
		if folded, ok := diacriticFold[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	var out strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return out.String()
}

var diacriticFold = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i',
	'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u',
	'ñ': 'n', 'ç': 'c',
}

// IsGenericTitle rejects titles that are too generic to trust: empty, a
// long run of digits, a short number below 10, or a known generic word.
func IsGenericTitle(s string) bool {
	if strings.TrimSpace(s) == "" {
		return true
	}
	if allDigits(s) {
		if len(s) >= 5 {
			return true
		}
		if n, err := strconv.Atoi(s); err == nil && n < 10 {
			return true
		}
	}
	return genericRE.MatchString(strings.TrimSpace(s))
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CamelCaseSplit inserts spaces at lower-to-upper transitions, a fallback
// used when a cleaned name still yields no search results at all.
func CamelCaseSplit(s string) string {
	return camelRE.ReplaceAllString(s, "$1 $2")
}
