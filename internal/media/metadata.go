// Package media holds the MediaMetadata grouping key shared by the
// identifier, VFS builder, reconciliation loop, and persistent store.
package media

// Type distinguishes a movie from a TV show.
type Type string

const (
	Movie Type = "movie"
	Show  Type = "show"
)

// Metadata is the grouping key: two torrents with equal Metadata are the
// same title and belong in the same VFS folder. Equality is exact
// field-for-field comparison across all four fields.
type Metadata struct {
	Title      string
	Year       *int
	MediaType  Type
	ExternalID string // "tmdb:603" style, empty when unresolved
}

// Equal reports whether two Metadata values are the same grouping key.
func (m Metadata) Equal(other Metadata) bool {
	if m.Title != other.Title || m.MediaType != other.MediaType || m.ExternalID != other.ExternalID {
		return false
	}
	if (m.Year == nil) != (other.Year == nil) {
		return false
	}
	if m.Year != nil && *m.Year != *other.Year {
		return false
	}
	return true
}

// Key renders a stable string form of the metadata, usable as a map key
// where a comparable struct with a pointer field would otherwise need a
// manual adapter.
func (m Metadata) Key() string {
	y := "?"
	if m.Year != nil {
		y = itoa(*m.Year)
	}
	return string(m.MediaType) + "|" + m.Title + "|" + y + "|" + m.ExternalID
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
