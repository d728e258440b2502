package media

import (
	"path"
	"strings"
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".mov": true, ".wmv": true, ".flv": true, ".ts": true, ".m2ts": true,
}

var excludedNameFragments = []string{"sample", "trailer", "extra", "bonus", "featurette"}

// IsVideoFile reports whether p names a real episode/movie file: it must
// have a recognized video extension and must not look like a
// sample/trailer/extra/bonus/featurette file.
func IsVideoFile(p string) bool {
	base := strings.ToLower(path.Base(p))
	for _, frag := range excludedNameFragments {
		if strings.Contains(base, frag) {
			return false
		}
	}
	ext := path.Ext(base)
	return videoExtensions[ext]
}
