package identify

import "regexp"

// These patterns mirror the ones the original identification engine uses
// to clean release names and guess at show-vs-movie layout.
var (
	prefixRE    = regexp.MustCompile(`^\[[^\]]*\]\s*`)
	yearRE      = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	yearRangeRE = regexp.MustCompile(`\b(19\d{2}|20\d{2})\s*[-–]\s*(19\d{2}|20\d{2})\b`)
	showRE      = regexp.MustCompile(`(?i)\bs\d{1,2}e\d{1,3}\b|\b\d{1,2}x\d{1,3}\b`)
	seasonRE    = regexp.MustCompile(`(?i)s(\d+)|season\s*(\d+)|(\d+)x\d+`)
	camelRE     = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	genericRE   = regexp.MustCompile(`(?i)^(video|movie|new|untitled|sample|download|file)$`)

	stopWords = []string{
		"1080p", "2160p", "720p", "480p", "4k", "uhd", "hdr", "hdr10",
		"bluray", "blu-ray", "bdrip", "brrip", "webrip", "web-dl", "webdl",
		"hdtv", "dvdrip", "x264", "x265", "h264", "h265", "hevc", "avc",
		"aac", "ac3", "dts", "5.1", "7.1", "remux", "proper", "repack",
		"extended", "unrated", "limited", "internal", "multi", "dual",
	}
)
