package vfs

const PayloadSize = 1024

// PadPayload renders a hoster URL as the fixed 1024-byte StreamFile
// payload: "<url>\n" padded with spaces out to PayloadSize. If the URL
// itself is implausibly long,
// the payload is truncated rather than grown, since every StreamFile must
// report the same fixed size in both its metadata and its read content.
// Exported so webdavfs can re-pad a freshly re-resolved URL on every read.
func PadPayload(url string) []byte {
	content := url + "\n"
	if len(content) >= PayloadSize {
		return []byte(content[:PayloadSize])
	}
	buf := make([]byte, PayloadSize)
	copy(buf, content)
	for i := len(content); i < PayloadSize; i++ {
		buf[i] = ' '
	}
	return buf
}
