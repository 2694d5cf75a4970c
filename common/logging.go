package common

// DefaultLogBodyLimit defines the maximum number of bytes to emit for log previews.
const DefaultLogBodyLimit = 4096

// LogTruncationSuffix marks truncated log values.
const LogTruncationSuffix = "...[truncated]"

// TruncateForLogging caps a payload preview at limit bytes and reports whether
// truncation happened. Base64 image bodies routinely exceed megabytes; logging
// them whole is never useful.
func TruncateForLogging(body []byte, limit int) ([]byte, bool) {
	if limit <= 0 || len(body) <= limit {
		return body, false
	}
	preview := make([]byte, 0, limit+len(LogTruncationSuffix))
	preview = append(preview, body[:limit]...)
	preview = append(preview, LogTruncationSuffix...)
	return preview, true
}
