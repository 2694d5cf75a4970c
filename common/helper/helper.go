package helper

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GetTimestamp returns the current unix timestamp in seconds.
func GetTimestamp() int64 {
	return time.Now().Unix()
}

// GetUUID returns a random UUID without dashes, matching the id style used in
// generated tool-call and completion identifiers.
func GetUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// GenerateChatCompletionID returns an OpenAI-style chat completion id.
func GenerateChatCompletionID() string {
	return "chatcmpl-" + GetUUID()
}

// GenerateRequestID returns a gateway request identifier.
func GenerateRequestID() string {
	return "req_" + GetUUID()
}

// TruncateHour floors a timestamp to the start of its hour in UTC.
func TruncateHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// HourKey formats a timestamp as the canonical hour-bucket key. The string is
// cast back to a timestamp in SQL so driver-local timezones cannot skew
// timezone-less columns.
func HourKey(t time.Time) string {
	return TruncateHour(t).Format("2006-01-02 15:00:00")
}
