package render

import (
	"encoding/json"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
)

// StringData writes a single SSE data line and flushes it to the client.
func StringData(c *gin.Context, str string) error {
	if _, err := c.Writer.WriteString("data: " + str + "\n\n"); err != nil {
		return errors.Wrap(err, "write sse data")
	}
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// ObjectData marshals an object and writes it as a single SSE data event.
func ObjectData(c *gin.Context, object any) error {
	if object == nil {
		return errors.New("object is nil")
	}
	jsonData, err := json.Marshal(object)
	if err != nil {
		return errors.Wrap(err, "marshal sse object")
	}
	return StringData(c, string(jsonData))
}

// Done terminates an SSE stream with the OpenAI sentinel event.
func Done(c *gin.Context) {
	_ = StringData(c, "[DONE]")
}

// Ping writes an SSE comment line used as a keepalive. Comments are ignored
// by SSE clients, so this is safe to interleave with data events.
func Ping(c *gin.Context) error {
	if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
		return errors.Wrap(err, "write sse ping")
	}
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
