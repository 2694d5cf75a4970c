// Package client holds the shared outbound HTTP clients.
package client

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/llmgateway/llmgateway/common/config"
)

// HTTPClient is the default outbound client for relay requests. Its timeout
// caps the whole request; streaming responses count only the header phase
// because the body is consumed incrementally.
var HTTPClient *http.Client

// ImpatientHTTPClient is a short-timeout client for metadata requests.
var ImpatientHTTPClient *http.Client

func Init() {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		// Disable HTTP/2; some upstreams reset long-lived h2 streams.
		TLSNextProto: make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
	}

	HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   config.RelayTimeout,
	}
	ImpatientHTTPClient = &http.Client{
		Transport: transport,
		Timeout:   5 * time.Second,
	}
}
