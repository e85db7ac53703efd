package source

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultTimeout bounds a single upstream HTTP exchange.
const DefaultTimeout = 30 * time.Second

// NewLookupClient builds the HTTP client for a single lookup. Each lookup gets
// its own cookie jar because both services bind their form tokens to the
// session cookie. All lookups share the transport, and through it the current
// anonymity circuit.
func NewLookupClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   timeout,
	}
}
