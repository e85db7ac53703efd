// Package source defines the contract shared by the upstream identifier
// lookup services and the failure taxonomy they report.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"innsearch/internal/person"
)

//go:generate mockgen -source=source.go -destination=mocks/mocks.go -package=mocks Source

// Source is one external lookup service. Lookup must not mutate the person.
// A confirmed negative is returned as a NotFound outcome with a nil error;
// failures are returned as *SourceError.
type Source interface {
	Name() string
	Lookup(ctx context.Context, p person.Person) (person.SearchOutcome, error)
}

// maxResponseSize bounds upstream body reads. Legitimate responses are a few
// kilobytes.
const maxResponseSize int64 = 4 << 20

// ReadBody reads a response body up to maxResponseSize bytes.
func ReadBody(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, maxResponseSize))
}

// CheckStatus maps a non-2xx response onto the taxonomy. Throttling, blocking
// and server errors are worth another attempt through a fresh circuit.
func CheckStatus(name string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, resp.Request.URL.Path)
	switch {
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return NewSourceError(ErrorTransient, name, msg, nil)
	default:
		return NewSourceError(ErrorProtocol, name, msg, nil)
	}
}

// DecodeJSON reads and decodes a JSON response, classifying read failures as
// transient and malformed bodies as protocol errors.
func DecodeJSON(name string, resp *http.Response, v any) error {
	data, err := ReadBody(resp.Body)
	if err != nil {
		return Transport(name, "read response body", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewSourceError(ErrorProtocol, name, "decode response body", err)
	}
	return nil
}
