package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and upstream
// adapters return these (optionally wrapped) so the resolution layer can
// translate them into outcomes.
//
// - ErrNotFound: record does not exist in a cache or store
// - ErrExpired: cached record outlived its TTL
// - ErrUnavailable: upstream service or resource temporarily unavailable
// - ErrClosed: component was used after its teardown
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("closed")
)
