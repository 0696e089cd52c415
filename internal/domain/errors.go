package domain

import "errors"

var (
	// ErrSessionNotFound signals a missing processing session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired signals a session past its TTL.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoChunks signals a session with no stored chunks.
	ErrNoChunks = errors.New("session has no chunks")

	// ErrModelUnavailable signals a model provider outage or connection failure.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelRateLimited signals a provider rate limit hit.
	ErrModelRateLimited = errors.New("model rate limited")
	// ErrModelTimeout signals a model call exceeding its budget.
	ErrModelTimeout = errors.New("model call timed out")
	// ErrMalformedOutput signals a model response that does not match the expected shape.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrRateLimited signals a rate limit hit on the embedding path.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")

	// ErrEmptyDocument signals a document with no extractable content.
	ErrEmptyDocument = errors.New("empty document")
)
