package llm

import "errors"

// Classification sentinels. Provider implementations wrap one of these into
// the error chain when the failure class is known so that the cascade can make
// routing decisions with errors.Is instead of string matching.
var (
	// ErrUnavailable means the backend could not be reached or returned a
	// server-side failure (5xx, connection refused).
	ErrUnavailable = errors.New("provider unavailable")

	// ErrRateLimited means the request was rejected for pacing reasons (429
	// without a quota marker, 503 over-capacity). The same model may succeed
	// later; the cascade moves on to the next model within the same turn.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound means the requested model does not exist or has been
	// decommissioned. The cascade must invalidate any cached reference to it.
	ErrModelNotFound = errors.New("model not found")

	// ErrQuotaExceeded means the credential is out of quota or unauthorized
	// (401, 429 insufficient_quota). The cascade caches this per provider for
	// the quota TTL and skips the provider until expiry.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrEmptyResponse means the backend answered successfully but produced
	// no usable text.
	ErrEmptyResponse = errors.New("empty completion")
)

// Kind is the cascade-facing failure classification of a provider error.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnavailable
	KindRateLimited
	KindNotFound
	KindQuotaExceeded
)

// String returns the human-readable name of the kind, for logs.
func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindQuotaExceeded:
		return "quota_exceeded"
	default:
		return "unknown"
	}
}

// Classify maps a provider error to its [Kind] by walking the error chain.
// Unrecognised errors classify as KindUnknown, which the cascade treats like
// a transient failure (try the next model).
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrModelNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindUnknown
	}
}
