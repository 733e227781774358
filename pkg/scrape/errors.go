package scrape

import (
	"errors"
	"fmt"
)

// Sentinel errors for scraping-provider operations.
var (
	// ErrSourceInaccessible indicates the video is private, deleted, or
	// the reference is invalid. Non-transient: retrying with the same
	// input cannot succeed.
	ErrSourceInaccessible = errors.New("source video inaccessible")

	// ErrScrapeFailed indicates the provider ran but could not scrape
	// the video for a reason it did not classify.
	ErrScrapeFailed = errors.New("scrape failed")

	// ErrUnauthorized indicates the provider rejected our credentials.
	ErrUnauthorized = errors.New("provider authorization failed")

	// ErrProviderUnavailable indicates the provider service itself is
	// unreachable or overloaded. Transient.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// ScrapeError wraps provider errors with operation context.
type ScrapeError struct {
	// Op is the operation that failed (e.g. "Fetch").
	Op string

	// VideoRef is the video reference being scraped, if applicable.
	VideoRef string

	// Detail is the provider's own error string, if it reported one.
	Detail string

	// Err is the underlying error.
	Err error
}

func (e *ScrapeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("scrape %s: %v: %s", e.Op, e.Err, e.Detail)
	}
	if e.VideoRef != "" {
		return fmt.Sprintf("scrape %s: %s: %v", e.Op, e.VideoRef, e.Err)
	}
	return fmt.Sprintf("scrape %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsSourceInaccessible returns true if the error indicates the video
// cannot be accessed at all.
func IsSourceInaccessible(err error) bool {
	return errors.Is(err, ErrSourceInaccessible)
}

// IsUnauthorized returns true if the error indicates bad provider credentials.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsTransient reports whether a retry with the same input could
// plausibly succeed. Inaccessible sources and credential failures are
// permanent; provider outages and unclassified scrape failures are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSourceInaccessible) || errors.Is(err, ErrUnauthorized) {
		return false
	}
	return true
}
