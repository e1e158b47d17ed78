// Package constants provides shared constants used across the codebase.
package constants

// Matching constants
const (
	// NoConfidence is reported when no oracle comparison produced a usable score.
	NoConfidence = -1.0
)

// Visit ledger constants
const (
	// DefaultRecentVisits is the number of visits returned when no limit is given
	DefaultRecentVisits = 8

	// MaxRecentVisits caps the recent visits query
	MaxRecentVisits = 500
)

// Capture constants
const (
	// MaxDebounceEntries bounds the client-side debounce map
	MaxDebounceEntries = 1024

	// JPEGQuality is used when re-encoding captured frames
	JPEGQuality = 85
)

// Processing constants
const (
	// DefaultConcurrency is the default number of parallel workers for gallery checks
	DefaultConcurrency = 5

	// GalleryPageSize is the number of subjects fetched per gallery page
	GalleryPageSize = 16
)
