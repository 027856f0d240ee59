package session

import "errors"

// Sentinel errors for scan-wide failures. Failures local to one candidate
// never surface here; the scan degrades to fewer results instead.
var (
	// ErrInvalidInput means no query or image was provided, or the input
	// failed basic validation before any work began.
	ErrInvalidInput = errors.New("no search query or reference image provided")

	// ErrScanInProgress means another search is already running on this
	// session. New requests are rejected, not queued.
	ErrScanInProgress = errors.New("a search is already in progress")

	// ErrTimeout means the scan exceeded its configured deadline. The page
	// was too complex to finish in time; partial results are discarded.
	ErrTimeout = errors.New("search timed out: this page is too complex to analyze in time")
)
