package weekly

import (
	"errors"

	"github.com/ignite/weekly-campaign/internal/segmentation"
)

// Sentinel errors for the weekly campaign service layer.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCandidates = errors.New("invalid candidate set")
	ErrMissingSender     = errors.New("missing sender identity")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrInvalidWeekOf     = errors.New("invalid week_of")
	ErrInvalidRank       = errors.New("rank must be 1, 2 or 3")
	ErrAlreadyLocked     = errors.New("run is already locked")

	// ErrStageMissing is re-exported so callers need not import segmentation.
	ErrStageMissing = segmentation.ErrStageMissing
)
