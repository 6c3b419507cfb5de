package services

import "errors"

// ErrVersionConflict reports a compare-and-swap miss on a per-user singleton
// ledger row: another writer bumped the version between read and write.
// Callers re-read and retry once.
var ErrVersionConflict = errors.New("concurrent ledger update")

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
