package scan

import "time"

// Decision is the outcome of the re-scan reconciliation rule for one file.
type Decision int

const (
	// DecisionSkip leaves the existing record untouched.
	DecisionSkip Decision = iota
	// DecisionInsert creates a record for a file not yet indexed.
	DecisionInsert
	// DecisionUpdate reprocesses a file whose record is stale or forced.
	DecisionUpdate
)

func (d Decision) String() string {
	switch d {
	case DecisionInsert:
		return "insert"
	case DecisionUpdate:
		return "update"
	default:
		return "skip"
	}
}

// Reconcile decides what a scan should do with one file: absent from the
// index means insert, present but stale or force-reprocessed means update,
// present and current means skip. Pure function of its inputs.
func Reconcile(exists bool, stored, observed time.Time, force bool) Decision {
	if !exists {
		return DecisionInsert
	}
	if force || !stored.Equal(observed) {
		return DecisionUpdate
	}
	return DecisionSkip
}
