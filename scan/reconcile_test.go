package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconcile(t *testing.T) {
	base := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	later := base.Add(time.Minute)

	tests := []struct {
		name     string
		exists   bool
		stored   time.Time
		observed time.Time
		force    bool
		want     Decision
	}{
		{"absent", false, time.Time{}, base, false, DecisionInsert},
		{"absent forced", false, time.Time{}, base, true, DecisionInsert},
		{"present current", true, base, base, false, DecisionSkip},
		{"present stale", true, base, later, false, DecisionUpdate},
		{"present older on disk", true, later, base, false, DecisionUpdate},
		{"present current forced", true, base, base, true, DecisionUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.exists, tt.stored, tt.observed, tt.force)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReconcileIgnoresWallClockRepresentation(t *testing.T) {
	utc := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	shifted := utc.In(time.FixedZone("EST", -5*3600))
	// Equal instants in different zones are still "current".
	assert.Equal(t, DecisionSkip, Reconcile(true, utc, shifted, false))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "insert", DecisionInsert.String())
	assert.Equal(t, "update", DecisionUpdate.String())
	assert.Equal(t, "skip", DecisionSkip.String())
}
