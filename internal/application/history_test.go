package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerograde/flygrade/internal/domain"
)

func TestPredictionHistoryCommitAndSnapshot(t *testing.T) {
	h := NewPredictionHistory()
	required := []string{"Roll (deg)", "Pitch (deg)"}

	assert.Nil(t, h.Snapshot("model-a"))

	h.Commit("model-a", domain.FieldMap{"Roll (deg)": 1.0}, required)
	snap := h.Snapshot("model-a")
	require.NotNil(t, snap)
	assert.Equal(t, 1.0, snap["Roll (deg)"])
	assert.NotContains(t, snap, "Pitch (deg)")

	// A later commit overwrites field by field.
	h.Commit("model-a", domain.FieldMap{"Roll (deg)": 2.0, "Pitch (deg)": 3.0}, required)
	snap = h.Snapshot("model-a")
	assert.Equal(t, 2.0, snap["Roll (deg)"])
	assert.Equal(t, 3.0, snap["Pitch (deg)"])

	// Models are isolated from each other.
	assert.Nil(t, h.Snapshot("model-b"))

	// The snapshot is a copy; mutating it does not leak back.
	snap["Roll (deg)"] = 99.0
	assert.Equal(t, 2.0, h.Snapshot("model-a")["Roll (deg)"])

	h.Reset("model-a")
	assert.Nil(t, h.Snapshot("model-a"))
}
