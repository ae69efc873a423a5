package application

import (
	"sync"

	"github.com/aerograde/flygrade/internal/domain"
)

// PredictionHistory is the sole cross-sample state in a run: the most recent
// committed prediction per (model, field), consumed by jump-dynamics.
// Reads return the previously committed values; Commit runs at the end of a
// sample's evaluation. Samples for one model must be evaluated in
// sample-index order; different models may proceed in parallel, so access
// is mutex-guarded.
type PredictionHistory struct {
	mu   sync.Mutex
	prev map[string]map[string]any
}

// NewPredictionHistory creates an empty history.
func NewPredictionHistory() *PredictionHistory {
	return &PredictionHistory{prev: make(map[string]map[string]any)}
}

// Snapshot returns a copy of the committed predictions for a model, nil if
// the model has none yet.
func (h *PredictionHistory) Snapshot(model string) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	fields, ok := h.prev[model]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Commit stores the sample's parsed values for the given fields,
// overwriting earlier predictions field by field.
func (h *PredictionHistory) Commit(model string, fields domain.FieldMap, required []string) {
	if fields == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	slot, ok := h.prev[model]
	if !ok {
		slot = make(map[string]any)
		h.prev[model] = slot
	}
	for _, f := range required {
		if v, present := fields[f]; present {
			slot[f] = v
		}
	}
}

// Reset drops a model's history. Used between tasks so single-step jump
// checks never compare across task boundaries.
func (h *PredictionHistory) Reset(model string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.prev, model)
}
