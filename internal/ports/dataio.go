package ports

import (
	"context"

	"github.com/aerograde/flygrade/internal/domain"
)

// ReplySource provides the model reply corpus, one stream per (task, model).
type ReplySource interface {
	// Models lists the model names with replies recorded for a task.
	Models(task domain.TaskID) ([]string, error)

	// Replies returns a model's replies for a task in sample-index order.
	Replies(task domain.TaskID, model string) ([]domain.ModelReply, error)
}

// ReferenceStore resolves gold records lazily by sample index. The index
// passed in is the sample's position in the reply stream; any dataset
// offset is the store's concern, configured per task.
type ReferenceStore interface {
	// Gold returns the reference next state for a sample index. A missing
	// record returns an unavailable Gold, not an error.
	Gold(task domain.TaskID, idx int) (domain.Gold, error)
}

// ConfidenceSource loads the externally calibrated per-model priors.
type ConfidenceSource interface {
	Load(ctx context.Context) (map[string]domain.ModelConfidence, error)
}

// ResultSink persists the run outputs.
type ResultSink interface {
	WriteRecord(rec domain.Record) error
	WriteTaskSummary(summary *domain.TaskSummary) error
	WriteModelProfile(profile *domain.ModelProfile) error
	// WriteEnvelope persists the run-level reproducibility envelope.
	WriteEnvelope(trace domain.Trace) error
	Close() error
}
