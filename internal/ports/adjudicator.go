package ports

import (
	"context"

	"github.com/aerograde/flygrade/internal/domain"
)

// AdjudicationInput is everything an adjudicator may consider. The raw model
// reply is deliberately absent: adjudication is evidence-only.
type AdjudicationInput struct {
	TaskID         domain.TaskID
	Evidence       *domain.EvidencePack
	ProtocolResult domain.ProtocolResult
	// TaskSpec is the task description included in judge prompts and cache
	// keys. Keys and values must be deterministic.
	TaskSpec map[string]any
	// ConditionalError is the gold-referenced error pair, nil without gold.
	ConditionalError *domain.ConditionalError
}

// Adjudicator maps an evidence population to a grade vector. Two
// implementations exist: the deterministic rule adjudicator and the LLM
// judge. Both must be idempotent: identical inputs yield identical outputs.
type Adjudicator interface {
	// Name identifies the adjudicator in record metadata.
	Name() string

	// Adjudicate produces the grade vector for one sample. It never fails
	// the sample: internal errors degrade to the all-D fallback with the
	// failure reason recorded in the adjudication metadata.
	Adjudicate(ctx context.Context, in AdjudicationInput) (domain.Adjudication, error)
}
