// Package ports defines the interfaces between the grading pipeline's
// application core and its infrastructure: verifier nodes, adjudicators,
// the LLM client, data sources, and metrics.
package ports

import (
	"context"

	"github.com/aerograde/flygrade/internal/domain"
)

// VerifyContext carries per-sample state into a verifier node. Every field
// except IDs is read-only; IDs is the sample-local evidence ID allocator
// shared by all nodes so IDs stay dense and reflect execution order.
type VerifyContext struct {
	TaskID         domain.TaskID
	RequiredFields []string
	// Previous holds the most recent committed prediction per field for the
	// same model, used by jump-dynamics. Nil for a model's first sample.
	Previous map[string]any
	// Gold is the reference next state when available.
	Gold domain.Gold
	// IDs allocates evidence IDs. Verifiers run sequentially within a
	// sample, so unsynchronized access is safe.
	IDs *domain.IDAllocator
}

// Verifier is one node of the verification graph. Implementations must be
// deterministic and stateless across samples; all per-sample inputs arrive
// through the arguments.
type Verifier interface {
	// ID returns the stable node identifier used for dependency wiring.
	ID() string

	// EvidenceType returns the family every atom of this node carries.
	EvidenceType() domain.EvidenceType

	// Capabilities lists the constraint identifiers this node checks,
	// used to build the per-sample checklist.
	Capabilities() []string

	// Verify inspects the parsed field map and returns evidence atoms in
	// emission order. Returning an error isolates the node: the graph
	// replaces its output with a single critical atom and continues.
	Verify(ctx context.Context, sample domain.Sample, fields domain.FieldMap, vctx *VerifyContext) ([]domain.Atom, error)
}
