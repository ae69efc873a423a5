package application

import (
	"context"
	"fmt"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

// VerifierGraph is the DAG of verifier nodes. Nodes register with optional
// dependency IDs; execution is topological, deterministic, and runs every
// node exactly once per sample regardless of earlier failures so the full
// evidence pack is always collected.
type VerifierGraph struct {
	order        []string
	nodes        map[string]ports.Verifier
	dependencies map[string][]string
}

// NewVerifierGraph creates an empty graph.
func NewVerifierGraph() *VerifierGraph {
	return &VerifierGraph{
		nodes:        make(map[string]ports.Verifier),
		dependencies: make(map[string][]string),
	}
}

// Add registers a verifier with its dependency IDs. Adding a new check is a
// pure addition: no existing node changes. Duplicate IDs, unknown
// dependencies, and cycles are rejected.
func (g *VerifierGraph) Add(v ports.Verifier, deps ...string) error {
	if v == nil {
		return fmt.Errorf("cannot add nil verifier")
	}
	id := v.ID()
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("verifier %s already registered", id)
	}
	for _, dep := range deps {
		if _, ok := g.nodes[dep]; !ok {
			return fmt.Errorf("verifier %s depends on unknown verifier %s", id, dep)
		}
	}
	g.nodes[id] = v
	g.dependencies[id] = append([]string(nil), deps...)
	g.order = append(g.order, id)
	if _, err := g.topological(); err != nil {
		delete(g.nodes, id)
		delete(g.dependencies, id)
		g.order = g.order[:len(g.order)-1]
		return err
	}
	return nil
}

// Verifiers returns the registered nodes in topological order.
func (g *VerifierGraph) Verifiers() []ports.Verifier {
	ids, _ := g.topological()
	out := make([]ports.Verifier, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out
}

// Capabilities returns every capability of every node in execution order.
func (g *VerifierGraph) Capabilities() []string {
	var caps []string
	for _, v := range g.Verifiers() {
		caps = append(caps, v.Capabilities()...)
	}
	return caps
}

// Execute runs every node in topological order and returns the combined
// evidence in emission order. A node that returns an error or panics is
// isolated: its output is replaced with a single critical atom citing the
// checker, and the remaining nodes still run.
func (g *VerifierGraph) Execute(ctx context.Context, sample domain.Sample, fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var all []domain.Atom
	for _, v := range g.Verifiers() {
		atoms, err := runVerifier(ctx, v, sample, fields, vctx)
		if err != nil {
			all = append(all, domain.FailAtom(
				vctx.IDs.Next(), v.EvidenceType(), "",
				domain.SeverityCritical, domain.ScopeSample,
				fmt.Sprintf("verifier %s failed internally: %v", v.ID(), err),
				map[string]any{"checker": v.ID(), "rule": "verifier_internal_error"},
			))
			continue
		}
		all = append(all, atoms...)
	}
	return all
}

// runVerifier invokes one node, converting panics into errors so a broken
// check cannot take down the sample.
func runVerifier(ctx context.Context, v ports.Verifier, sample domain.Sample, fields domain.FieldMap, vctx *ports.VerifyContext) (atoms []domain.Atom, err error) {
	defer func() {
		if r := recover(); r != nil {
			atoms = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return v.Verify(ctx, sample, fields, vctx)
}

// topological orders node IDs with Kahn's algorithm. Ties are broken by
// registration order so execution, and therefore evidence IDs, are
// deterministic across runs.
func (g *VerifierGraph) topological() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for id, deps := range g.dependencies {
		inDegree[id] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, id)

		// Visit dependents in registration order for stable output.
		for _, candidate := range g.order {
			for _, dependent := range dependents[id] {
				if dependent != candidate {
					continue
				}
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					queue = append(queue, dependent)
				}
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, fmt.Errorf("verifier graph contains a cycle")
	}
	return result, nil
}
