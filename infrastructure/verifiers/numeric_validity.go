// Package verifiers implements the six nodes of the verification graph.
// Each node is deterministic, consumes the parsed field map, and emits
// traceable evidence atoms; thresholds are injected from the frozen
// constraint library at construction.
package verifiers

import (
	"context"
	"fmt"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

// Node IDs used for dependency wiring in the verifier graph.
const (
	NumericValidityID = "NUMERIC_VALIDITY"
	RangeSanityID     = "RANGE_SANITY"
	JumpDynamicsID    = "JUMP_DYNAMICS"
	CrossFieldID      = "CROSS_FIELD_CONSISTENCY"
	PhysicsID         = "PHYSICS_CONSTRAINT"
	SafetyID          = "SAFETY_CONSTRAINT"
)

var _ ports.Verifier = (*NumericValidity)(nil)

// NumericValidity rejects missing fields and values that are not finite
// real numbers. It runs first and has no dependencies; every later verifier
// relies on it having flagged the garbage.
type NumericValidity struct{}

// NewNumericValidity creates the numeric-validity node.
func NewNumericValidity() *NumericValidity { return &NumericValidity{} }

func (v *NumericValidity) ID() string { return NumericValidityID }

func (v *NumericValidity) EvidenceType() domain.EvidenceType { return domain.EvidenceNumericValidity }

func (v *NumericValidity) Capabilities() []string { return []string{"numeric_validity"} }

// Verify emits, for every required field: one critical atom when absent;
// one atom per element for arrays; one atom for scalars. Failing atoms are
// critical, passing atoms info.
func (v *NumericValidity) Verify(_ context.Context, _ domain.Sample, fields domain.FieldMap, vctx *ports.VerifyContext) ([]domain.Atom, error) {
	var atoms []domain.Atom
	for _, field := range vctx.RequiredFields {
		if !fields.Has(field) {
			atoms = append(atoms, domain.FailAtom(
				vctx.IDs.Next(), domain.EvidenceNumericValidity, field,
				domain.SeverityCritical, domain.ScopeField,
				fmt.Sprintf("Field %s is missing", field),
				map[string]any{"checker": NumericValidityID, "rule": "missing"},
			))
			continue
		}

		if fields.IsArray(field) {
			for i, elem := range fields.Values(field) {
				atoms = append(atoms, v.valueAtom(vctx, fmt.Sprintf("%s[%d]", field, i), elem))
			}
			continue
		}
		atoms = append(atoms, v.valueAtom(vctx, field, fields[field]))
	}
	return atoms, nil
}

func (v *NumericValidity) valueAtom(vctx *ports.VerifyContext, name string, value any) domain.Atom {
	meta := map[string]any{
		"checker": NumericValidityID,
		"value":   fmt.Sprintf("%v", value),
	}
	if !domain.IsFiniteNumeric(value) {
		meta["rule"] = "invalid_value"
		return domain.FailAtom(
			vctx.IDs.Next(), domain.EvidenceNumericValidity, name,
			domain.SeverityCritical, domain.ScopeField,
			fmt.Sprintf("Field %s has invalid numeric value: %v", name, value),
			meta,
		)
	}
	meta["rule"] = "valid_value"
	return domain.PassAtom(
		vctx.IDs.Next(), domain.EvidenceNumericValidity, name,
		domain.ScopeField,
		fmt.Sprintf("Field %s has valid numeric value", name),
		meta,
	)
}
