package verifiers

import (
	"context"
	"fmt"
	"math"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.Verifier = (*JumpDynamics)(nil)

// JumpDynamics bounds per-second change. For M3 array fields it checks
// adjacent steps within the array; for S1 and M1 it compares against the
// model's most recent committed prediction, emitting nothing when no prior
// exists. Angle fields use circular difference.
type JumpDynamics struct {
	thresholds  map[string]float64
	angleFields map[string]struct{}
}

// NewJumpDynamics creates the jump node with the frozen threshold table.
func NewJumpDynamics(thresholds map[string]float64, angleFields map[string]struct{}) *JumpDynamics {
	return &JumpDynamics{thresholds: thresholds, angleFields: angleFields}
}

func (v *JumpDynamics) ID() string { return JumpDynamicsID }

func (v *JumpDynamics) EvidenceType() domain.EvidenceType { return domain.EvidenceJumpDynamics }

func (v *JumpDynamics) Capabilities() []string { return []string{"jump_dynamics"} }

func (v *JumpDynamics) diff(field string, a, b float64) float64 {
	if _, angular := v.angleFields[field]; angular {
		return domain.CircularDiff(a, b)
	}
	return math.Abs(a - b)
}

// Verify emits one field-level atom per constrained field: failing when any
// adjacent-step change exceeds the threshold, reporting the maximum change.
// Severity is critical above 2x the threshold, warning otherwise.
func (v *JumpDynamics) Verify(_ context.Context, _ domain.Sample, fields domain.FieldMap, vctx *ports.VerifyContext) ([]domain.Atom, error) {
	var atoms []domain.Atom
	for _, field := range vctx.RequiredFields {
		threshold, constrained := v.thresholds[field]
		if !constrained || !fields.Has(field) {
			continue
		}

		var maxChange float64
		var checked bool
		if vctx.TaskID == domain.TaskM3 && fields.IsArray(field) {
			maxChange, checked = v.arrayMaxChange(field, fields.Values(field))
		} else {
			maxChange, checked = v.stepChange(field, vctx.Previous, fields[field])
		}
		if !checked {
			// No prior prediction yet; the field is not constrained.
			continue
		}

		meta := map[string]any{
			"checker":    JumpDynamicsID,
			"threshold":  threshold,
			"max_change": maxChange,
			"task_type":  string(vctx.TaskID),
		}
		if maxChange > threshold {
			ratio := maxChange / threshold
			meta["violation_ratio"] = ratio
			severity := domain.SeverityWarning
			if ratio > 2.0 {
				severity = domain.SeverityCritical
			}
			atoms = append(atoms, domain.FailAtom(
				vctx.IDs.Next(), domain.EvidenceJumpDynamics, field,
				severity, domain.ScopeField,
				fmt.Sprintf("%s mutation too large: %.6f > %.6f", field, maxChange, threshold),
				meta,
			))
			continue
		}
		atoms = append(atoms, domain.PassAtom(
			vctx.IDs.Next(), domain.EvidenceJumpDynamics, field,
			domain.ScopeField,
			fmt.Sprintf("%s mutation check passed", field),
			meta,
		))
	}
	return atoms, nil
}

// arrayMaxChange scans adjacent steps of an M3 array, skipping pairs with a
// non-numeric end.
func (v *JumpDynamics) arrayMaxChange(field string, values []any) (float64, bool) {
	if len(values) < 2 {
		return 0, len(values) == 1
	}
	var maxChange float64
	for i := 1; i < len(values); i++ {
		prev, okPrev := domain.Float(values[i-1])
		curr, okCurr := domain.Float(values[i])
		if !okPrev || !okCurr {
			continue
		}
		if change := v.diff(field, curr, prev); change > maxChange {
			maxChange = change
		}
	}
	return maxChange, true
}

// stepChange compares the current value to the model's prior prediction.
// An array-valued prior contributes its last element.
func (v *JumpDynamics) stepChange(field string, previous map[string]any, current any) (float64, bool) {
	if previous == nil {
		return 0, false
	}
	prevRaw, ok := previous[field]
	if !ok || prevRaw == nil {
		return 0, false
	}
	if arr, isArr := prevRaw.([]any); isArr {
		if len(arr) == 0 {
			return 0, false
		}
		prevRaw = arr[len(arr)-1]
	}
	prev, okPrev := domain.Float(prevRaw)
	curr, okCurr := domain.Float(current)
	if !okPrev || !okCurr {
		return 0, false
	}
	return v.diff(field, curr, prev), true
}
