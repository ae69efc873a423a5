package verifiers

import (
	"context"
	"fmt"
	"math"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.Verifier = (*RangeSanity)(nil)

// RangeSanity checks every present value against the inclusive field limit
// table. It depends on numeric validity: values that are not finite
// numerics are skipped here because that node already flagged them.
type RangeSanity struct {
	limits map[string][2]float64
}

// NewRangeSanity creates the range node with the frozen limit table.
func NewRangeSanity(limits map[string][2]float64) *RangeSanity {
	return &RangeSanity{limits: limits}
}

func (v *RangeSanity) ID() string { return RangeSanityID }

func (v *RangeSanity) EvidenceType() domain.EvidenceType { return domain.EvidenceRangeSanity }

func (v *RangeSanity) Capabilities() []string { return []string{"range_sanity"} }

// Verify emits one atom per present value. Out-of-range severity comes from
// the normalized excess d = |v - nearest bound| / (upper - lower): critical
// above 0.5, warning otherwise.
func (v *RangeSanity) Verify(_ context.Context, _ domain.Sample, fields domain.FieldMap, vctx *ports.VerifyContext) ([]domain.Atom, error) {
	var atoms []domain.Atom
	for _, field := range vctx.RequiredFields {
		limit, limited := v.limits[field]
		if !limited || !fields.Has(field) {
			continue
		}

		values := fields.Values(field)
		isArray := fields.IsArray(field)
		for i, raw := range values {
			name := field
			if isArray {
				name = fmt.Sprintf("%s[%d]", field, i)
			}
			num, ok := domain.Float(raw)
			if !ok || !domain.IsFiniteNumeric(raw) {
				// Non-numeric values belong to numeric validity.
				continue
			}
			atoms = append(atoms, v.rangeAtom(vctx, name, num, limit))
		}
	}
	return atoms, nil
}

func (v *RangeSanity) rangeAtom(vctx *ports.VerifyContext, name string, value float64, limit [2]float64) domain.Atom {
	lower, upper := limit[0], limit[1]
	meta := map[string]any{
		"checker": RangeSanityID,
		"limits":  []float64{lower, upper},
		"value":   value,
	}

	if value >= lower && value <= upper {
		return domain.PassAtom(
			vctx.IDs.Next(), domain.EvidenceRangeSanity, name,
			domain.ScopeField,
			fmt.Sprintf("Field %s within valid range", name),
			meta,
		)
	}

	nearest := lower
	if value > upper {
		nearest = upper
	}
	excess := math.Abs(value-nearest) / (upper - lower)
	severity := domain.SeverityWarning
	if excess > 0.5 {
		severity = domain.SeverityCritical
	}
	meta["deviation"] = excess
	return domain.FailAtom(
		vctx.IDs.Next(), domain.EvidenceRangeSanity, name,
		severity, domain.ScopeField,
		fmt.Sprintf("%s out of range: %g not in [%g, %g]", name, value, lower, upper),
		meta,
	)
}
