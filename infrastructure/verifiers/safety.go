package verifiers

import (
	"context"
	"fmt"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.Verifier = (*SafetyConstraint)(nil)

// Safety rule thresholds. These are contractual.
const (
	rapidDescentCriticalFpm = -3000.0
	rapidDescentWarnFpm     = -2000.0
	stallAirspeedKt         = 30.0
	overspeedKt             = 180.0
	groundContactFt         = 0.0
	highAltitudeFt          = 15000.0
	// Stall composite: low airspeed + high pitch + low climb rate.
	stallCompositeIASKt = 50.0
	stallCompositePitch = 15.0
	stallCompositeVSFpm = 500.0
)

// SafetyConstraint flags flight states that would be dangerous if real:
// rapid descent, extreme airspeed or altitude, and stall-like composites.
// Safety atoms are emitted only on failure; a dense pass trail would bloat
// the evidence pack without adding information.
type SafetyConstraint struct{}

// NewSafetyConstraint creates the safety node.
func NewSafetyConstraint() *SafetyConstraint { return &SafetyConstraint{} }

func (v *SafetyConstraint) ID() string { return SafetyID }

func (v *SafetyConstraint) EvidenceType() domain.EvidenceType { return domain.EvidenceSafety }

func (v *SafetyConstraint) Capabilities() []string { return []string{"safety_constraints"} }

func (v *SafetyConstraint) Verify(_ context.Context, _ domain.Sample, fields domain.FieldMap, vctx *ports.VerifyContext) ([]domain.Atom, error) {
	var atoms []domain.Atom
	atoms = append(atoms, v.rapidDescent(fields, vctx)...)
	atoms = append(atoms, v.extremeAirspeed(fields, vctx)...)
	atoms = append(atoms, v.extremeAltitude(fields, vctx)...)
	atoms = append(atoms, v.stallComposite(fields, vctx)...)
	return atoms, nil
}

func (v *SafetyConstraint) rapidDescent(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	forEachTimestep(fields, []string{domain.FieldVerticalSpeed},
		func(idx, steps int, vals []float64) {
			vs := vals[0]
			switch {
			case vs < rapidDescentCriticalFpm:
				atoms = append(atoms, domain.FailAtom(
					vctx.IDs.Next(), domain.EvidenceSafety, "Rapid_Descent",
					domain.SeverityCritical, domain.ScopeSample,
					fmt.Sprintf("%sRapid descent detected: %.1f fpm (threshold: %.0f fpm)",
						timestepPrefix(idx, steps), vs, rapidDescentCriticalFpm),
					map[string]any{
						"checker": SafetyID, "rule": "rapid_descent",
						"vertical_speed": vs, "threshold": rapidDescentCriticalFpm, "timestep": idx,
					}))
			case vs <= rapidDescentWarnFpm:
				atoms = append(atoms, domain.FailAtom(
					vctx.IDs.Next(), domain.EvidenceSafety, "Rapid_Descent",
					domain.SeverityWarning, domain.ScopeSample,
					fmt.Sprintf("%sHigh descent rate: %.1f fpm (warning threshold: %.0f fpm)",
						timestepPrefix(idx, steps), vs, rapidDescentWarnFpm),
					map[string]any{
						"checker": SafetyID, "rule": "rapid_descent",
						"vertical_speed": vs, "threshold": rapidDescentWarnFpm, "timestep": idx,
					}))
			}
		})
	return atoms
}

func (v *SafetyConstraint) extremeAirspeed(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	forEachTimestep(fields, []string{domain.FieldAirspeed},
		func(idx, steps int, vals []float64) {
			ias := vals[0]
			switch {
			case ias < stallAirspeedKt:
				atoms = append(atoms, domain.FailAtom(
					vctx.IDs.Next(), domain.EvidenceSafety, "Extreme_Speed",
					domain.SeverityCritical, domain.ScopeField,
					fmt.Sprintf("%sExtremely low airspeed: %.1f kt (stall risk threshold: %.0f kt)",
						timestepPrefix(idx, steps), ias, stallAirspeedKt),
					map[string]any{
						"checker": SafetyID, "rule": "extreme_speed",
						"airspeed": ias, "threshold": stallAirspeedKt, "kind": "low", "timestep": idx,
					}))
			case ias > overspeedKt:
				atoms = append(atoms, domain.FailAtom(
					vctx.IDs.Next(), domain.EvidenceSafety, "Extreme_Speed",
					domain.SeverityWarning, domain.ScopeField,
					fmt.Sprintf("%sExtremely high airspeed: %.1f kt (overspeed threshold: %.0f kt)",
						timestepPrefix(idx, steps), ias, overspeedKt),
					map[string]any{
						"checker": SafetyID, "rule": "extreme_speed",
						"airspeed": ias, "threshold": overspeedKt, "kind": "high", "timestep": idx,
					}))
			}
		})
	return atoms
}

func (v *SafetyConstraint) extremeAltitude(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	forEachTimestep(fields, []string{domain.FieldGPSAltitude},
		func(idx, steps int, vals []float64) {
			alt := vals[0]
			switch {
			case alt < groundContactFt:
				atoms = append(atoms, domain.FailAtom(
					vctx.IDs.Next(), domain.EvidenceSafety, "Extreme_Altitude",
					domain.SeverityCritical, domain.ScopeField,
					fmt.Sprintf("%sNegative altitude: %.1f ft (ground contact risk)",
						timestepPrefix(idx, steps), alt),
					map[string]any{
						"checker": SafetyID, "rule": "extreme_altitude",
						"altitude": alt, "threshold": groundContactFt, "kind": "low", "timestep": idx,
					}))
			case alt > highAltitudeFt:
				atoms = append(atoms, domain.FailAtom(
					vctx.IDs.Next(), domain.EvidenceSafety, "Extreme_Altitude",
					domain.SeverityWarning, domain.ScopeField,
					fmt.Sprintf("%sExtremely high altitude: %.1f ft (high altitude threshold: %.0f ft)",
						timestepPrefix(idx, steps), alt, highAltitudeFt),
					map[string]any{
						"checker": SafetyID, "rule": "extreme_altitude",
						"altitude": alt, "threshold": highAltitudeFt, "kind": "high", "timestep": idx,
					}))
			}
		})
	return atoms
}

func (v *SafetyConstraint) stallComposite(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	forEachTimestep(fields, []string{domain.FieldAirspeed, domain.FieldPitch, domain.FieldVerticalSpeed},
		func(idx, steps int, vals []float64) {
			ias, pitch, vs := vals[0], vals[1], vals[2]
			if ias < stallCompositeIASKt && pitch > stallCompositePitch && vs < stallCompositeVSFpm {
				atoms = append(atoms, domain.FailAtom(
					vctx.IDs.Next(), domain.EvidenceSafety, "Stall_Condition",
					domain.SeverityCritical, domain.ScopeSample,
					fmt.Sprintf("%sStall-like condition: low airspeed (%.1fkt) + high pitch (%.1f deg) + low vertical speed (%.1ffpm)",
						timestepPrefix(idx, steps), ias, pitch, vs),
					map[string]any{
						"checker": SafetyID, "rule": "stall_condition",
						"airspeed": ias, "pitch": pitch, "vertical_speed": vs, "timestep": idx,
					}))
			}
		})
	return atoms
}
