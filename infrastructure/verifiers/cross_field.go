package verifiers

import (
	"context"
	"fmt"
	"math"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.Verifier = (*CrossFieldConsistency)(nil)

// Cross-field rule thresholds. These are contractual.
const (
	// GPS vs baro altitude disagreement, feet.
	altitudeWarnFt     = 2000.0
	altitudeCriticalFt = 3000.0
	// Reported ground speed vs speed computed from velocity components, kt.
	speedWarnKt     = 5.0
	speedCriticalKt = 15.0
	// Reported track vs direction computed from velocity components, deg.
	trackWarnDeg     = 10.0
	trackCriticalDeg = 30.0
	// Conversion from m/s to knots.
	msToKt = 1.944
)

// CrossFieldConsistency checks agreement between redundant field groups:
// the two altitude sources, ground speed against velocity components, and
// track against velocity direction. Arrays broadcast element-wise; scalars
// act as length-1. Failing timesteps each emit an atom; a passing rule
// emits only its first-timestep atom to bound evidence size while keeping
// proof of execution.
type CrossFieldConsistency struct{}

// NewCrossFieldConsistency creates the cross-field node.
func NewCrossFieldConsistency() *CrossFieldConsistency { return &CrossFieldConsistency{} }

func (v *CrossFieldConsistency) ID() string { return CrossFieldID }

func (v *CrossFieldConsistency) EvidenceType() domain.EvidenceType { return domain.EvidenceCrossField }

func (v *CrossFieldConsistency) Capabilities() []string {
	return []string{"cross_field_consistency"}
}

func (v *CrossFieldConsistency) Verify(_ context.Context, _ domain.Sample, fields domain.FieldMap, vctx *ports.VerifyContext) ([]domain.Atom, error) {
	var atoms []domain.Atom
	atoms = append(atoms, v.altitudeParity(fields, vctx)...)
	atoms = append(atoms, v.speedParity(fields, vctx)...)
	atoms = append(atoms, v.trackParity(fields, vctx)...)
	return atoms, nil
}

func (v *CrossFieldConsistency) altitudeParity(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	forEachTimestep(fields, []string{domain.FieldGPSAltitude, domain.FieldBaroAltitude},
		func(idx, steps int, vals []float64) {
			gps, baro := vals[0], vals[1]
			diff := math.Abs(gps - baro)
			severity, pass := severityByBands(diff, altitudeWarnFt, altitudeCriticalFt)
			if !pass || idx == 0 {
				atoms = append(atoms, v.ruleAtom(vctx, "GPS_Alt_vs_Baro_Alt", pass, severity,
					fmt.Sprintf("%sGPS Altitude (%.1fft) vs Baro Altitude (%.1fft) difference: %.1fft",
						timestepPrefix(idx, steps), gps, baro, diff),
					map[string]any{
						"rule":       "altitude_consistency",
						"gps_alt":    gps,
						"baro_alt":   baro,
						"difference": diff,
						"threshold":  altitudeWarnFt,
						"timestep":   idx,
					}))
			}
		})
	return atoms
}

func (v *CrossFieldConsistency) speedParity(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	forEachTimestep(fields, []string{domain.FieldGroundSpeed, domain.FieldVelocityE, domain.FieldVelocityN},
		func(idx, steps int, vals []float64) {
			gs, ve, vn := vals[0], vals[1], vals[2]
			calc := math.Hypot(ve*msToKt, vn*msToKt)
			diff := math.Abs(gs - calc)
			severity, pass := severityByBands(diff, speedWarnKt, speedCriticalKt)
			if !pass || idx == 0 {
				atoms = append(atoms, v.ruleAtom(vctx, "Ground_Speed_vs_Velocity", pass, severity,
					fmt.Sprintf("%sGround Speed (%.1fkt) vs calculated from Ve/Vn (%.1fkt) difference: %.1fkt",
						timestepPrefix(idx, steps), gs, calc, diff),
					map[string]any{
						"rule":          "speed_consistency",
						"ground_speed":  gs,
						"calculated_gs": calc,
						"difference":    diff,
						"threshold":     speedWarnKt,
						"timestep":      idx,
					}))
			}
		})
	return atoms
}

func (v *CrossFieldConsistency) trackParity(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	forEachTimestep(fields, []string{domain.FieldGroundTrack, domain.FieldVelocityE, domain.FieldVelocityN},
		func(idx, steps int, vals []float64) {
			track, ve, vn := vals[0], vals[1], vals[2]
			calc := math.Atan2(ve, vn) * 180 / math.Pi
			if calc < 0 {
				calc += 360
			}
			diff := domain.CircularDiff(track, calc)
			severity, pass := severityByBands(diff, trackWarnDeg, trackCriticalDeg)
			if !pass || idx == 0 {
				atoms = append(atoms, v.ruleAtom(vctx, "Track_vs_Velocity_Direction", pass, severity,
					fmt.Sprintf("%sTrack (%.1f deg) vs calculated from Ve/Vn (%.1f deg) difference: %.1f deg",
						timestepPrefix(idx, steps), track, calc, diff),
					map[string]any{
						"rule":             "track_consistency",
						"track":            track,
						"calculated_track": calc,
						"difference":       diff,
						"threshold":        trackWarnDeg,
						"timestep":         idx,
					}))
			}
		})
	return atoms
}

func (v *CrossFieldConsistency) ruleAtom(vctx *ports.VerifyContext, field string, pass bool, severity domain.Severity, msg string, meta map[string]any) domain.Atom {
	meta["checker"] = CrossFieldID
	if pass {
		return domain.PassAtom(vctx.IDs.Next(), domain.EvidenceCrossField, field, domain.ScopeCrossField, msg, meta)
	}
	return domain.FailAtom(vctx.IDs.Next(), domain.EvidenceCrossField, field, severity, domain.ScopeCrossField, msg, meta)
}

// severityByBands classifies a difference against warn/critical bands:
// pass at or below warn, warning at or below critical, critical above.
func severityByBands(diff, warn, critical float64) (domain.Severity, bool) {
	switch {
	case diff > critical:
		return domain.SeverityCritical, false
	case diff > warn:
		return domain.SeverityWarning, false
	default:
		return domain.SeverityInfo, true
	}
}

// forEachTimestep zips the named fields element-wise, calling fn once per
// timestep with parsed values. The iteration stops at the shortest operand;
// timesteps containing a non-numeric value are skipped. Fields absent from
// the map suppress the rule entirely.
func forEachTimestep(fields domain.FieldMap, names []string, fn func(idx, steps int, vals []float64)) {
	series := make([][]any, len(names))
	steps := -1
	for i, name := range names {
		if !fields.Has(name) {
			return
		}
		series[i] = fields.Values(name)
		if steps == -1 || len(series[i]) < steps {
			steps = len(series[i])
		}
	}
	if steps <= 0 {
		return
	}
	for idx := 0; idx < steps; idx++ {
		vals := make([]float64, len(series))
		ok := true
		for i := range series {
			f, good := domain.Float(series[i][idx])
			if !good {
				ok = false
				break
			}
			vals[i] = f
		}
		if ok {
			fn(idx, steps, vals)
		}
	}
}

func timestepPrefix(idx, steps int) string {
	if steps > 1 {
		return fmt.Sprintf("[t=%d] ", idx)
	}
	return ""
}
