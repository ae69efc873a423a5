package verifiers

import (
	"context"
	"fmt"
	"math"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.Verifier = (*PhysicsConstraint)(nil)

// Physics rule thresholds. These are contractual.
const (
	// Vertical speed bounds by altitude band, fpm.
	lowAltitudeFt    = 1000.0
	maxVSLowAltFpm   = 2000.0
	maxVSHighAltFpm  = 5000.0
	// Attitude limits, degrees.
	extremeAttitudeDeg = 60.0
	steepPitchDeg      = 15.0
	// Expected vertical velocity scaling: |pitch|/30 * 5 m/s, observed
	// must reach at least 30% of it.
	pitchVuScaleDeg   = 30.0
	pitchVuScaleMs    = 5.0
	pitchVuMinFract   = 0.3
	// M3 continuity allows twice the jump threshold per adjacent step;
	// exceeding 1.5x the continuity threshold is critical.
	continuityFactor         = 2.0
	continuityCriticalFactor = 1.5
)

// PhysicsConstraint checks physical plausibility: M3 trajectory continuity,
// vertical speed against altitude, and attitude against vertical velocity.
type PhysicsConstraint struct {
	jumpThresholds map[string]float64
	angleFields    map[string]struct{}
}

// NewPhysicsConstraint creates the physics node. Continuity thresholds
// derive from the jump threshold table.
func NewPhysicsConstraint(jumpThresholds map[string]float64, angleFields map[string]struct{}) *PhysicsConstraint {
	return &PhysicsConstraint{jumpThresholds: jumpThresholds, angleFields: angleFields}
}

func (v *PhysicsConstraint) ID() string { return PhysicsID }

func (v *PhysicsConstraint) EvidenceType() domain.EvidenceType { return domain.EvidencePhysics }

func (v *PhysicsConstraint) Capabilities() []string { return []string{"physics_constraints"} }

func (v *PhysicsConstraint) Verify(_ context.Context, _ domain.Sample, fields domain.FieldMap, vctx *ports.VerifyContext) ([]domain.Atom, error) {
	var atoms []domain.Atom
	if vctx.TaskID == domain.TaskM3 {
		atoms = append(atoms, v.continuity(fields, vctx)...)
	}
	atoms = append(atoms, v.velocityAltitude(fields, vctx)...)
	atoms = append(atoms, v.attitudeVelocity(fields, vctx)...)
	return atoms, nil
}

// continuity emits one summary atom per array-valued field: adjacent-step
// change must not exceed twice the field's jump threshold.
func (v *PhysicsConstraint) continuity(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	for _, field := range vctx.RequiredFields {
		base, constrained := v.jumpThresholds[field]
		if !constrained || !fields.IsArray(field) {
			continue
		}
		values := fields.Values(field)
		if len(values) < 2 {
			continue
		}
		threshold := base * continuityFactor

		violations := 0
		var maxChange float64
		for i := 1; i < len(values); i++ {
			prev, okPrev := domain.Float(values[i-1])
			curr, okCurr := domain.Float(values[i])
			if !okPrev || !okCurr {
				continue
			}
			change := math.Abs(curr - prev)
			if _, angular := v.angleFields[field]; angular {
				change = domain.CircularDiff(curr, prev)
			}
			if change > threshold {
				violations++
				if change > maxChange {
					maxChange = change
				}
			}
		}

		name := field + "_continuity"
		meta := map[string]any{
			"checker":      PhysicsID,
			"rule":         "m3_array_continuity",
			"field":        field,
			"threshold":    threshold,
			"array_length": len(values),
		}
		if violations > 0 {
			meta["violations"] = violations
			meta["max_change"] = maxChange
			severity := domain.SeverityWarning
			if maxChange > threshold*continuityCriticalFactor {
				severity = domain.SeverityCritical
			}
			atoms = append(atoms, domain.FailAtom(
				vctx.IDs.Next(), domain.EvidencePhysics, name,
				severity, domain.ScopeField,
				fmt.Sprintf("Field %s has %d continuity violations (max change: %.3f > %.3f)",
					field, violations, maxChange, threshold),
				meta,
			))
			continue
		}
		atoms = append(atoms, domain.PassAtom(
			vctx.IDs.Next(), domain.EvidencePhysics, name,
			domain.ScopeField,
			fmt.Sprintf("Field %s trajectory continuity check passed", field),
			meta,
		))
	}
	return atoms
}

// velocityAltitude bounds |vertical speed| by altitude band: 2000 fpm below
// 1000 ft, 5000 fpm above. Exceedance is a warning.
func (v *PhysicsConstraint) velocityAltitude(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	forEachTimestep(fields, []string{domain.FieldGPSAltitude, domain.FieldVerticalSpeed},
		func(idx, steps int, vals []float64) {
			alt, vs := vals[0], vals[1]
			maxVS := maxVSHighAltFpm
			if alt < lowAltitudeFt {
				maxVS = maxVSLowAltFpm
			}
			pass := math.Abs(vs) <= maxVS
			if !pass || idx == 0 {
				verb := "within"
				if !pass {
					verb = "exceeds"
				}
				msg := fmt.Sprintf("%sAltitude %.1fft with vertical speed %.1ffpm %s limit (%.0ffpm)",
					timestepPrefix(idx, steps), alt, vs, verb, maxVS)
				meta := map[string]any{
					"checker":        PhysicsID,
					"rule":           "velocity_altitude_consistency",
					"altitude":       alt,
					"vertical_speed": vs,
					"max_vs":         maxVS,
					"timestep":       idx,
				}
				if pass {
					atoms = append(atoms, domain.PassAtom(vctx.IDs.Next(), domain.EvidencePhysics,
						"Velocity_Altitude_Consistency", domain.ScopeCrossField, msg, meta))
				} else {
					atoms = append(atoms, domain.FailAtom(vctx.IDs.Next(), domain.EvidencePhysics,
						"Velocity_Altitude_Consistency", domain.SeverityWarning, domain.ScopeCrossField, msg, meta))
				}
			}
		})
	return atoms
}

// attitudeVelocity rejects extreme attitudes outright and expects a steep
// pitch to show up in the vertical velocity component.
func (v *PhysicsConstraint) attitudeVelocity(fields domain.FieldMap, vctx *ports.VerifyContext) []domain.Atom {
	var atoms []domain.Atom
	forEachTimestep(fields, []string{domain.FieldRoll, domain.FieldPitch, domain.FieldVelocityU},
		func(idx, steps int, vals []float64) {
			roll, pitch, vu := vals[0], vals[1], vals[2]

			severity := domain.SeverityInfo
			pass := true
			reason := "normal"
			switch {
			case math.Abs(roll) > extremeAttitudeDeg || math.Abs(pitch) > extremeAttitudeDeg:
				severity, pass, reason = domain.SeverityCritical, false, "extreme_attitude"
			case math.Abs(pitch) > steepPitchDeg:
				expected := math.Abs(pitch) / pitchVuScaleDeg * pitchVuScaleMs
				if math.Abs(vu) < expected*pitchVuMinFract {
					severity, pass, reason = domain.SeverityWarning, false, "pitch_velocity_mismatch"
				}
			}

			if !pass || idx == 0 {
				msg := fmt.Sprintf("%sRoll=%.1f deg, Pitch=%.1f deg, Vu=%.2fm/s: %s",
					timestepPrefix(idx, steps), roll, pitch, vu, reason)
				meta := map[string]any{
					"checker":           PhysicsID,
					"rule":              "attitude_velocity_consistency",
					"roll":              roll,
					"pitch":             pitch,
					"vertical_velocity": vu,
					"reason":            reason,
					"timestep":          idx,
				}
				if pass {
					atoms = append(atoms, domain.PassAtom(vctx.IDs.Next(), domain.EvidencePhysics,
						"Attitude_Velocity_Consistency", domain.ScopeCrossField, msg, meta))
				} else {
					atoms = append(atoms, domain.FailAtom(vctx.IDs.Next(), domain.EvidencePhysics,
						"Attitude_Velocity_Consistency", severity, domain.ScopeCrossField, msg, meta))
				}
			}
		})
	return atoms
}
