package verifiers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerograde/flygrade/internal/domain"
)

func physicsVerifier() *PhysicsConstraint {
	return NewPhysicsConstraint(
		map[string]float64{domain.FieldGPSAltitude: 200},
		map[string]struct{}{},
	)
}

func TestPhysicsM3Continuity(t *testing.T) {
	v := physicsVerifier()

	tests := []struct {
		name     string
		values   []any
		pass     bool
		severity domain.Severity
	}{
		// Continuity allows up to 2x the jump threshold (400 ft).
		{"smooth", []any{1000.0, 1300.0, 1600.0}, true, domain.SeverityInfo},
		// 500 > 400 but below 1.5x (600): warning.
		{"moderate", []any{1000.0, 1500.0, 1600.0}, false, domain.SeverityWarning},
		// 3990 far beyond 600: critical.
		{"severe", []any{1000.0, 1010.0, 5000.0, 5010.0}, false, domain.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vctx := newVctx(domain.TaskM3, domain.FieldGPSAltitude)
			atoms, err := v.Verify(context.Background(), domain.Sample{},
				domain.FieldMap{domain.FieldGPSAltitude: tt.values}, vctx)
			require.NoError(t, err)
			require.Len(t, atoms, 1)
			assert.Equal(t, domain.FieldGPSAltitude+"_continuity", atoms[0].Field)
			assert.Equal(t, tt.pass, atoms[0].Pass)
			assert.Equal(t, tt.severity, atoms[0].Severity)
		})
	}
}

func TestPhysicsContinuityOnlyForM3(t *testing.T) {
	v := physicsVerifier()
	vctx := newVctx(domain.TaskS1, domain.FieldGPSAltitude)
	atoms, err := v.Verify(context.Background(), domain.Sample{},
		domain.FieldMap{domain.FieldGPSAltitude: 1000.0}, vctx)
	require.NoError(t, err)
	for _, a := range atoms {
		assert.NotContains(t, a.Field, "_continuity")
	}
}

func TestPhysicsVelocityAltitudeBands(t *testing.T) {
	v := physicsVerifier()
	tests := []struct {
		name string
		alt  float64
		vs   float64
		pass bool
	}{
		{"low altitude within", 500, 1500, true},
		{"low altitude exceeded", 500, 2500, false},
		{"high altitude within", 5000, 4500, true},
		{"high altitude exceeded", 5000, 5500, false},
		{"descent magnitude counts", 5000, -5500, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vctx := newVctx(domain.TaskS1)
			atoms, err := v.Verify(context.Background(), domain.Sample{},
				domain.FieldMap{
					domain.FieldGPSAltitude:   tt.alt,
					domain.FieldVerticalSpeed: tt.vs,
				}, vctx)
			require.NoError(t, err)
			require.Len(t, atoms, 1)
			assert.Equal(t, "Velocity_Altitude_Consistency", atoms[0].Field)
			assert.Equal(t, tt.pass, atoms[0].Pass)
			if !tt.pass {
				assert.Equal(t, domain.SeverityWarning, atoms[0].Severity)
			}
		})
	}
}

func TestPhysicsAttitudeVelocity(t *testing.T) {
	v := physicsVerifier()
	tests := []struct {
		name     string
		roll     float64
		pitch    float64
		vu       float64
		pass     bool
		severity domain.Severity
		reason   string
	}{
		{"normal", 5, 3, 0.5, true, domain.SeverityInfo, "normal"},
		{"extreme roll", 75, 3, 0.5, false, domain.SeverityCritical, "extreme_attitude"},
		{"extreme pitch", 5, -70, 0.5, false, domain.SeverityCritical, "extreme_attitude"},
		// Pitch 30 expects ~5 m/s vertical velocity; 1.0 < 30% of 5.
		{"steep pitch without climb", 5, 30, 1.0, false, domain.SeverityWarning, "pitch_velocity_mismatch"},
		{"steep pitch with climb", 5, 30, 3.0, true, domain.SeverityInfo, "normal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vctx := newVctx(domain.TaskS1)
			atoms, err := v.Verify(context.Background(), domain.Sample{},
				domain.FieldMap{
					domain.FieldRoll:      tt.roll,
					domain.FieldPitch:     tt.pitch,
					domain.FieldVelocityU: tt.vu,
				}, vctx)
			require.NoError(t, err)
			require.Len(t, atoms, 1)
			assert.Equal(t, tt.pass, atoms[0].Pass)
			assert.Equal(t, tt.severity, atoms[0].Severity)
			assert.Equal(t, tt.reason, atoms[0].Meta["reason"])
		})
	}
}
