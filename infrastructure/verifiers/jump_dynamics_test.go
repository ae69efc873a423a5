package verifiers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerograde/flygrade/internal/domain"
)

func jumpVerifier() *JumpDynamics {
	return NewJumpDynamics(
		map[string]float64{
			"GPS Altitude (WGS84 ft)":     200,
			"GPS Ground Track (deg true)": 30,
		},
		map[string]struct{}{"GPS Ground Track (deg true)": {}},
	)
}

func TestJumpDynamicsNoPriorNoAtom(t *testing.T) {
	v := jumpVerifier()
	vctx := newVctx(domain.TaskS1, "GPS Altitude (WGS84 ft)")
	atoms, err := v.Verify(context.Background(), domain.Sample{}, domain.FieldMap{"GPS Altitude (WGS84 ft)": 1000.0}, vctx)
	require.NoError(t, err)
	assert.Empty(t, atoms)
}

func TestJumpDynamicsSingleStep(t *testing.T) {
	v := jumpVerifier()
	tests := []struct {
		name     string
		previous any
		current  float64
		pass     bool
		severity domain.Severity
	}{
		{"within threshold", 1000.0, 1100.0, true, domain.SeverityInfo},
		{"warning ratio", 1000.0, 1350.0, false, domain.SeverityWarning},
		{"critical ratio", 1000.0, 1500.0, false, domain.SeverityCritical},
		{"array prior uses last element", []any{900.0, 1000.0}, 1100.0, true, domain.SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vctx := newVctx(domain.TaskS1, "GPS Altitude (WGS84 ft)")
			vctx.Previous = map[string]any{"GPS Altitude (WGS84 ft)": tt.previous}
			atoms, err := v.Verify(context.Background(), domain.Sample{},
				domain.FieldMap{"GPS Altitude (WGS84 ft)": tt.current}, vctx)
			require.NoError(t, err)
			require.Len(t, atoms, 1)
			assert.Equal(t, tt.pass, atoms[0].Pass)
			assert.Equal(t, tt.severity, atoms[0].Severity)
		})
	}
}

func TestJumpDynamicsAngularWraparound(t *testing.T) {
	v := jumpVerifier()
	vctx := newVctx(domain.TaskS1, "GPS Ground Track (deg true)")
	vctx.Previous = map[string]any{"GPS Ground Track (deg true)": 350.0}

	// 350 -> 10 is a 20 degree change across the wrap, under the threshold.
	atoms, err := v.Verify(context.Background(), domain.Sample{},
		domain.FieldMap{"GPS Ground Track (deg true)": 10.0}, vctx)
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.True(t, atoms[0].Pass)
	assert.InDelta(t, 20.0, atoms[0].Meta["max_change"].(float64), 1e-9)
}

func TestJumpDynamicsMultiStepArray(t *testing.T) {
	v := jumpVerifier()
	vctx := newVctx(domain.TaskM3, "GPS Altitude (WGS84 ft)")

	atoms, err := v.Verify(context.Background(), domain.Sample{},
		domain.FieldMap{"GPS Altitude (WGS84 ft)": []any{1000.0, 1010.0, 5000.0, 5010.0}}, vctx)
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.False(t, atoms[0].Pass)
	assert.Equal(t, domain.SeverityCritical, atoms[0].Severity)
	assert.InDelta(t, 3990.0, atoms[0].Meta["max_change"].(float64), 1e-9)
}

func TestJumpDynamicsM3PassingArray(t *testing.T) {
	v := jumpVerifier()
	vctx := newVctx(domain.TaskM3, "GPS Altitude (WGS84 ft)")

	atoms, err := v.Verify(context.Background(), domain.Sample{},
		domain.FieldMap{"GPS Altitude (WGS84 ft)": []any{1000.0, 1050.0, 1100.0}}, vctx)
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.True(t, atoms[0].Pass)
}
