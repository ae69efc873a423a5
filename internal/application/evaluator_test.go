package application_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerograde/flygrade/infrastructure/adjudicators"
	"github.com/aerograde/flygrade/infrastructure/verifiers"
	"github.com/aerograde/flygrade/internal/application"
	"github.com/aerograde/flygrade/internal/domain"
)

// buildTestGraph wires the six production verifier nodes.
func buildTestGraph(t *testing.T, cfg *application.Config) *application.VerifierGraph {
	t.Helper()
	graph := application.NewVerifierGraph()
	angles := cfg.AngleFieldSet()

	require.NoError(t, graph.Add(verifiers.NewNumericValidity()))
	require.NoError(t, graph.Add(verifiers.NewRangeSanity(cfg.LimitPairs()), verifiers.NumericValidityID))
	require.NoError(t, graph.Add(verifiers.NewJumpDynamics(cfg.JumpThresholds, angles), verifiers.NumericValidityID))
	require.NoError(t, graph.Add(verifiers.NewCrossFieldConsistency(), verifiers.RangeSanityID))
	require.NoError(t, graph.Add(verifiers.NewPhysicsConstraint(cfg.JumpThresholds, angles), verifiers.RangeSanityID))
	require.NoError(t, graph.Add(verifiers.NewSafetyConstraint(), verifiers.RangeSanityID))
	return graph
}

// newTestEvaluator wires the full graph with the deterministic adjudicator
// and a fixed clock.
func newTestEvaluator(t *testing.T) (*application.SampleEvaluator, *application.PredictionHistory) {
	t.Helper()
	cfg := application.DefaultConfig()
	graph := buildTestGraph(t, cfg)
	history := application.NewPredictionHistory()
	ledger := application.NewLedger(cfg)
	evaluator := application.NewSampleEvaluator(cfg, graph, adjudicators.NewRuleAdjudicator(), history, ledger,
		application.WithClock(func() time.Time {
			return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
		}))
	return evaluator, history
}

// validState returns a physically consistent nineteen-field prediction.
func validState() map[string]any {
	return map[string]any{
		domain.FieldLatitude:        37.5,
		domain.FieldLongitude:       -122.3,
		domain.FieldGPSAltitude:     1000.0,
		domain.FieldGroundTrack:     45.0,
		domain.FieldMagneticHeading: 45.0,
		domain.FieldVelocityE:       36.0,
		domain.FieldVelocityN:       36.0,
		domain.FieldVelocityU:       0.5,
		domain.FieldGroundSpeed:     100.0,
		domain.FieldRoll:            2.0,
		domain.FieldPitch:           3.0,
		domain.FieldTurnRate:        1.0,
		domain.FieldSlipSkid:        0.1,
		domain.FieldNormalAccel:     1.0,
		domain.FieldLateralAccel:    0.1,
		domain.FieldVerticalSpeed:   300.0,
		domain.FieldAirspeed:        100.0,
		domain.FieldBaroAltitude:    1050.0,
		domain.FieldPressureAlt:     1020.0,
	}
}

func replyFor(t *testing.T, state map[string]any) domain.ModelReply {
	t.Helper()
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	return domain.ModelReply{ModelName: "test-model", SampleID: "S1_000", TaskID: domain.TaskS1, Response: string(raw)}
}

func sampleFor(task domain.TaskID, gold map[string]any) domain.Sample {
	s := domain.Sample{SampleID: string(task) + "_000", TaskID: task}
	if gold != nil {
		s.Gold = domain.Gold{Available: true, Fields: gold}
	}
	return s
}

func TestEvaluateValidScalarSample(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	state := validState()

	rec := evaluator.Evaluate(context.Background(), sampleFor(domain.TaskS1, validState()), replyFor(t, state))

	assert.Equal(t, domain.Eligible, rec.AgentOutput.Adjudication)
	for _, a := range rec.EvidencePack.Atoms {
		assert.True(t, a.Pass, "unexpected failure: %s %s", a.ID, a.Message)
		assert.Equal(t, domain.SeverityInfo, a.Severity)
	}

	require.NotNil(t, rec.Scores)
	for _, dim := range domain.Dimensions {
		if dim == domain.DimPredictiveQuality {
			continue
		}
		assert.Equal(t, domain.GradeA, rec.Scores.GradeVector[dim], "dimension %s", dim)
	}
	assert.InDelta(t, 100.0, rec.Scores.OverallScore, 1e-9)
	assert.Equal(t, domain.GradeA, rec.Scores.OverallGrade)
	require.NotNil(t, rec.Scores.ConditionalError)
	assert.InDelta(t, 0.0, rec.Scores.ConditionalError.MAE, 1e-9)

	assert.NotEmpty(t, rec.Trace.ConfigHash)
	assert.NotEmpty(t, rec.Trace.SchemaHash)
	assert.NotEmpty(t, rec.Trace.ConstraintLibHash)
}

func TestEvaluateNaNInvasion(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	state := validState()
	state[domain.FieldLatitude] = "NaN"

	rec := evaluator.Evaluate(context.Background(), sampleFor(domain.TaskS1, nil), replyFor(t, state))

	assert.Equal(t, domain.Ineligible, rec.AgentOutput.Adjudication)

	var failing []domain.Atom
	for _, a := range rec.EvidencePack.ByType(domain.EvidenceNumericValidity) {
		if !a.Pass {
			failing = append(failing, a)
		}
	}
	require.Len(t, failing, 1)
	assert.Equal(t, domain.FieldLatitude, failing[0].Field)
	assert.Equal(t, domain.SeverityCritical, failing[0].Severity)

	// Protocol monotonicity: a critical numeric-validity atom caps the
	// protocol dimension at D.
	assert.Equal(t, domain.GradeD, rec.Scores.GradeVector[domain.DimProtocolSchema])

	// Attribution cites the failing atom's ID.
	require.NotEmpty(t, rec.AgentOutput.Attribution)
	assert.Contains(t, rec.AgentOutput.Attribution[0].EvidenceIDs, failing[0].ID)

	// No range atom is emitted for the invalid field.
	for _, a := range rec.EvidencePack.ByType(domain.EvidenceRangeSanity) {
		assert.NotEqual(t, domain.FieldLatitude, a.Field)
	}
}

func TestEvaluateAltitudeDisagreement(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	state := validState()
	state[domain.FieldGPSAltitude] = 5000.0
	state[domain.FieldBaroAltitude] = 8200.0

	rec := evaluator.Evaluate(context.Background(), sampleFor(domain.TaskS1, nil), replyFor(t, state))

	var crossFailures []domain.Atom
	for _, a := range rec.EvidencePack.ByType(domain.EvidenceCrossField) {
		if !a.Pass {
			crossFailures = append(crossFailures, a)
		}
	}
	require.Len(t, crossFailures, 1)
	assert.Equal(t, domain.SeverityCritical, crossFailures[0].Severity)
	assert.Equal(t, "GPS_Alt_vs_Baro_Alt", crossFailures[0].Field)

	assert.Equal(t, domain.GradeD, rec.Scores.GradeVector[domain.DimPhysicsConsistency])
	assert.Equal(t, domain.GradeA, rec.Scores.GradeVector[domain.DimProtocolSchema])
	assert.Equal(t, domain.GradeA, rec.Scores.GradeVector[domain.DimFieldValidity])
	assert.Equal(t, domain.GradeA, rec.Scores.GradeVector[domain.DimSafetyConstraint])

	// Mean of {1, 1, 0, 1, 0} synthesizes to C.
	assert.InDelta(t, 60.0, rec.Scores.OverallScore, 1e-9)
	assert.Equal(t, domain.GradeC, rec.Scores.OverallGrade)
}

func TestEvaluateRapidDescent(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	state := validState()
	state[domain.FieldGPSAltitude] = 5000.0
	state[domain.FieldBaroAltitude] = 5050.0
	state[domain.FieldVerticalSpeed] = -3500.0

	rec := evaluator.Evaluate(context.Background(), sampleFor(domain.TaskS1, nil), replyFor(t, state))

	var safetyFailures []domain.Atom
	for _, a := range rec.EvidencePack.ByType(domain.EvidenceSafety) {
		if !a.Pass {
			safetyFailures = append(safetyFailures, a)
		}
	}
	require.Len(t, safetyFailures, 1)
	assert.Equal(t, domain.SeverityCritical, safetyFailures[0].Severity)
	assert.Equal(t, "Rapid_Descent", safetyFailures[0].Field)

	assert.Equal(t, domain.GradeD, rec.Scores.GradeVector[domain.DimSafetyConstraint])
	assert.Equal(t, domain.Ineligible, rec.AgentOutput.Adjudication)
}

func TestEvaluateMultiStepContinuityViolation(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	state := map[string]any{
		domain.FieldGPSAltitude: []any{1000.0, 1010.0, 5000.0, 5010.0},
	}
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	reply := domain.ModelReply{ModelName: "test-model", SampleID: "M3_000", TaskID: domain.TaskM3, Response: string(raw)}

	rec := evaluator.Evaluate(context.Background(), sampleFor(domain.TaskM3, nil), reply)

	var jumpFailures, physicsFailures []domain.Atom
	for _, a := range rec.EvidencePack.ByType(domain.EvidenceJumpDynamics) {
		if !a.Pass {
			jumpFailures = append(jumpFailures, a)
		}
	}
	for _, a := range rec.EvidencePack.ByType(domain.EvidencePhysics) {
		if !a.Pass {
			physicsFailures = append(physicsFailures, a)
		}
	}
	require.Len(t, jumpFailures, 1)
	assert.InDelta(t, 3990.0, jumpFailures[0].Meta["max_change"].(float64), 1e-9)
	require.Len(t, physicsFailures, 1)
	assert.Equal(t, domain.FieldGPSAltitude+"_continuity", physicsFailures[0].Field)
	assert.Equal(t, domain.SeverityCritical, physicsFailures[0].Severity)

	assert.Equal(t, domain.GradeD, rec.Scores.GradeVector[domain.DimFieldValidity])
	assert.Equal(t, domain.GradeD, rec.Scores.GradeVector[domain.DimPhysicsConsistency])
}

func TestEvaluatePromptInjectionValue(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	state := validState()
	state[domain.FieldLatitude] = "'; DROP TABLE--"

	rec := evaluator.Evaluate(context.Background(), sampleFor(domain.TaskS1, nil), replyFor(t, state))

	var numericFailures []domain.Atom
	for _, a := range rec.EvidencePack.ByType(domain.EvidenceNumericValidity) {
		if !a.Pass {
			numericFailures = append(numericFailures, a)
		}
	}
	require.Len(t, numericFailures, 1)
	assert.Equal(t, domain.FieldLatitude, numericFailures[0].Field)

	for _, a := range rec.EvidencePack.ByType(domain.EvidenceRangeSanity) {
		assert.NotEqual(t, domain.FieldLatitude, a.Field)
	}
}

func TestEvaluateTransportFailure(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	reply := domain.ModelReply{
		ModelName: "test-model", SampleID: "S1_000", TaskID: domain.TaskS1,
		Response: "API Error: rate limit exceeded",
	}

	rec := evaluator.Evaluate(context.Background(), sampleFor(domain.TaskS1, nil), reply)

	assert.False(t, rec.ProtocolResult.Parsing.Success)
	assert.Equal(t, domain.Ineligible, rec.AgentOutput.Adjudication)
	require.Len(t, rec.EvidencePack.Atoms, 1)
	assert.Equal(t, domain.SeverityCritical, rec.EvidencePack.Atoms[0].Severity)
	for _, dim := range domain.Dimensions {
		assert.Equal(t, domain.GradeD, rec.Scores.GradeVector[dim])
	}
	assert.Zero(t, rec.Scores.OverallScore)
}

func TestEvaluateParseFailure(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	reply := domain.ModelReply{
		ModelName: "test-model", SampleID: "S1_000", TaskID: domain.TaskS1,
		Response: "I am unable to produce a prediction.",
	}

	rec := evaluator.Evaluate(context.Background(), sampleFor(domain.TaskS1, nil), reply)
	assert.False(t, rec.ProtocolResult.Parsing.Success)
	assert.Equal(t, domain.Ineligible, rec.AgentOutput.Adjudication)
	assert.Len(t, rec.EvidencePack.Atoms, 1)
}

func TestEvaluateIdempotent(t *testing.T) {
	run := func() domain.Record {
		evaluator, _ := newTestEvaluator(t)
		return evaluator.Evaluate(context.Background(), sampleFor(domain.TaskS1, validState()), replyFor(t, validState()))
	}
	a, b := run(), run()
	// Run IDs differ per ledger; everything else must be identical,
	// evidence ID ordering included.
	a.Trace.RunID, b.Trace.RunID = "", ""
	assert.Equal(t, a, b)
}

func TestJumpDynamicsHistorySensitivity(t *testing.T) {
	evaluator, history := newTestEvaluator(t)
	ctx := context.Background()

	first := evaluator.Evaluate(ctx, sampleFor(domain.TaskS1, nil), replyFor(t, validState()))
	assert.Empty(t, first.EvidencePack.ByType(domain.EvidenceJumpDynamics),
		"no prior prediction, so no jump atoms")

	// Second sample with a large altitude jump against the committed prior.
	state := validState()
	state[domain.FieldGPSAltitude] = 8000.0
	state[domain.FieldBaroAltitude] = 8050.0
	second := evaluator.Evaluate(ctx, sampleFor(domain.TaskS1, nil), replyFor(t, state))

	var jumpFailures []domain.Atom
	for _, a := range second.EvidencePack.ByType(domain.EvidenceJumpDynamics) {
		if !a.Pass && a.Field == domain.FieldGPSAltitude {
			jumpFailures = append(jumpFailures, a)
		}
	}
	require.Len(t, jumpFailures, 1)
	assert.Equal(t, domain.SeverityCritical, jumpFailures[0].Severity)

	// Removing the prior removes the jump atoms again.
	history.Reset("test-model")
	third := evaluator.Evaluate(ctx, sampleFor(domain.TaskS1, nil), replyFor(t, state))
	assert.Empty(t, third.EvidencePack.ByType(domain.EvidenceJumpDynamics))
}

func TestEvidenceIDsUniqueAndCitationsResolve(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	state := validState()
	state[domain.FieldLatitude] = "NaN"
	state[domain.FieldVerticalSpeed] = -3500.0

	rec := evaluator.Evaluate(context.Background(), sampleFor(domain.TaskS1, nil), replyFor(t, state))

	seen := map[string]struct{}{}
	for _, a := range rec.EvidencePack.Atoms {
		_, dup := seen[a.ID]
		require.False(t, dup, "duplicate evidence ID %s", a.ID)
		seen[a.ID] = struct{}{}
	}

	ids := rec.EvidencePack.IDs()
	for _, attr := range rec.AgentOutput.Attribution {
		require.NotEmpty(t, attr.EvidenceIDs)
		for _, id := range attr.EvidenceIDs {
			_, ok := ids[id]
			assert.True(t, ok, "attribution cites unknown evidence %s", id)
		}
	}
	for _, item := range rec.AgentOutput.Checklist {
		for _, id := range item.EvidenceIDs {
			_, ok := ids[id]
			assert.True(t, ok, "checklist cites unknown evidence %s", id)
		}
	}
}

// Lowering a critical failing atom to warning must never lower the
// protocol or safety grade.
func TestSeverityMonotonicity(t *testing.T) {
	evaluator, _ := newTestEvaluator(t)
	ctx := context.Background()

	// Critical safety violation (vertical speed -3500).
	critState := validState()
	critState[domain.FieldGPSAltitude] = 5000.0
	critState[domain.FieldBaroAltitude] = 5050.0
	critState[domain.FieldVerticalSpeed] = -3500.0
	critRec := evaluator.Evaluate(ctx, sampleFor(domain.TaskS1, nil), critState2Reply(t, critState))

	// Warning-level violation (vertical speed -2500).
	evaluator2, _ := newTestEvaluator(t)
	warnState := validState()
	warnState[domain.FieldGPSAltitude] = 5000.0
	warnState[domain.FieldBaroAltitude] = 5050.0
	warnState[domain.FieldVerticalSpeed] = -2500.0
	warnRec := evaluator2.Evaluate(ctx, sampleFor(domain.TaskS1, nil), critState2Reply(t, warnState))

	critGrade := critRec.Scores.GradeVector[domain.DimSafetyConstraint]
	warnGrade := warnRec.Scores.GradeVector[domain.DimSafetyConstraint]
	assert.GreaterOrEqual(t, domain.GradeScore[warnGrade], domain.GradeScore[critGrade])
}

func critState2Reply(t *testing.T, state map[string]any) domain.ModelReply {
	t.Helper()
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	return domain.ModelReply{ModelName: fmt.Sprintf("model-%p", &state), SampleID: "S1_000", TaskID: domain.TaskS1, Response: string(raw)}
}
