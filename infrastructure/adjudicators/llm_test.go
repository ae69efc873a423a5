package adjudicators

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

// mockLLMClient returns canned responses and counts calls.
type mockLLMClient struct {
	responses []string
	errs      []error
	calls     int
}

var _ ports.LLMClient = (*mockLLMClient)(nil)

func (m *mockLLMClient) Complete(_ context.Context, _ string, _ map[string]any) (string, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	if len(m.responses) > 0 {
		return m.responses[len(m.responses)-1], nil
	}
	return "", errors.New("no canned response")
}

func (m *mockLLMClient) EstimateTokens(text string) (int, error) { return len(text) / 4, nil }
func (m *mockLLMClient) GetModel() string                        { return "mock-judge" }

// goodJudgeJSON builds a schema-complete response citing the given IDs.
func goodJudgeJSON(t *testing.T, grades map[string]string, citedIDs []string) string {
	t.Helper()
	vector := map[string]string{}
	reasoning := map[string]string{}
	for _, dim := range domain.Dimensions {
		vector[string(dim)] = "A"
		reasoning[string(dim)] = "clean evidence"
	}
	for dim, g := range grades {
		vector[dim] = g
	}
	findings := []map[string]any{}
	if len(citedIDs) > 0 {
		findings = append(findings, map[string]any{
			"reason":       "violations found",
			"evidence_ids": citedIDs,
			"dimension":    string(domain.DimSafetyConstraint),
			"severity":     "critical",
		})
	}
	raw, err := json.Marshal(map[string]any{
		"grade_vector":      vector,
		"overall_grade":     "A",
		"critical_findings": findings,
		"checklist":         []any{},
		"reasoning":         reasoning,
	})
	require.NoError(t, err)
	return string(raw)
}

func judgeInput(atoms ...domain.Atom) ports.AdjudicationInput {
	pack := &domain.EvidencePack{}
	pack.Append(atoms...)
	return ports.AdjudicationInput{
		TaskID:   domain.TaskS1,
		Evidence: pack,
		ProtocolResult: domain.ProtocolResult{
			Parsing:           domain.ParsingResult{Success: true},
			FieldCompleteness: domain.FieldCompleteness{CompletenessRate: 100},
		},
		TaskSpec: map[string]any{"task_id": "S1", "protocol": "single_value"},
	}
}

func TestLLMJudgeAcceptsValidResponse(t *testing.T) {
	in := judgeInput(domain.PassAtom("EVID_0001", domain.EvidenceNumericValidity, "Roll (deg)", domain.ScopeField, "ok", nil))
	client := &mockLLMClient{responses: []string{goodJudgeJSON(t, nil, []string{"EVID_0001"})}}
	judge, err := NewLLMJudge(client, 3)
	require.NoError(t, err)

	out, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.GradeA, out.GradeVector[domain.DimProtocolSchema])
	assert.Equal(t, domain.GradeA, out.OverallGrade)
	assert.Equal(t, "llm", out.Metadata["adjudicator"])
	assert.Equal(t, "mock-judge", out.Metadata["model"])
	assert.NotEmpty(t, out.Metadata["prompt_hash"])
}

func TestLLMJudgeToleratesFencedResponse(t *testing.T) {
	in := judgeInput()
	fenced := "Here is my judgment:\n```json\n" + goodJudgeJSON(t, nil, nil) + "\n```"
	client := &mockLLMClient{responses: []string{fenced}}
	judge, err := NewLLMJudge(client, 0)
	require.NoError(t, err)

	out, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.GradeA, out.OverallGrade)
}

func TestLLMJudgeCitationViolationFallsBack(t *testing.T) {
	in := judgeInput(domain.FailAtom("EVID_0001", domain.EvidenceRangeSanity, "Roll (deg)",
		domain.SeverityCritical, domain.ScopeField, "out of range", nil))
	client := &mockLLMClient{responses: []string{goodJudgeJSON(t, nil, []string{"EVID_9999"})}}
	judge, err := NewLLMJudge(client, 0)
	require.NoError(t, err)

	out, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)
	for _, dim := range domain.Dimensions {
		assert.Equal(t, domain.GradeD, out.GradeVector[dim])
	}
	assert.Equal(t, "citation_violation", out.Metadata["fallback_reason"])
	// Fallback findings are seeded from the critical failing atoms.
	require.NotEmpty(t, out.CriticalFindings)
	assert.Equal(t, []string{"EVID_0001"}, out.CriticalFindings[0].EvidenceIDs)
}

func TestLLMJudgeMonotonicityViolationFallsBack(t *testing.T) {
	// Critical safety atom but the judge graded safety A.
	in := judgeInput(domain.FailAtom("EVID_0001", domain.EvidenceSafety, "Rapid_Descent",
		domain.SeverityCritical, domain.ScopeSample, "descending", nil))
	client := &mockLLMClient{responses: []string{
		goodJudgeJSON(t, map[string]string{string(domain.DimSafetyConstraint): "A"}, []string{"EVID_0001"}),
	}}
	judge, err := NewLLMJudge(client, 0)
	require.NoError(t, err)

	out, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.GradeD, out.GradeVector[domain.DimSafetyConstraint])
	assert.Equal(t, "monotonicity_violation", out.Metadata["fallback_reason"])
}

func TestLLMJudgeMonotonicityAcceptsCWithCriticalSafety(t *testing.T) {
	in := judgeInput(domain.FailAtom("EVID_0001", domain.EvidenceSafety, "Rapid_Descent",
		domain.SeverityCritical, domain.ScopeSample, "descending", nil))
	client := &mockLLMClient{responses: []string{
		goodJudgeJSON(t, map[string]string{string(domain.DimSafetyConstraint): "C"}, []string{"EVID_0001"}),
	}}
	judge, err := NewLLMJudge(client, 0)
	require.NoError(t, err)

	out, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.GradeC, out.GradeVector[domain.DimSafetyConstraint])
}

func TestLLMJudgeMalformedJSONFallsBack(t *testing.T) {
	in := judgeInput()
	client := &mockLLMClient{responses: []string{"this is not json at all"}}
	judge, err := NewLLMJudge(client, 0)
	require.NoError(t, err)

	out, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.GradeD, out.OverallGrade)
	assert.Equal(t, "parse_error", out.Metadata["fallback_reason"])
}

func TestLLMJudgeRetriesThenFallsBack(t *testing.T) {
	in := judgeInput()
	transient := errors.New("rate limited")
	client := &mockLLMClient{errs: []error{transient, transient, transient}}
	judge, err := NewLLMJudge(client, 2)
	require.NoError(t, err)

	out, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, domain.GradeD, out.OverallGrade)
	assert.Equal(t, "llm_unreachable", out.Metadata["fallback_reason"])
}

func TestLLMJudgeCacheDeterminism(t *testing.T) {
	in := judgeInput(domain.PassAtom("EVID_0001", domain.EvidenceNumericValidity, "Roll (deg)", domain.ScopeField, "ok", nil))
	client := &mockLLMClient{responses: []string{goodJudgeJSON(t, nil, nil)}}
	judge, err := NewLLMJudge(client, 0)
	require.NoError(t, err)

	first, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)
	second, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)

	// Identical inputs hit the cache: one LLM call, verbatim output
	// including judge metadata.
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, first, second)

	// A different evidence population misses the cache.
	other := judgeInput(domain.FailAtom("EVID_0001", domain.EvidenceRangeSanity, "Roll (deg)",
		domain.SeverityWarning, domain.ScopeField, "out", nil))
	_, err = judge.Adjudicate(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestLLMJudgeRequiresClient(t *testing.T) {
	_, err := NewLLMJudge(nil, 3)
	assert.Error(t, err)
}

func TestLLMJudgeQualityMonotonicity(t *testing.T) {
	in := judgeInput()
	in.ConditionalError = domain.NewConditionalError(150, 250) // MAE score 22.5
	client := &mockLLMClient{responses: []string{
		goodJudgeJSON(t, map[string]string{string(domain.DimPredictiveQuality): "A"}, nil),
	}}
	judge, err := NewLLMJudge(client, 0)
	require.NoError(t, err)

	out, err := judge.Adjudicate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "monotonicity_violation", out.Metadata["fallback_reason"])
}
