package adjudicators

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.Adjudicator = (*LLMJudge)(nil)

// judgeResponse is the JSON contract the judge model must return.
type judgeResponse struct {
	GradeVector      map[string]string `json:"grade_vector"`
	OverallGrade     string            `json:"overall_grade"`
	CriticalFindings []judgeFinding    `json:"critical_findings"`
	Checklist        []judgeCheckItem  `json:"checklist"`
	Reasoning        map[string]string `json:"reasoning"`
}

type judgeFinding struct {
	Reason      string   `json:"reason"`
	EvidenceIDs []string `json:"evidence_ids"`
	Dimension   string   `json:"dimension"`
	Severity    string   `json:"severity"`
}

type judgeCheckItem struct {
	ItemID       string   `json:"item_id"`
	ConstraintID string   `json:"constraint_id"`
	EvidenceIDs  []string `json:"evidence_ids"`
	Status       string   `json:"status"`
	Description  string   `json:"description,omitempty"`
}

// LLMJudge delegates grading to an external model under strict validation:
// the response must be schema-complete, cite only existing evidence IDs,
// and respect the monotonicity constraints. Any violation falls back to the
// deterministic all-D verdict. Results are cached on a content hash of the
// evidence summary plus task spec so identical inputs reproduce identical
// outputs, judge metadata included, across reruns within a process.
type LLMJudge struct {
	client      ports.LLMClient
	rubric      domain.Rubric
	temperature float64
	maxTokens   int
	maxRetries  int
	metrics     ports.MetricsCollector

	mu    sync.Mutex
	cache map[string]domain.Adjudication
}

// JudgeOption customizes an LLMJudge.
type JudgeOption func(*LLMJudge)

// WithJudgeMetrics attaches a metrics collector for cache observability.
func WithJudgeMetrics(m ports.MetricsCollector) JudgeOption {
	return func(j *LLMJudge) { j.metrics = m }
}

// WithMaxTokens overrides the response token budget.
func WithMaxTokens(n int) JudgeOption {
	return func(j *LLMJudge) { j.maxTokens = n }
}

// NewLLMJudge creates the judge adjudicator. Temperature is pinned to zero;
// determinism is part of the contract.
func NewLLMJudge(client ports.LLMClient, maxRetries int, opts ...JudgeOption) (*LLMJudge, error) {
	if client == nil {
		return nil, fmt.Errorf("LLM client cannot be nil")
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	j := &LLMJudge{
		client:      client,
		rubric:      domain.DefaultRubric(),
		temperature: 0,
		maxTokens:   2000,
		maxRetries:  maxRetries,
		cache:       make(map[string]domain.Adjudication),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

func (j *LLMJudge) Name() string { return "llm" }

// Model returns the judge model identifier for record traces.
func (j *LLMJudge) Model() string { return j.client.GetModel() }

// Adjudicate builds the evidence-only prompt, queries the judge with
// bounded retries, validates the response, and caches the outcome. It
// never returns an error for judge failures; those degrade to the
// deterministic fallback with the reason recorded in metadata.
func (j *LLMJudge) Adjudicate(ctx context.Context, in ports.AdjudicationInput) (domain.Adjudication, error) {
	summary := buildEvidenceSummary(in)
	key := j.cacheKey(summary, in.TaskSpec)

	j.mu.Lock()
	if cached, ok := j.cache[key]; ok {
		j.mu.Unlock()
		j.count("judge_cache_hits_total")
		return cached, nil
	}
	j.mu.Unlock()
	j.count("judge_cache_misses_total")

	prompt := j.buildPrompt(in.TaskSpec, summary)

	var response string
	var lastErr error
	for attempt := 0; attempt <= j.maxRetries; attempt++ {
		text, err := j.client.Complete(ctx, prompt, map[string]any{
			"temperature":     j.temperature,
			"max_tokens":      j.maxTokens,
			"response_format": map[string]string{"type": "json_object"},
			"system":          "You are an evaluator agent for flight prediction models. You must output valid JSON only.",
		})
		if err == nil && text != "" {
			response = text
			break
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if response == "" {
		return j.fallbackCached(key, in, "llm_unreachable", fmt.Sprintf("no response after %d attempts: %v", j.maxRetries+1, lastErr)), nil
	}

	parsed, err := j.parseResponse(response)
	if err != nil {
		return j.fallbackCached(key, in, "parse_error", err.Error()), nil
	}

	if errs := j.validateCitations(parsed, in.Evidence); len(errs) > 0 {
		return j.fallbackCached(key, in, "citation_violation", strings.Join(errs, "; ")), nil
	}
	if errs := j.validateMonotonicity(parsed, summary); len(errs) > 0 {
		return j.fallbackCached(key, in, "monotonicity_violation", strings.Join(errs, "; ")), nil
	}

	adj := j.toAdjudication(parsed, prompt, key)
	j.mu.Lock()
	j.cache[key] = adj
	j.mu.Unlock()
	return adj, nil
}

func (j *LLMJudge) count(metric string) {
	if j.metrics != nil {
		j.metrics.RecordCounter(metric, 1, map[string]string{"model": j.client.GetModel()})
	}
}

// cacheKey hashes the canonical JSON of the evidence summary and task spec.
func (j *LLMJudge) cacheKey(summary *evidenceSummary, taskSpec map[string]any) string {
	raw, err := json.Marshal(map[string]any{
		"evidence_summary": summary,
		"task_spec":        taskSpec,
	})
	if err != nil {
		raw = []byte(err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:32]
}

func (j *LLMJudge) buildPrompt(taskSpec map[string]any, summary *evidenceSummary) string {
	specJSON, _ := json.MarshalIndent(taskSpec, "", "  ")
	summaryJSON, _ := json.MarshalIndent(summary, "", "  ")

	var b strings.Builder
	b.WriteString("You are an evaluator agent for flight prediction models.\n")
	b.WriteString("Your task is to evaluate model outputs based on evidence atoms and a rubric.\n")
	b.WriteString("You must ONLY use the provided evidence atoms - do not make subjective judgments.\n\n")

	b.WriteString("## Evaluation Rubric\n")
	b.WriteString(j.rubric.Text())
	b.WriteString("\n## Task Specification\n")
	b.Write(specJSON)
	b.WriteString("\n\n## Evidence Summary\n")
	b.WriteString("The following evidence atoms were collected by automated verifiers:\n")
	b.Write(summaryJSON)
	b.WriteString("\n\n## Required Output Format\n")
	b.WriteString("You must output a JSON object with the following structure:\n")
	b.WriteString(judgeSchemaExample)
	b.WriteString("\n\n## Constraints\n")
	b.WriteString("1. You MUST cite evidence IDs for all findings. Do not make claims without evidence.\n")
	b.WriteString("2. Follow monotonicity rules:\n")
	b.WriteString("   - If protocol fails (parsing failed OR critical numeric validity), Protocol dimension cannot be A or B\n")
	b.WriteString("   - If safety has critical violation, Safety dimension cannot be A or B\n")
	b.WriteString("   - If prediction error is extremely poor, Quality dimension cannot be A\n")
	b.WriteString("3. Overall grade should be the mean of dimension grades (rounded to nearest).\n\n")
	b.WriteString("Now evaluate the evidence and output your judgment in the required JSON format.")
	return b.String()
}

const judgeSchemaExample = `{
  "grade_vector": {
    "protocol_schema_compliance": "A|B|C|D",
    "field_validity_local_dynamics": "A|B|C|D",
    "physics_cross_field_consistency": "A|B|C|D",
    "safety_constraint_satisfaction": "A|B|C|D",
    "predictive_quality_reliability": "A|B|C|D"
  },
  "overall_grade": "A|B|C|D",
  "critical_findings": [
    {"reason": "...", "evidence_ids": ["EVID_0001"], "dimension": "...", "severity": "critical"}
  ],
  "checklist": [
    {"item_id": "CHECK_001", "constraint_id": "NUMERIC_VALIDITY", "evidence_ids": ["EVID_0001"], "status": "pass|fail", "description": "..."}
  ],
  "reasoning": {
    "protocol_schema_compliance": "...",
    "field_validity_local_dynamics": "...",
    "physics_cross_field_consistency": "...",
    "safety_constraint_satisfaction": "...",
    "predictive_quality_reliability": "..."
  }
}`

// parseResponse decodes and schema-validates the judge output. The JSON may
// stand alone, sit in a fenced block, or be embedded in surrounding prose; a
// response with no JSON object in it is a violation.
func (j *LLMJudge) parseResponse(text string) (*judgeResponse, error) {
	jsonText := extractJSONObject(text)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON object in judge response")
	}
	var parsed judgeResponse
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON from judge: %w", err)
	}
	if parsed.GradeVector == nil || parsed.Reasoning == nil {
		return nil, fmt.Errorf("judge response missing required fields")
	}
	for _, dim := range domain.Dimensions {
		g, ok := parsed.GradeVector[string(dim)]
		if !ok {
			return nil, fmt.Errorf("grade_vector missing dimension %s", dim)
		}
		if !domain.Grade(g).Valid() {
			return nil, fmt.Errorf("invalid grade %q for dimension %s", g, dim)
		}
		if _, ok := parsed.Reasoning[string(dim)]; !ok {
			parsed.Reasoning[string(dim)] = "No specific reasoning provided"
		}
	}
	if !domain.Grade(parsed.OverallGrade).Valid() {
		return nil, fmt.Errorf("invalid overall_grade %q", parsed.OverallGrade)
	}
	return &parsed, nil
}

// validateCitations checks that every cited evidence ID exists in the pack.
func (j *LLMJudge) validateCitations(parsed *judgeResponse, pack *domain.EvidencePack) []string {
	ids := pack.IDs()
	var errs []string
	for _, f := range parsed.CriticalFindings {
		for _, id := range f.EvidenceIDs {
			if _, ok := ids[id]; !ok {
				errs = append(errs, fmt.Sprintf("cited evidence ID not found: %s", id))
			}
		}
	}
	for _, item := range parsed.Checklist {
		for _, id := range item.EvidenceIDs {
			if _, ok := ids[id]; !ok {
				errs = append(errs, fmt.Sprintf("cited evidence ID not found: %s", id))
			}
		}
	}
	return errs
}

// validateMonotonicity enforces the hard grade ceilings against the
// evidence the judge was shown.
func (j *LLMJudge) validateMonotonicity(parsed *judgeResponse, summary *evidenceSummary) []string {
	var errs []string

	protocolFailed := !summary.Parsing.Success || summary.criticalCount(domain.EvidenceNumericValidity) > 0
	if protocolFailed {
		g := domain.Grade(parsed.GradeVector[string(domain.DimProtocolSchema)])
		if g == domain.GradeA || g == domain.GradeB {
			errs = append(errs, "protocol failed but protocol dimension graded A or B")
		}
	}

	if summary.criticalCount(domain.EvidenceSafety) > 0 {
		g := domain.Grade(parsed.GradeVector[string(domain.DimSafetyConstraint)])
		if g == domain.GradeA || g == domain.GradeB {
			errs = append(errs, "critical safety violation but safety dimension graded A or B")
		}
	}

	if summary.ConditionalError != nil && summary.ConditionalError.MAEScore < 50 {
		g := domain.Grade(parsed.GradeVector[string(domain.DimPredictiveQuality)])
		if g == domain.GradeA {
			errs = append(errs, "extremely poor error but quality dimension graded A")
		}
	}
	return errs
}

func (j *LLMJudge) toAdjudication(parsed *judgeResponse, prompt, key string) domain.Adjudication {
	grades := make(map[domain.Dimension]domain.Grade, len(domain.Dimensions))
	reasoning := make(map[domain.Dimension]string, len(domain.Dimensions))
	for _, dim := range domain.Dimensions {
		grades[dim] = domain.Grade(parsed.GradeVector[string(dim)])
		reasoning[dim] = parsed.Reasoning[string(dim)]
	}

	findings := make([]domain.AttributionEntry, 0, len(parsed.CriticalFindings))
	for i, f := range parsed.CriticalFindings {
		findings = append(findings, domain.AttributionEntry{
			Reason:      f.Reason,
			EvidenceIDs: f.EvidenceIDs,
			Severity:    domain.Severity(f.Severity),
			Rank:        i + 1,
			Count:       len(f.EvidenceIDs),
		})
	}

	checklist := make([]domain.ChecklistItem, 0, len(parsed.Checklist))
	for _, item := range parsed.Checklist {
		checklist = append(checklist, domain.ChecklistItem{
			ItemID:       item.ItemID,
			ConstraintID: item.ConstraintID,
			EvidenceIDs:  item.EvidenceIDs,
			Status:       item.Status,
			Description:  item.Description,
		})
	}

	promptSum := sha256.Sum256([]byte(prompt))
	return domain.Adjudication{
		GradeVector:      grades,
		OverallGrade:     domain.Grade(parsed.OverallGrade),
		CriticalFindings: findings,
		Checklist:        checklist,
		Reasoning:        reasoning,
		Metadata: map[string]any{
			"adjudicator":   "llm",
			"model":         j.client.GetModel(),
			"temperature":   j.temperature,
			"prompt_hash":   hex.EncodeToString(promptSum[:])[:16],
			"evidence_hash": key,
		},
	}
}

// fallbackCached produces the deterministic all-D verdict for a judge
// failure and caches it so reruns over the same evidence stay identical.
func (j *LLMJudge) fallbackCached(key string, in ports.AdjudicationInput, reason, detail string) domain.Adjudication {
	adj := FallbackAdjudication(in, map[string]any{
		"adjudicator":     "llm",
		"model":           "fallback",
		"fallback_reason": reason,
		"fallback_detail": detail,
		"evidence_hash":   key,
	})
	j.mu.Lock()
	j.cache[key] = adj
	j.mu.Unlock()
	j.count("judge_fallbacks_total")
	return adj
}

// FallbackAdjudication is the lowest-grade verdict used when the judge is
// unreachable or its output fails validation: D in every dimension, with
// critical findings seeded from the current critical failing atoms.
func FallbackAdjudication(in ports.AdjudicationInput, metadata map[string]any) domain.Adjudication {
	grades := make(map[domain.Dimension]domain.Grade, len(domain.Dimensions))
	reasoning := make(map[domain.Dimension]string, len(domain.Dimensions))
	for _, dim := range domain.Dimensions {
		grades[dim] = domain.GradeD
		reasoning[dim] = "Fallback judge: LLM failed or validation failed"
	}
	return domain.Adjudication{
		GradeVector:      grades,
		OverallGrade:     domain.GradeD,
		CriticalFindings: criticalFindings(in.Evidence),
		Reasoning:        reasoning,
		Metadata:         metadata,
	}
}

// extractJSONObject returns the first balanced JSON object in a text,
// tolerating fenced code blocks and surrounding prose.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```"); idx != -1 {
		rest := text[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 && !strings.ContainsAny(rest[:nl], "{}") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			candidate := strings.TrimSpace(rest[:end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}
	depth, inString, escaped := 0, false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
