package domain

// Eligibility is the gating verdict for one sample.
type Eligibility string

const (
	Eligible   Eligibility = "eligible"
	Ineligible Eligibility = "ineligible"
)

// ParsingResult reports whether the raw reply yielded a field map.
type ParsingResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FieldCompleteness reports schema coverage of the parsed reply.
type FieldCompleteness struct {
	// CompletenessRate is a percentage in [0, 100].
	CompletenessRate float64  `json:"completeness_rate"`
	MissingFields    []string `json:"missing_fields"`
}

// ProtocolResult is the parser-plus-schema summary for one sample.
type ProtocolResult struct {
	Parsing           ParsingResult     `json:"parsing"`
	FieldCompleteness FieldCompleteness `json:"field_completeness"`
}

// ChecklistItem binds one verifier capability to the evidence it produced.
type ChecklistItem struct {
	ItemID       string   `json:"item_id"`
	ConstraintID string   `json:"constraint_id"`
	EvidenceIDs  []string `json:"evidence_ids"`
	// Status is pass, fail, or unknown when the verifier emitted no atoms.
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

// AttributionEntry is one ranked failure group in the agent output. Every
// entry cites at least one evidence atom ID present in the sample's pack.
type AttributionEntry struct {
	Reason      string       `json:"reason"`
	EvidenceIDs []string     `json:"evidence_ids"`
	Type        EvidenceType `json:"type"`
	Severity    Severity     `json:"severity"`
	Rank        int          `json:"rank"`
	Count       int          `json:"count"`
}

// AgentOutput is the adjudication block of a record: the gating verdict,
// the top-K attribution, and the capability checklist.
type AgentOutput struct {
	Adjudication Eligibility        `json:"adjudication"`
	Attribution  []AttributionEntry `json:"attribution"`
	Checklist    []ChecklistItem    `json:"checklist"`
	// GatingReasons explain an ineligible verdict, citing evidence IDs.
	GatingReasons []string `json:"gating_reasons,omitempty"`
}

// Adjudication is a grade vector produced by an adjudicator (rule-based or
// LLM), before score mapping.
type Adjudication struct {
	GradeVector map[Dimension]Grade `json:"grade_vector"`
	// OverallGrade is the synthesized letter for the whole sample.
	OverallGrade Grade `json:"overall_grade"`
	// CriticalFindings are the adjudicator's top findings, each citing
	// evidence IDs from the sample's pack.
	CriticalFindings []AttributionEntry   `json:"critical_findings"`
	Checklist        []ChecklistItem      `json:"checklist,omitempty"`
	Reasoning        map[Dimension]string `json:"reasoning,omitempty"`
	// Metadata records which adjudicator produced the vector, the judge
	// model, prompt hash, fallback reasons, and similar bookkeeping.
	Metadata map[string]any `json:"judge_metadata,omitempty"`
}

// OptionalScores carries the numeric scores derived from an adjudication.
type OptionalScores struct {
	GradeVector  map[Dimension]Grade `json:"grade_vector"`
	OverallGrade Grade               `json:"overall_grade"`
	// DimensionScores are normalized to [0, 1].
	DimensionScores map[Dimension]float64 `json:"dimension_scores"`
	// OverallScore is the arithmetic mean of dimension scores, scaled to
	// [0, 100].
	OverallScore float64 `json:"overall_score"`

	// Gold-referenced error metrics; nil when gold is unavailable.
	ConditionalError *ConditionalError `json:"conditional_error,omitempty"`

	// Legacy composite scores kept for report compatibility.
	AvailabilityScore           float64 `json:"availability_score"`
	ConstraintSatisfactionScore float64 `json:"constraint_satisfaction_score"`
	ConditionalErrorScore       float64 `json:"conditional_error_score"`

	GatingFailed  bool     `json:"gating_failed,omitempty"`
	GatingReasons []string `json:"gating_reasons,omitempty"`
}

// Trace is the reproducibility envelope stamped on every record.
type Trace struct {
	ConfigHash        string `json:"config_hash"`
	SchemaHash        string `json:"schema_hash"`
	ConstraintLibHash string `json:"constraint_lib_hash"`
	EvaluatorVersion  string `json:"evaluator_version"`
	RunID             string `json:"run_id"`
	// Timestamp is ISO-8601 in UTC.
	Timestamp string `json:"timestamp"`
	// JudgeModel is set only when the LLM adjudicator produced the grades.
	JudgeModel string `json:"judge_model,omitempty"`
}

// Record is the per-sample deliverable. It is immutable once emitted.
type Record struct {
	SampleID       string          `json:"sample_id"`
	ModelName      string          `json:"model_name"`
	TaskID         TaskID          `json:"task_id"`
	ProtocolResult ProtocolResult  `json:"protocol_result"`
	EvidencePack   EvidencePack    `json:"evidence_pack"`
	AgentOutput    AgentOutput     `json:"agent_output"`
	Scores         *OptionalScores `json:"optional_scores,omitempty"`
	Trace          Trace           `json:"trace"`
}
