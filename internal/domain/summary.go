package domain

// Distribution summarizes a set of scores.
type Distribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Count  int     `json:"count"`
}

// TailRisk reports distribution tails and score-threshold exceedance rates.
type TailRisk struct {
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	// ExceedanceRates maps "below_<threshold>" to the percentage of
	// eligible samples scoring below that threshold.
	ExceedanceRates map[string]float64 `json:"exceedance_rates"`
}

// ConstraintProfile breaks down violations of one evidence family.
type ConstraintProfile struct {
	TotalViolations int     `json:"total_violations"`
	Critical        int     `json:"critical"`
	Warning         int     `json:"warning"`
	ComplianceRate  float64 `json:"compliance_rate"`
}

// TaskSummary aggregates every record of one task across models.
type TaskSummary struct {
	TaskID            TaskID  `json:"task_id"`
	TotalSamples      int     `json:"total_samples"`
	EligibleSamples   int     `json:"eligible_samples"`
	IneligibleSamples int     `json:"ineligible_samples"`
	EligibilityRate   float64 `json:"eligibility_rate"`
	// ComplianceRate is pass/(pass+fail) per evidence family, as a
	// percentage, across eligible and ineligible samples alike.
	ComplianceRate map[EvidenceType]float64 `json:"compliance_rate"`
	// AvailabilityRate is the mean field completeness percentage.
	AvailabilityRate       float64                            `json:"availability_rate"`
	ConstraintSatisfaction map[EvidenceType]ConstraintProfile `json:"constraint_satisfaction"`
	// ConditionalError summarizes error scores over eligible samples only.
	ConditionalError *Distribution `json:"conditional_error,omitempty"`
	TailRisk         *TailRisk     `json:"tail_risk,omitempty"`
	// FailureModes histograms ineligible samples by the verifier family of
	// their top failing atoms; "other" catches anything unclassifiable.
	FailureModes map[string]int `json:"failure_modes"`
}

// ScoreStats is a compact mean/std/min/max block for one score series.
type ScoreStats struct {
	Mean *float64 `json:"mean"`
	Std  *float64 `json:"std"`
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
}

// ModelProfile is the per-model aggregate: data-driven statistics per task
// plus the externally supplied confidence prior.
type ModelProfile struct {
	ModelName string `json:"model_name"`
	// Tasks holds the per-task summaries restricted to this model.
	Tasks map[TaskID]*TaskSummary `json:"tasks"`
	// ScoreStatistics summarizes the legacy composite scores across all of
	// the model's records.
	ScoreStatistics map[string]ScoreStats `json:"score_statistics"`
	// ConstraintViolations counts failing atoms per family.
	ConstraintViolations map[EvidenceType]int `json:"constraint_violations"`
	ConfidencePrior      *ModelConfidence     `json:"model_confidence_prior,omitempty"`
	TotalScore           *ScoreStats          `json:"optional_total_score,omitempty"`
}
