package application

import (
	"math"
	"sort"
	"strconv"

	"github.com/aerograde/flygrade/internal/domain"
)

// tailThresholds are the score levels reported as exceedance rates.
var tailThresholds = []float64{50, 70, 90}

// BuildTaskSummary aggregates the records of one task. Compliance rates
// span eligible and ineligible samples; the conditional-error distribution
// and tail risk cover eligible samples only. Records are sorted by
// (model, sample) first so output is independent of emission order.
func BuildTaskSummary(task domain.TaskID, records []domain.Record) *domain.TaskSummary {
	records = sortedRecords(records)

	summary := &domain.TaskSummary{
		TaskID:                 task,
		TotalSamples:           len(records),
		ComplianceRate:         make(map[domain.EvidenceType]float64),
		ConstraintSatisfaction: make(map[domain.EvidenceType]domain.ConstraintProfile),
		FailureModes:           make(map[string]int),
	}
	if len(records) == 0 {
		return summary
	}

	var completeness []float64
	for _, r := range records {
		if r.AgentOutput.Adjudication == domain.Eligible {
			summary.EligibleSamples++
		}
		completeness = append(completeness, r.ProtocolResult.FieldCompleteness.CompletenessRate)
	}
	summary.IneligibleSamples = summary.TotalSamples - summary.EligibleSamples
	summary.EligibilityRate = float64(summary.EligibleSamples) / float64(summary.TotalSamples) * 100.0
	summary.AvailabilityRate = mean(completeness)

	for _, t := range domain.EvidenceTypes {
		var pass, fail, critical, warning int
		for _, r := range records {
			p, f := r.EvidencePack.PassFailCounts(t)
			pass += p
			fail += f
			for _, a := range r.EvidencePack.ByType(t) {
				if a.Pass {
					continue
				}
				switch a.Severity {
				case domain.SeverityCritical:
					critical++
				case domain.SeverityWarning:
					warning++
				}
			}
		}
		rate := 100.0
		if pass+fail > 0 {
			rate = float64(pass) / float64(pass+fail) * 100.0
		}
		summary.ComplianceRate[t] = rate
		summary.ConstraintSatisfaction[t] = domain.ConstraintProfile{
			TotalViolations: fail,
			Critical:        critical,
			Warning:         warning,
			ComplianceRate:  rate,
		}
	}

	// Conditional error over eligible samples only.
	var errScores []float64
	for _, r := range records {
		if r.AgentOutput.Adjudication != domain.Eligible || r.Scores == nil {
			continue
		}
		errScores = append(errScores, r.Scores.ConditionalErrorScore)
	}
	if len(errScores) > 0 {
		summary.ConditionalError = distribution(errScores)
		summary.TailRisk = tailRisk(errScores)
	}

	// Failure modes keyed by the verifier family of the top failing atoms.
	for _, r := range records {
		if r.AgentOutput.Adjudication != domain.Ineligible {
			continue
		}
		if len(r.AgentOutput.Attribution) == 0 {
			summary.FailureModes["other"]++
			continue
		}
		for _, attr := range r.AgentOutput.Attribution {
			key := string(attr.Type)
			if !knownEvidenceType(attr.Type) {
				key = "other"
			}
			summary.FailureModes[key]++
		}
	}
	return summary
}

// BuildModelProfile aggregates one model's records across tasks and
// attaches the externally supplied confidence prior.
func BuildModelProfile(model string, records []domain.Record, prior *domain.ModelConfidence) *domain.ModelProfile {
	records = sortedRecords(records)

	profile := &domain.ModelProfile{
		ModelName:            model,
		Tasks:                make(map[domain.TaskID]*domain.TaskSummary),
		ScoreStatistics:      make(map[string]domain.ScoreStats),
		ConstraintViolations: make(map[domain.EvidenceType]int),
		ConfidencePrior:      prior,
	}

	byTask := make(map[domain.TaskID][]domain.Record)
	for _, r := range records {
		byTask[r.TaskID] = append(byTask[r.TaskID], r)
	}
	for task, recs := range byTask {
		profile.Tasks[task] = BuildTaskSummary(task, recs)
	}

	series := map[string][]float64{
		"availability":            {},
		"constraint_satisfaction": {},
		"conditional_error":       {},
		"total":                   {},
	}
	for _, r := range records {
		for _, a := range r.EvidencePack.Atoms {
			if !a.Pass {
				profile.ConstraintViolations[a.Type]++
			}
		}
		if r.Scores == nil {
			continue
		}
		series["availability"] = append(series["availability"], r.Scores.AvailabilityScore)
		series["constraint_satisfaction"] = append(series["constraint_satisfaction"], r.Scores.ConstraintSatisfactionScore)
		series["conditional_error"] = append(series["conditional_error"], r.Scores.ConditionalErrorScore)
		series["total"] = append(series["total"], r.Scores.OverallScore)
	}
	for name, values := range series {
		profile.ScoreStatistics[name] = scoreStats(values)
	}
	if len(series["total"]) > 0 {
		stats := scoreStats(series["total"])
		profile.TotalScore = &stats
	}
	return profile
}

func knownEvidenceType(t domain.EvidenceType) bool {
	for _, known := range domain.EvidenceTypes {
		if t == known {
			return true
		}
	}
	return false
}

func sortedRecords(records []domain.Record) []domain.Record {
	out := append([]domain.Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TaskID != out[j].TaskID {
			return out[i].TaskID < out[j].TaskID
		}
		if out[i].ModelName != out[j].ModelName {
			return out[i].ModelName < out[j].ModelName
		}
		return out[i].SampleID < out[j].SampleID
	})
	return out
}

func distribution(values []float64) *domain.Distribution {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return &domain.Distribution{
		Mean:   mean(sorted),
		Median: percentile(sorted, 50),
		Std:    stddev(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
		Count:  len(sorted),
	}
}

func tailRisk(values []float64) *domain.TailRisk {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rates := make(map[string]float64, len(tailThresholds))
	for _, threshold := range tailThresholds {
		below := 0
		for _, v := range sorted {
			if v < threshold {
				below++
			}
		}
		key := "below_" + strconv.Itoa(int(threshold))
		rates[key] = float64(below) / float64(len(sorted)) * 100.0
	}
	return &domain.TailRisk{
		P95:             percentile(sorted, 95),
		P99:             percentile(sorted, 99),
		ExceedanceRates: rates,
	}
}

func scoreStats(values []float64) domain.ScoreStats {
	if len(values) == 0 {
		return domain.ScoreStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	m := mean(sorted)
	s := stddev(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	return domain.ScoreStats{Mean: &m, Std: &s, Min: &lo, Max: &hi}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// percentile computes the p-th percentile of a sorted slice with linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	low := int(math.Floor(rank))
	high := int(math.Ceil(rank))
	if low == high {
		return sorted[low]
	}
	frac := rank - float64(low)
	return sorted[low]*(1-frac) + sorted[high]*frac
}
