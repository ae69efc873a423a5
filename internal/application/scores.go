package application

import (
	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

// deriveScores converts an adjudication plus evidence into the record's
// numeric score block. Grade scores come from the fixed protocol map;
// predictive quality is the error-curve mean regardless of the letter the
// adjudicator reported for it.
func deriveScores(adj domain.Adjudication, in ports.AdjudicationInput, eligibility domain.Eligibility, gatingReasons []string) *domain.OptionalScores {
	dimScores := make(map[domain.Dimension]float64, len(domain.Dimensions))
	var all []float64
	for _, dim := range domain.Dimensions {
		var s float64
		if dim == domain.DimPredictiveQuality {
			if in.ConditionalError != nil {
				s = in.ConditionalError.CombinedScore / 100.0
			}
		} else {
			s = domain.GradeScore[adj.GradeVector[dim]]
		}
		dimScores[dim] = s
		all = append(all, s)
	}
	mean := domain.AggregateScores(all)

	scores := &domain.OptionalScores{
		GradeVector:       adj.GradeVector,
		OverallGrade:      domain.OverallGrade(mean),
		DimensionScores:   dimScores,
		OverallScore:      mean * 100.0,
		ConditionalError:  in.ConditionalError,
		AvailabilityScore: in.ProtocolResult.FieldCompleteness.CompletenessRate,
	}
	scores.ConstraintSatisfactionScore = constraintSatisfaction(in.Evidence)
	if in.ConditionalError != nil {
		scores.ConditionalErrorScore = in.ConditionalError.CombinedScore
	} else {
		scores.ConditionalErrorScore = scores.ConstraintSatisfactionScore
	}
	if eligibility == domain.Ineligible {
		scores.GatingFailed = true
		scores.GatingReasons = gatingReasons
	}
	return scores
}

// constraintSatisfaction is the severity-weighted pass rate over all atoms:
// critical 3, warning 1, info 0.5. Atoms carrying a fine-grained score
// contribute fractionally.
func constraintSatisfaction(pack *domain.EvidencePack) float64 {
	if len(pack.Atoms) == 0 {
		return 100.0
	}
	var total, passed float64
	for _, a := range pack.Atoms {
		var weight float64
		switch a.Severity {
		case domain.SeverityCritical:
			weight = 3.0
		case domain.SeverityWarning:
			weight = 1.0
		default:
			weight = 0.5
		}
		total += weight
		switch {
		case a.Score != nil:
			passed += weight * *a.Score
		case a.Pass:
			passed += weight
		}
	}
	return passed / total * 100.0
}

// fallbackAdjudication is the all-D verdict used when an adjudicator
// breaks or a sample terminates before adjudication.
func fallbackAdjudication(in ports.AdjudicationInput, reason string) domain.Adjudication {
	grades := make(map[domain.Dimension]domain.Grade, len(domain.Dimensions))
	reasoning := make(map[domain.Dimension]string, len(domain.Dimensions))
	for _, dim := range domain.Dimensions {
		grades[dim] = domain.GradeD
		reasoning[dim] = "fallback adjudication: " + reason
	}
	var findings []domain.AttributionEntry
	for _, a := range in.Evidence.CriticalFailures() {
		if len(findings) == 5 {
			break
		}
		findings = append(findings, domain.AttributionEntry{
			Reason:      a.Message,
			EvidenceIDs: []string{a.ID},
			Type:        a.Type,
			Severity:    a.Severity,
			Rank:        len(findings) + 1,
			Count:       1,
		})
	}
	return domain.Adjudication{
		GradeVector:      grades,
		OverallGrade:     domain.GradeD,
		CriticalFindings: findings,
		Reasoning:        reasoning,
		Metadata:         map[string]any{"adjudicator": "fallback", "reason": reason},
	}
}
