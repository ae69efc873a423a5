// Package adjudicators maps evidence populations to rubric grades. Two
// interchangeable implementations exist: a deterministic rule adjudicator
// and an LLM judge bound by citation and monotonicity validation.
package adjudicators

import (
	"context"
	"fmt"

	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.Adjudicator = (*RuleAdjudicator)(nil)

// RuleAdjudicator grades each dimension by probing the rubric ladder from A
// to D and taking the first grade whose evidence requirements all hold.
// Predictive quality is scored directly from the error curves rather than
// by ladder. Protocol and safety monotonicity clamps mirror the judge's
// hard constraints so the two adjudicators agree on gated samples.
type RuleAdjudicator struct {
	rubric domain.Rubric
}

// NewRuleAdjudicator creates the deterministic adjudicator over the
// contractual rubric.
func NewRuleAdjudicator() *RuleAdjudicator {
	return &RuleAdjudicator{rubric: domain.DefaultRubric()}
}

func (r *RuleAdjudicator) Name() string { return "rule" }

// Adjudicate never fails: the input is complete by construction and every
// dimension defaults to D when no grade matches.
func (r *RuleAdjudicator) Adjudicate(_ context.Context, in ports.AdjudicationInput) (domain.Adjudication, error) {
	grades := make(map[domain.Dimension]domain.Grade, len(domain.Dimensions))
	var scores []float64

	for _, dim := range domain.Dimensions {
		if dim == domain.DimPredictiveQuality {
			score := 0.0
			if in.ConditionalError != nil {
				score = in.ConditionalError.CombinedScore / 100.0
			}
			grades[dim] = qualityGrade(score)
			scores = append(scores, score)
			continue
		}
		grade := r.determineGrade(dim, in)
		grades[dim] = grade
		scores = append(scores, domain.GradeScore[grade])
	}

	// Hard monotonicity clamps.
	if protocolCriticalFailure(in) {
		grades[domain.DimProtocolSchema] = domain.GradeD
		scores[0] = 0
	}
	if safetyCriticalFailure(in.Evidence) {
		grades[domain.DimSafetyConstraint] = domain.GradeD
		scores[3] = 0
	}

	mean := domain.AggregateScores(scores)
	return domain.Adjudication{
		GradeVector:      grades,
		OverallGrade:     domain.OverallGrade(mean),
		CriticalFindings: criticalFindings(in.Evidence),
		Reasoning:        ruleReasoning(grades),
		Metadata: map[string]any{
			"adjudicator": "rule",
		},
	}, nil
}

// determineGrade probes the ladder best-first and returns the first grade
// whose requirements all hold, defaulting to D.
func (r *RuleAdjudicator) determineGrade(dim domain.Dimension, in ports.AdjudicationInput) domain.Grade {
	ladder := r.rubric[dim]
	for _, grade := range domain.Grades {
		req, ok := ladder[grade]
		if !ok {
			continue
		}
		if r.requirementHolds(req, in) {
			return grade
		}
	}
	return domain.GradeD
}

func (r *RuleAdjudicator) requirementHolds(req domain.GradeRequirement, in ports.AdjudicationInput) bool {
	for typ, maxRatio := range req.MaxFailureRatio {
		pass, fail := in.Evidence.PassFailCounts(typ)
		total := pass + fail
		if total == 0 {
			continue
		}
		if float64(fail)/float64(total) > maxRatio {
			return false
		}
	}
	if req.RequireParseSuccess && !in.ProtocolResult.Parsing.Success {
		return false
	}
	if req.MinCompleteness > 0 &&
		in.ProtocolResult.FieldCompleteness.CompletenessRate/100.0 < req.MinCompleteness {
		return false
	}
	return true
}

// qualityGrade maps the direct predictive-quality score to a letter for
// reporting; the dimension score itself stays the raw curve mean.
func qualityGrade(score float64) domain.Grade {
	switch {
	case score >= 0.9:
		return domain.GradeA
	case score >= 0.7:
		return domain.GradeB
	case score >= 0.5:
		return domain.GradeC
	default:
		return domain.GradeD
	}
}

// protocolCriticalFailure reports a failed parse or any critical
// numeric-validity atom.
func protocolCriticalFailure(in ports.AdjudicationInput) bool {
	if !in.ProtocolResult.Parsing.Success {
		return true
	}
	for _, a := range in.Evidence.ByType(domain.EvidenceNumericValidity) {
		if !a.Pass && a.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}

// safetyCriticalFailure reports any critical safety atom.
func safetyCriticalFailure(pack *domain.EvidencePack) bool {
	for _, a := range pack.ByType(domain.EvidenceSafety) {
		if !a.Pass && a.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}

// criticalFindings turns the critical failures into cited findings, top
// five in emission order.
func criticalFindings(pack *domain.EvidencePack) []domain.AttributionEntry {
	var findings []domain.AttributionEntry
	for _, a := range pack.CriticalFailures() {
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
	return findings
}

func ruleReasoning(grades map[domain.Dimension]domain.Grade) map[domain.Dimension]string {
	out := make(map[domain.Dimension]string, len(grades))
	for dim, g := range grades {
		out[dim] = fmt.Sprintf("rule adjudication: requirements satisfied through grade %s", g)
	}
	return out
}

