package domain

import (
	"fmt"
	"strings"
)

// GradeRequirement is the evidence population a dimension must satisfy for a
// grade to apply. Ratios bound fail/(pass+fail) per evidence family; a family
// with no atoms trivially satisfies its bound. Requirements against the
// protocol result only apply where set.
type GradeRequirement struct {
	// MaxFailureRatio bounds the failing fraction per evidence family.
	MaxFailureRatio map[EvidenceType]float64
	// RequireParseSuccess, when true, demands parsing.success.
	RequireParseSuccess bool
	// MinCompleteness is the minimum field completeness as a fraction in
	// [0, 1]; zero means no requirement.
	MinCompleteness float64
	// Condition and Description are the human-readable rubric text used in
	// the judge prompt.
	Condition   string
	Description string
}

// Rubric is the five-dimension by four-grade requirement table. The
// predictive-quality dimension is scored directly from error curves, so its
// entries carry prose only.
type Rubric map[Dimension]map[Grade]GradeRequirement

// DefaultRubric returns the contractual rubric table.
func DefaultRubric() Rubric {
	return Rubric{
		DimProtocolSchema: {
			GradeA: {
				MaxFailureRatio:     map[EvidenceType]float64{EvidenceNumericValidity: 0.0},
				RequireParseSuccess: true,
				MinCompleteness:     1.0,
				Condition:           "No protocol failures. All required fields present. JSON parsing successful.",
				Description:         "Perfect protocol compliance",
			},
			GradeB: {
				MaxFailureRatio:     map[EvidenceType]float64{EvidenceNumericValidity: 0.05},
				RequireParseSuccess: true,
				MinCompleteness:     1.0,
				Condition:           "Minor protocol issues. All required fields present. JSON parsing successful.",
				Description:         "Good protocol compliance with minor issues",
			},
			GradeC: {
				MaxFailureRatio:     map[EvidenceType]float64{EvidenceNumericValidity: 0.15},
				RequireParseSuccess: true,
				MinCompleteness:     0.9,
				Condition:           "Moderate protocol issues. Most required fields present. JSON parsing successful.",
				Description:         "Acceptable protocol compliance",
			},
			GradeD: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceNumericValidity: 1.0},
				Condition:       "Severe protocol failures. Missing required fields or JSON parsing failed.",
				Description:     "Poor protocol compliance",
			},
		},
		DimFieldValidity: {
			GradeA: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceRangeSanity: 0.0, EvidenceJumpDynamics: 0.0},
				Condition:       "All fields valid. No range violations. No jump/mutation violations.",
				Description:     "Perfect field validity and local dynamics",
			},
			GradeB: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceRangeSanity: 0.05, EvidenceJumpDynamics: 0.05},
				Condition:       "Minor range or jump violations. Most fields valid.",
				Description:     "Good field validity with minor issues",
			},
			GradeC: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceRangeSanity: 0.15, EvidenceJumpDynamics: 0.15},
				Condition:       "Moderate range or jump violations. Some fields invalid.",
				Description:     "Acceptable field validity",
			},
			GradeD: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceRangeSanity: 1.0, EvidenceJumpDynamics: 1.0},
				Condition:       "Severe range or jump violations. Multiple fields invalid.",
				Description:     "Poor field validity",
			},
		},
		DimPhysicsConsistency: {
			GradeA: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceCrossField: 0.0, EvidencePhysics: 0.0},
				Condition:       "Perfect cross-field consistency. All physics constraints satisfied.",
				Description:     "Perfect physics and cross-field consistency",
			},
			GradeB: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceCrossField: 0.10, EvidencePhysics: 0.10},
				Condition:       "Minor cross-field or physics violations. Most constraints satisfied.",
				Description:     "Good physics consistency with minor issues",
			},
			GradeC: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceCrossField: 0.25, EvidencePhysics: 0.25},
				Condition:       "Moderate cross-field or physics violations. Some constraints violated.",
				Description:     "Acceptable physics consistency",
			},
			GradeD: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceCrossField: 1.0, EvidencePhysics: 1.0},
				Condition:       "Severe cross-field or physics violations. Critical constraints violated.",
				Description:     "Poor physics consistency",
			},
		},
		DimSafetyConstraint: {
			GradeA: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceSafety: 0.0},
				Condition:       "No safety violations. All safety constraints satisfied.",
				Description:     "Perfect safety compliance",
			},
			GradeB: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceSafety: 0.10},
				Condition:       "Minor safety warnings. No critical safety violations.",
				Description:     "Good safety compliance with minor warnings",
			},
			GradeC: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceSafety: 0.25},
				Condition:       "Moderate safety warnings. No critical safety violations.",
				Description:     "Acceptable safety compliance",
			},
			GradeD: {
				MaxFailureRatio: map[EvidenceType]float64{EvidenceSafety: 1.0},
				Condition:       "Critical safety violations detected.",
				Description:     "Poor safety compliance",
			},
		},
		DimPredictiveQuality: {
			GradeA: {
				Condition:   "Excellent predictive quality. Low error (MAE score >= 90, RMSE score >= 90).",
				Description: "Excellent predictive quality and reliability",
			},
			GradeB: {
				Condition:   "Good predictive quality. Moderate error (MAE score >= 70, RMSE score >= 70).",
				Description: "Good predictive quality and reliability",
			},
			GradeC: {
				Condition:   "Acceptable predictive quality. Higher error (MAE score >= 50, RMSE score >= 50).",
				Description: "Acceptable predictive quality",
			},
			GradeD: {
				Condition:   "Poor predictive quality. High error or no reference data available.",
				Description: "Poor predictive quality",
			},
		},
	}
}

// Text renders the rubric for inclusion in the judge prompt.
func (r Rubric) Text() string {
	var b strings.Builder
	b.WriteString("Evaluation Rubric\n")
	b.WriteString(strings.Repeat("=", 80))
	b.WriteString("\n\n")
	for _, dim := range Dimensions {
		fmt.Fprintf(&b, "## %s\n\n", titleWords(strings.ReplaceAll(string(dim), "_", " ")))
		for _, g := range Grades {
			entry, ok := r[dim][g]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "**%s**: %s\n", g, entry.Description)
			fmt.Fprintf(&b, "  Condition: %s\n", entry.Condition)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
