package domain

// Grade is one of the four rubric levels.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// Grades lists the levels best-first, the order adjudicators probe them in.
var Grades = []Grade{GradeA, GradeB, GradeC, GradeD}

// GradeScore maps a grade to its fixed score. The mapping is a protocol
// constant, not a tunable weight.
var GradeScore = map[Grade]float64{
	GradeA: 1.0,
	GradeB: 0.75,
	GradeC: 0.5,
	GradeD: 0.0,
}

// Valid reports whether g is one of the four defined levels.
func (g Grade) Valid() bool {
	_, ok := GradeScore[g]
	return ok
}

// Dimension is one of the five rubric axes.
type Dimension string

const (
	DimProtocolSchema     Dimension = "protocol_schema_compliance"
	DimFieldValidity      Dimension = "field_validity_local_dynamics"
	DimPhysicsConsistency Dimension = "physics_cross_field_consistency"
	DimSafetyConstraint   Dimension = "safety_constraint_satisfaction"
	DimPredictiveQuality  Dimension = "predictive_quality_reliability"
)

// Dimensions lists the five axes in canonical order.
var Dimensions = []Dimension{
	DimProtocolSchema,
	DimFieldValidity,
	DimPhysicsConsistency,
	DimSafetyConstraint,
	DimPredictiveQuality,
}

// DimensionForEvidence maps a verifier family to the dimension its findings
// are attributed to. Unknown types fall back to the protocol dimension.
func DimensionForEvidence(t EvidenceType) Dimension {
	switch t {
	case EvidenceNumericValidity:
		return DimProtocolSchema
	case EvidenceRangeSanity, EvidenceJumpDynamics:
		return DimFieldValidity
	case EvidenceCrossField, EvidencePhysics:
		return DimPhysicsConsistency
	case EvidenceSafety:
		return DimSafetyConstraint
	default:
		return DimProtocolSchema
	}
}

// AggregateScores combines per-dimension scores into the overall score.
// The protocol is a plain arithmetic mean; an empty input scores zero.
func AggregateScores(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// Overall grade synthesis midpoints between adjacent grade scores.
const (
	overallAThreshold = 0.875 // (1.0 + 0.75) / 2
	overallBThreshold = 0.625 // (0.75 + 0.5) / 2
	overallCThreshold = 0.25  // (0.5 + 0.0) / 2
)

// OverallGrade synthesizes a letter from a mean dimension score in [0, 1]
// using the midpoints between adjacent grade scores.
func OverallGrade(mean float64) Grade {
	switch {
	case mean >= overallAThreshold:
		return GradeA
	case mean >= overallBThreshold:
		return GradeB
	case mean >= overallCThreshold:
		return GradeC
	default:
		return GradeD
	}
}
