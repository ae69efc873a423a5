package adjudicators

import (
	"github.com/aerograde/flygrade/internal/domain"
	"github.com/aerograde/flygrade/internal/ports"
)

// atomSummary is the judge-facing view of one evidence atom. The metadata
// bag is carried verbatim; map keys marshal sorted, keeping the encoding
// deterministic for cache keys.
type atomSummary struct {
	ID       string         `json:"id"`
	Field    string         `json:"field,omitempty"`
	Pass     bool           `json:"pass"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// typeSummary groups one evidence family with per-severity counts.
type typeSummary struct {
	Atoms         []atomSummary `json:"atoms"`
	CriticalCount int           `json:"critical_count"`
	WarningCount  int           `json:"warning_count"`
	InfoCount     int           `json:"info_count"`
	PassCount     int           `json:"pass_count"`
	FailCount     int           `json:"fail_count"`
}

// evidenceSummary is everything the judge sees: grouped atoms, the protocol
// summary, and the optional error scores. The raw model reply is never
// included; adjudication is evidence-only.
type evidenceSummary struct {
	Parsing struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	} `json:"parsing"`
	FieldCompleteness struct {
		Rate          float64  `json:"rate"`
		MissingFields []string `json:"missing_fields"`
	} `json:"field_completeness"`
	EvidenceByType   map[string]*typeSummary  `json:"evidence_by_type"`
	ConditionalError *domain.ConditionalError `json:"conditional_error,omitempty"`
}

// buildEvidenceSummary groups the pack by type with per-severity counts.
func buildEvidenceSummary(in ports.AdjudicationInput) *evidenceSummary {
	s := &evidenceSummary{EvidenceByType: make(map[string]*typeSummary)}
	s.Parsing.Success = in.ProtocolResult.Parsing.Success
	s.Parsing.Error = in.ProtocolResult.Parsing.Error
	s.FieldCompleteness.Rate = in.ProtocolResult.FieldCompleteness.CompletenessRate
	s.FieldCompleteness.MissingFields = in.ProtocolResult.FieldCompleteness.MissingFields
	s.ConditionalError = in.ConditionalError

	for _, a := range in.Evidence.Atoms {
		group, ok := s.EvidenceByType[string(a.Type)]
		if !ok {
			group = &typeSummary{}
			s.EvidenceByType[string(a.Type)] = group
		}
		group.Atoms = append(group.Atoms, atomSummary{
			ID:       a.ID,
			Field:    a.Field,
			Pass:     a.Pass,
			Severity: string(a.Severity),
			Message:  a.Message,
			Meta:     a.Meta,
		})
		switch a.Severity {
		case domain.SeverityCritical:
			group.CriticalCount++
		case domain.SeverityWarning:
			group.WarningCount++
		default:
			group.InfoCount++
		}
		if a.Pass {
			group.PassCount++
		} else {
			group.FailCount++
		}
	}
	return s
}

// criticalCount returns the critical-severity count for one family, zero
// when the family emitted nothing.
func (s *evidenceSummary) criticalCount(t domain.EvidenceType) int {
	if g, ok := s.EvidenceByType[string(t)]; ok {
		return g.CriticalCount
	}
	return 0
}
