package application

import (
	"fmt"
	"strings"

	"github.com/aerograde/flygrade/internal/domain"
)

// MinCompletenessRate is the gating floor for field completeness, percent.
const MinCompletenessRate = 80.0

// Gate derives the eligibility verdict from the full evidence pack and the
// protocol summary. It is a pure function: verifier execution is never
// short-circuited by gating, so the audit trail stays complete. The reasons
// returned are ordered and cite evidence atom IDs.
func Gate(pack *domain.EvidencePack, protocol domain.ProtocolResult) (domain.Eligibility, []string) {
	var reasons []string

	if !protocol.Parsing.Success {
		reasons = append(reasons, "response parsing failed")
	}
	if protocol.FieldCompleteness.CompletenessRate < MinCompletenessRate {
		reasons = append(reasons, fmt.Sprintf(
			"field completeness %.1f%% below required %.0f%%",
			protocol.FieldCompleteness.CompletenessRate, MinCompletenessRate))
	}

	if critical := pack.CriticalFailures(); len(critical) > 0 {
		ids := make([]string, 0, len(critical))
		for _, a := range critical {
			ids = append(ids, a.ID)
		}
		reasons = append(reasons, fmt.Sprintf(
			"%d critical constraint violations [%s]",
			len(critical), strings.Join(ids, ", ")))
	}

	if len(reasons) > 0 {
		return domain.Ineligible, reasons
	}
	return domain.Eligible, nil
}
