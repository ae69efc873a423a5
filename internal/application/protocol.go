package application

import "github.com/aerograde/flygrade/internal/domain"

// SummarizeProtocol builds the parsing + field-completeness summary for one
// sample. A nil field map means parsing failed: completeness is zero and
// every required field is reported missing.
func SummarizeProtocol(fields domain.FieldMap, parseErr error, required []string) domain.ProtocolResult {
	result := domain.ProtocolResult{
		Parsing: domain.ParsingResult{Success: fields != nil},
	}
	if parseErr != nil {
		result.Parsing.Error = parseErr.Error()
	}

	missing := make([]string, 0)
	provided := 0
	for _, f := range required {
		if fields.Has(f) {
			provided++
		} else {
			missing = append(missing, f)
		}
	}

	rate := 0.0
	if len(required) > 0 && fields != nil {
		rate = float64(provided) / float64(len(required)) * 100.0
	}
	result.FieldCompleteness = domain.FieldCompleteness{
		CompletenessRate: rate,
		MissingFields:    missing,
	}
	return result
}
