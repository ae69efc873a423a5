package application

import (
	"fmt"
	"strings"

	"github.com/aerograde/flygrade/internal/domain"
)

// maxAttributionEntries bounds the attribution to the top-K failure groups.
const maxAttributionEntries = 5

// constraintIDForCapability maps a verifier capability to the constraint
// identifier used in checklist items.
func constraintIDForCapability(capability string) string {
	return strings.ToUpper(capability)
}

// capabilityEvidenceType maps a capability back to the evidence family its
// atoms carry.
var capabilityEvidenceType = map[string]domain.EvidenceType{
	"numeric_validity":        domain.EvidenceNumericValidity,
	"range_sanity":            domain.EvidenceRangeSanity,
	"jump_dynamics":           domain.EvidenceJumpDynamics,
	"cross_field_consistency": domain.EvidenceCrossField,
	"physics_constraints":     domain.EvidencePhysics,
	"safety_constraints":      domain.EvidenceSafety,
}

// BuildChecklist decomposes the evaluation into one verifiable item per
// verifier capability, binding each to the evidence atoms it produced.
// Items with no evidence report status unknown.
func BuildChecklist(capabilities []string, pack *domain.EvidencePack) []domain.ChecklistItem {
	items := make([]domain.ChecklistItem, 0, len(capabilities))
	for i, capability := range capabilities {
		item := domain.ChecklistItem{
			ItemID:       fmt.Sprintf("CHECK_%03d", i+1),
			ConstraintID: constraintIDForCapability(capability),
			EvidenceIDs:  []string{},
			Status:       "unknown",
		}
		if t, ok := capabilityEvidenceType[capability]; ok {
			atoms := pack.ByType(t)
			allPass := true
			for _, a := range atoms {
				item.EvidenceIDs = append(item.EvidenceIDs, a.ID)
				if !a.Pass {
					allPass = false
				}
			}
			if len(atoms) > 0 {
				if allPass {
					item.Status = "pass"
				} else {
					item.Status = "fail"
				}
			}
		}
		items = append(items, item)
	}
	return items
}

// BuildAttribution groups failing atoms by (type, field), orders the groups
// critical-first in emission order, and returns the top-K as ranked entries.
// Every entry cites the IDs of all atoms in its group.
func BuildAttribution(pack *domain.EvidencePack) []domain.AttributionEntry {
	type group struct {
		representative domain.Atom
		ids            []string
	}

	var order []string
	groups := make(map[string]*group)
	for _, a := range pack.Failures() {
		key := string(a.Type) + ":" + a.Field
		g, ok := groups[key]
		if !ok {
			g = &group{representative: a}
			groups[key] = g
			order = append(order, key)
		}
		g.ids = append(g.ids, a.ID)
	}

	entries := make([]domain.AttributionEntry, 0, maxAttributionEntries)
	for i, key := range order {
		if i == maxAttributionEntries {
			break
		}
		g := groups[key]
		reason := g.representative.Message
		if reason == "" {
			reason = fmt.Sprintf("%s violation in %s", g.representative.Type, g.representative.Field)
		}
		entries = append(entries, domain.AttributionEntry{
			Reason:      reason,
			EvidenceIDs: g.ids,
			Type:        g.representative.Type,
			Severity:    g.representative.Severity,
			Rank:        i + 1,
			Count:       len(g.ids),
		})
	}
	return entries
}
