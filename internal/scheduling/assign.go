package scheduling

import (
	"strings"

	"github.com/spec-kit/dispatch-engine/internal/catalog"
	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// Assignment rules, in preference order.
const (
	RuleExactArea       = "exact_area"
	RuleOverlappingArea = "overlapping_area"
	RuleDefault         = "default"
	RuleMostSenior      = "most_senior"
)

// Assign picks a technician for zip from the roster alone:
// the postal-prefix map, then any technician whose service area covers the
// zip (roster order), then the default technician, then the most senior
// active technician. ok is false when the roster has no active technician.
func Assign(t *catalog.Tables, zip string) (domain.Assignment, bool) {
	roster := t.Roster
	zip = strings.TrimSpace(zip)

	if n := roster.AreaPrefixLength; n > 0 && len(zip) >= n {
		if id, ok := roster.AreaMap[zip[:n]]; ok {
			if tech, ok := t.Technician(id); ok && tech.Active {
				return assignment(tech, RuleExactArea), true
			}
		}
	}

	if zip != "" {
		for _, tech := range roster.Technicians {
			if !tech.Active {
				continue
			}
			for _, area := range tech.ServiceAreas {
				if area != "" && strings.HasPrefix(zip, area) {
					return assignment(tech, RuleOverlappingArea), true
				}
			}
		}
	}

	if tech, ok := t.Technician(roster.DefaultTechnician); ok && tech.Active {
		return assignment(tech, RuleDefault), true
	}

	var senior *catalog.Technician
	for i := range roster.Technicians {
		tech := &roster.Technicians[i]
		if !tech.Active {
			continue
		}
		if senior == nil || tech.SeniorityRank < senior.SeniorityRank {
			senior = tech
		}
	}
	if senior != nil {
		return assignment(*senior, RuleMostSenior), true
	}
	return domain.Assignment{}, false
}

func assignment(tech catalog.Technician, rule string) domain.Assignment {
	return domain.Assignment{TechnicianID: tech.ID, Name: tech.Name, Rule: rule}
}
