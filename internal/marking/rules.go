// Package marking derives sleeve mark prefixes through a fixed rule chain,
// assigns sequence numbers per prefix and clears marks within a scope.
package marking

import (
	"fmt"
	"sort"
	"strings"

	"sleevemark/pkg/domain"
)

// RuleID names the rule that produced a prefix.
type RuleID string

// Prefix rules in priority order.
const (
	RuleMultiLink       RuleID = "multi_link"
	RuleChilledWater    RuleID = "chilled_water_exception"
	RuleSystemType      RuleID = "system_type_override"
	RuleCombinedDefault RuleID = "combined_default"
	RuleCategoryDefault RuleID = "category_default"
)

// chilledWaterKeywords are matched case-insensitively as substrings of a
// zone's system type.
var chilledWaterKeywords = []string{"chilled", "chw"}

// IsChilledWater reports whether systemType belongs to the chilled water family.
func IsChilledWater(systemType string) bool {
	st := strings.ToLower(systemType)
	for _, kw := range chilledWaterKeywords {
		if strings.Contains(st, kw) {
			return true
		}
	}
	return false
}

// PrefixInput is everything a rule may look at.
type PrefixInput struct {
	Sleeve        domain.Sleeve
	Category      domain.Category
	DefaultPrefix string
	Settings      *domain.MarkPrefixSettings
	Zones         []domain.ClashZone
}

// PrefixRule is one step of the resolution chain. A rule that does not match
// returns matched == false and the chain moves on.
type PrefixRule interface {
	ID() RuleID
	Evaluate(in PrefixInput) (prefix string, matched bool, detail string)
}

// DefaultRules returns the resolution chain in priority order.
func DefaultRules() []PrefixRule {
	return []PrefixRule{
		multiLinkRule{},
		chilledWaterRule{},
		systemTypeRule{},
		combinedDefaultRule{},
		categoryDefaultRule{},
	}
}

func distinctLinks(zones []domain.ClashZone) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, z := range zones {
		if !seen[z.LinkID] {
			seen[z.LinkID] = true
			out = append(out, z.LinkID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// overrideGroups lists the groups searched for an override: the sleeve's own
// category group first, then the groups of its zones in zone order.
func overrideGroups(category domain.Category, zones []domain.ClashZone) []domain.CategoryGroup {
	groups := []domain.CategoryGroup{category.Group()}
	seen := map[domain.CategoryGroup]bool{category.Group(): true}
	for _, z := range zones {
		g := z.Category.Group()
		if !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}
	return groups
}

func lookupOverride(s *domain.MarkPrefixSettings, groups []domain.CategoryGroup, systemType string) (string, domain.CategoryGroup, bool) {
	for _, g := range groups {
		if p, ok := s.Override(g, systemType); ok {
			return p, g, true
		}
	}
	return "", "", false
}

type multiLinkRule struct{}

func (multiLinkRule) ID() RuleID { return RuleMultiLink }

func (multiLinkRule) Evaluate(in PrefixInput) (string, bool, string) {
	links := distinctLinks(in.Zones)
	if len(links) > 1 {
		return domain.MixedPrefix, true, fmt.Sprintf("zones span links %v", links)
	}
	return "", false, ""
}

type chilledWaterRule struct{}

func (chilledWaterRule) ID() RuleID { return RuleChilledWater }

func (chilledWaterRule) Evaluate(in PrefixInput) (string, bool, string) {
	if !in.Sleeve.IsCombined() || len(distinctLinks(in.Zones)) != 1 {
		return "", false, ""
	}
	// Every distinct chilled water system type gets a lookup; the first
	// one with an override wins.
	seen := make(map[string]bool)
	var missing []string
	for _, z := range in.Zones {
		key := domain.NormalizeSystemType(z.SystemType)
		if !IsChilledWater(z.SystemType) || seen[key] {
			continue
		}
		seen[key] = true
		groups := overrideGroups(z.Category, in.Zones)
		if p, g, ok := lookupOverride(in.Settings, groups, z.SystemType); ok {
			return p, true, fmt.Sprintf("system type %q overridden in group %s", z.SystemType, g)
		}
		missing = append(missing, z.SystemType)
	}
	if len(missing) > 0 {
		return "", false, fmt.Sprintf("no override for chilled water system types %q", missing)
	}
	return "", false, ""
}

type systemTypeRule struct{}

func (systemTypeRule) ID() RuleID { return RuleSystemType }

func (systemTypeRule) Evaluate(in PrefixInput) (string, bool, string) {
	if len(in.Zones) == 0 {
		return "", false, ""
	}
	shared := domain.NormalizeSystemType(in.Zones[0].SystemType)
	for _, z := range in.Zones[1:] {
		if domain.NormalizeSystemType(z.SystemType) != shared {
			return "", false, ""
		}
	}
	if shared == "" {
		return "", false, ""
	}
	p, g, ok := lookupOverride(in.Settings, overrideGroups(in.Category, in.Zones), in.Zones[0].SystemType)
	if !ok {
		return "", false, ""
	}
	// Compared against the configured category default, not in.DefaultPrefix,
	// which may carry a discipline prefix.
	if p == in.Settings.DefaultPrefix(in.Category) {
		return "", false, fmt.Sprintf("override for %q equals category default", shared)
	}
	return p, true, fmt.Sprintf("shared system type %q overridden in group %s", shared, g)
}

type combinedDefaultRule struct{}

func (combinedDefaultRule) ID() RuleID { return RuleCombinedDefault }

func (combinedDefaultRule) Evaluate(in PrefixInput) (string, bool, string) {
	if in.Sleeve.IsCombined() {
		return domain.MixedPrefix, true, "combined sleeve"
	}
	return "", false, ""
}

type categoryDefaultRule struct{}

func (categoryDefaultRule) ID() RuleID { return RuleCategoryDefault }

func (categoryDefaultRule) Evaluate(in PrefixInput) (string, bool, string) {
	if in.DefaultPrefix != "" {
		return in.DefaultPrefix, true, "configured default"
	}
	return in.Settings.DefaultPrefix(in.Category), true, "settings default"
}
