package marking

import (
	"fmt"

	"sleevemark/internal/logging"
	"sleevemark/pkg/domain"
)

// ZoneLookup resolves the constituent zones of a sleeve.
type ZoneLookup interface {
	ResolveConstituentZones(s domain.Sleeve) ([]domain.ClashZone, error)
}

// Resolution is the outcome of prefix resolution for one sleeve.
type Resolution struct {
	SleeveID     domain.ElementID
	Prefix       string
	Rule         RuleID
	Detail       string
	ZoneCount    int
	LookupFailed bool
}

// Resolver runs the prefix rule chain.
type Resolver struct {
	zones  ZoneLookup
	rules  []PrefixRule
	logger logging.Logger
}

// NewResolver builds a resolver over the default rule chain.
func NewResolver(zones ZoneLookup, logger logging.Logger) *Resolver {
	return &Resolver{zones: zones, rules: DefaultRules(), logger: logging.OrNoop(logger)}
}

// Resolve derives the prefix of sleeve. It never fails: a zone lookup problem
// is logged and resolves to the category default.
func (r *Resolver) Resolve(sleeve domain.Sleeve, category domain.Category, defaultPrefix string, settings *domain.MarkPrefixSettings) Resolution {
	if settings == nil {
		settings = domain.DefaultSettings()
	}
	in := PrefixInput{Sleeve: sleeve, Category: category, DefaultPrefix: defaultPrefix, Settings: settings}

	zones, err := r.lookup(sleeve)
	if err != nil {
		r.logger.Warn("zone lookup failed, using category default", "sleeve", sleeve.ID, "error", err)
		prefix, _, detail := categoryDefaultRule{}.Evaluate(in)
		res := Resolution{SleeveID: sleeve.ID, Prefix: prefix, Rule: RuleCategoryDefault, Detail: detail, LookupFailed: true}
		r.logResolution(res)
		return res
	}
	in.Zones = zones

	for _, rule := range r.rules {
		prefix, matched, detail := rule.Evaluate(in)
		if !matched {
			if detail != "" {
				r.logger.Debug("prefix rule fell through", "sleeve", sleeve.ID, "rule", rule.ID(), "detail", detail)
			}
			continue
		}
		res := Resolution{SleeveID: sleeve.ID, Prefix: prefix, Rule: rule.ID(), Detail: detail, ZoneCount: len(zones)}
		r.logResolution(res)
		return res
	}
	// categoryDefaultRule always matches; reaching here means a custom chain.
	res := Resolution{SleeveID: sleeve.ID, Prefix: settings.DefaultPrefix(category), Rule: RuleCategoryDefault, Detail: "chain exhausted", ZoneCount: len(zones)}
	r.logResolution(res)
	return res
}

func (r *Resolver) lookup(sleeve domain.Sleeve) (zones []domain.ClashZone, err error) {
	if r.zones == nil {
		return nil, fmt.Errorf("no zone lookup configured")
	}
	defer func() {
		if p := recover(); p != nil {
			zones, err = nil, fmt.Errorf("zone lookup panic: %v", p)
		}
	}()
	return r.zones.ResolveConstituentZones(sleeve)
}

func (r *Resolver) logResolution(res Resolution) {
	r.logger.Debug("prefix resolved",
		"sleeve", res.SleeveID,
		"rule", res.Rule,
		"prefix", res.Prefix,
		"zones", res.ZoneCount,
		"detail", res.Detail,
	)
}
