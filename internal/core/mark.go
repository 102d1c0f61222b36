package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sleevemark/internal/cluster"
	"sleevemark/internal/logging"
	"sleevemark/internal/marking"
	"sleevemark/pkg/domain"
)

// MarkMode selects which half of marking runs.
type MarkMode string

// Mark modes.
const (
	ModeFull       MarkMode = "full"
	ModePrefixOnly MarkMode = "prefix-only"
	ModeNumberOnly MarkMode = "number-only"
)

// ParseMarkMode accepts the mode names case-insensitively; empty means full.
func ParseMarkMode(s string) (MarkMode, error) {
	switch MarkMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFull:
		return ModeFull, nil
	case ModePrefixOnly:
		return ModePrefixOnly, nil
	case ModeNumberOnly:
		return ModeNumberOnly, nil
	}
	return "", domain.ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", s)}
}

// MarkRequest is the input of MarkSleeves.
type MarkRequest struct {
	// Categories limits the run; empty marks every category that has zones.
	Categories []domain.Category
	// ProjectPrefix replaces the settings' project prefix when set.
	ProjectPrefix string
	// DisciplinePrefixes replaces the category default prefix per category.
	DisciplinePrefixes map[domain.Category]string
	// RemarkAll renumbers every category as if its remark flag were set.
	RemarkAll bool
	Settings  *domain.MarkPrefixSettings
	Mode      MarkMode
	// AllowedPrefixes restricts numbering to these prefixes; nil numbers all.
	AllowedPrefixes []string
}

// MarkReport summarizes a MarkSleeves run.
type MarkReport struct {
	Status          domain.CommitStatus    `json:"status"`
	Processed       int                    `json:"processed"`
	Numbered        int                    `json:"numbered"`
	AlreadyNumbered int                    `json:"already_numbered"`
	Prefixed        int                    `json:"prefixed"`
	Skipped         int                    `json:"skipped"`
	Errors          int                    `json:"errors"`
	CountersReset   int                    `json:"counters_reset"`
	ZonesResolved   int                    `json:"zones_resolved"`
	Rules           map[marking.RuleID]int `json:"rules,omitempty"`
	Categories      []domain.Category      `json:"categories"`
}

func (r MarkRequest) validate() error {
	if r.Settings == nil {
		return domain.ValidationError{Field: "settings", Message: "settings required"}
	}
	if _, err := ParseMarkMode(string(r.Mode)); err != nil {
		return err
	}
	for c, p := range r.DisciplinePrefixes {
		if err := domain.ValidatePrefix("discipline_prefixes."+string(c), p); err != nil {
			return err
		}
	}
	return domain.ValidatePrefix("project_prefix", r.ProjectPrefix)
}

// effectivePrefix joins the project prefix and the resolved prefix.
func effectivePrefix(project, prefix string) string {
	if project == "" || prefix == "" {
		return prefix
	}
	return project + "-" + prefix
}

// MarkSleeves resolves prefixes and assigns numbers for every sleeve of the
// requested categories inside one host transaction. Per-sleeve failures are
// counted; a failed commit fails the whole run.
func (s *Service) MarkSleeves(ctx context.Context, req MarkRequest) (MarkReport, error) {
	var report MarkReport
	err := s.run(ctx, OpMarkSleeves, func(ctx context.Context, log logging.Logger) (map[string]any, error) {
		var err error
		report, err = s.markSleeves(ctx, req, log)
		return map[string]any{
			"processed": report.Processed,
			"numbered":  report.Numbered,
			"errors":    report.Errors,
			"mode":      string(req.Mode),
		}, err
	})
	return report, err
}

func (s *Service) markSleeves(ctx context.Context, req MarkRequest, log logging.Logger) (MarkReport, error) {
	report := MarkReport{Rules: make(map[marking.RuleID]int)}
	if err := req.validate(); err != nil {
		return report, err
	}
	mode, _ := ParseMarkMode(string(req.Mode))
	settings := req.Settings
	project := strings.TrimSpace(req.ProjectPrefix)
	if project == "" {
		project = settings.ProjectPrefix()
	}

	zones, err := s.store.ZoneSnapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("read clash zones: %w", err)
	}
	categories := req.Categories
	if len(categories) == 0 {
		categories = zones.Categories()
	}
	categories = uniqueCategories(categories)
	report.Categories = categories
	if len(categories) == 0 {
		log.Info("no categories to mark")
		report.Status = domain.CommitCommitted
		return report, nil
	}

	aggregator := cluster.NewAggregator(zones, log)
	resolver := marking.NewResolver(aggregator, log)
	numberer := marking.NewNumberer(log)
	contributing := make(map[string]bool)

	status, err := s.store.RunInTransaction(ctx, "mark sleeves", func(tx domain.DocumentTx) error {
		var pending []marking.Pending
		for _, category := range categories {
			if err := ctx.Err(); err != nil {
				return err
			}
			remark := req.RemarkAll || settings.ShouldRemark(category)
			if remark && mode != ModePrefixOnly {
				report.CountersReset += tx.ResetCounters(category, domain.AllScopes)
			}
			defaultPrefix := settings.DefaultPrefix(category)
			if p, ok := req.DisciplinePrefixes[category]; ok && strings.TrimSpace(p) != "" {
				defaultPrefix = strings.TrimSpace(p)
			}
			for _, sleeve := range tx.ListSleeves(category) {
				report.Processed++
				if mode == ModeNumberOnly {
					prefix, _, _ := domain.ParseMark(sleeve.Mark)
					if prefix == "" {
						report.Skipped++
						continue
					}
					pending = append(pending, marking.Pending{Sleeve: sleeve, Prefix: prefix, Renumber: remark})
					continue
				}
				res := resolver.Resolve(sleeve, category, defaultPrefix, settings)
				report.Rules[res.Rule]++
				if res.LookupFailed {
					report.Errors++
				}
				for _, z := range constituentIDs(aggregator, sleeve) {
					contributing[z] = true
				}
				prefix := effectivePrefix(project, res.Prefix)
				if mode == ModePrefixOnly {
					s.applyPrefix(tx, sleeve, prefix, &report, log)
					continue
				}
				pending = append(pending, marking.Pending{Sleeve: sleeve, Prefix: prefix, Renumber: remark})
			}
		}
		if mode == ModePrefixOnly {
			return nil
		}
		numbered, err := numberer.AssignNumbers(tx, pending, settings.NumberFormat(), req.AllowedPrefixes)
		if err != nil {
			return err
		}
		report.Numbered = numbered.Assigned
		report.AlreadyNumbered = numbered.AlreadyNumbered
		report.Skipped += numbered.Filtered
		report.Errors += numbered.Errors
		return nil
	})
	report.Status = status
	if err != nil {
		return report, err
	}

	if len(contributing) > 0 {
		ids := make([]string, 0, len(contributing))
		for id := range contributing {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		n, err := s.store.SetResolved(ctx, ids, true)
		if err != nil {
			log.Warn("marking committed but zone resolution flags were not updated", "error", err)
			report.Errors++
		}
		report.ZonesResolved = n
	}
	return report, nil
}

// applyPrefix writes a bare prefix to a sleeve whose current prefix differs.
// Sleeves already carrying the prefix keep their number; a changed prefix
// drops the old number and a later NumberOnly run numbers the bare mark.
func (s *Service) applyPrefix(tx domain.DocumentTx, sleeve domain.Sleeve, prefix string, report *MarkReport, log logging.Logger) {
	current, _, _ := domain.ParseMark(sleeve.Mark)
	if current == prefix {
		return
	}
	if err := tx.WriteAttribute(sleeve.ID, domain.AttrMark, domain.StringValue(prefix)); err != nil {
		report.Errors++
		log.Warn("prefix write failed", "sleeve", sleeve.ID, "prefix", prefix, "error", err)
		return
	}
	report.Prefixed++
}

func constituentIDs(a *cluster.Aggregator, sleeve domain.Sleeve) []string {
	zones, err := a.ResolveConstituentZones(sleeve)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(zones))
	for _, z := range zones {
		ids = append(ids, z.ID)
	}
	return ids
}

func uniqueCategories(in []domain.Category) []domain.Category {
	seen := make(map[domain.Category]bool, len(in))
	out := make([]domain.Category, 0, len(in))
	for _, c := range in {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
