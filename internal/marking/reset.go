package marking

import (
	"strings"

	"sleevemark/internal/logging"
	"sleevemark/pkg/domain"
)

// ResetScope bounds a reset. At least one of Level, Bounds, Selection or All
// must be set so that a reset is never global by accident.
type ResetScope struct {
	Categories []domain.Category
	Level      string
	Bounds     *domain.Box
	Selection  bool
	All        bool
}

// Validate rejects unbounded scopes.
func (s ResetScope) Validate() error {
	if s.All {
		return nil
	}
	if strings.TrimSpace(s.Level) == "" && s.Bounds == nil && !s.Selection {
		return domain.ValidationError{Field: "scope", Message: "reset requires a level, bounds, selection or the all flag"}
	}
	return nil
}

// ResetResult counts the outcome of ResetMarks.
type ResetResult struct {
	Cleared       int
	CountersReset int
	Errors        int
}

// ResetMarks clears marks of sleeves inside scope and drops the counters of
// that scope only. Counters are left alone for purely spatial scopes since a
// box or selection does not own a numbering history.
func ResetMarks(tx domain.DocumentTx, scope ResetScope, logger logging.Logger) (ResetResult, error) {
	logger = logging.OrNoop(logger)
	if err := scope.Validate(); err != nil {
		return ResetResult{}, err
	}
	var res ResetResult

	var selected map[domain.ElementID]bool
	if scope.Selection {
		selected = make(map[domain.ElementID]bool)
		for _, id := range tx.Selection() {
			selected[id] = true
		}
	}
	level := strings.TrimSpace(scope.Level)

	categories := make(map[domain.Category]bool)
	for _, s := range tx.ListSleeves(scope.Categories...) {
		if level != "" && !strings.EqualFold(s.Level, level) {
			continue
		}
		if scope.Bounds != nil && !scope.Bounds.Contains(s.Point) {
			continue
		}
		if selected != nil && !selected[s.ID] {
			continue
		}
		categories[s.Category] = true
		if s.Mark == "" {
			continue
		}
		if err := tx.WriteAttribute(s.ID, domain.AttrMark, domain.StringValue("")); err != nil {
			res.Errors++
			logger.Warn("mark clear failed", "sleeve", s.ID, "error", err)
			continue
		}
		res.Cleared++
	}

	counterScope := ""
	switch {
	case scope.All && level == "":
		counterScope = domain.AllScopes
	case level != "":
		counterScope = level
	default:
		logger.Info("spatial reset leaves counters untouched", "cleared", res.Cleared)
		return res, nil
	}
	for _, c := range scope.Categories {
		categories[c] = true
	}
	if len(scope.Categories) == 0 {
		for _, c := range tx.ListCounters() {
			categories[c.Key.Category] = true
		}
	}
	for c := range categories {
		res.CountersReset += tx.ResetCounters(c, counterScope)
	}
	return res, nil
}
