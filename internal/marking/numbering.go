package marking

import (
	"sort"

	"sleevemark/internal/logging"
	"sleevemark/pkg/domain"
)

// Pending is a sleeve whose prefix is known and which may need a number.
// Renumber discards an existing number carrying the same prefix.
type Pending struct {
	Sleeve   domain.Sleeve
	Prefix   string
	Renumber bool
}

// NumberingResult counts the outcome of AssignNumbers.
type NumberingResult struct {
	Assigned        int
	AlreadyNumbered int
	Filtered        int
	Errors          int
	Marks           map[domain.ElementID]string
}

// Numberer assigns sequence numbers within a host transaction.
type Numberer struct {
	logger logging.Logger
}

// NewNumberer constructs a Numberer.
func NewNumberer(logger logging.Logger) *Numberer {
	return &Numberer{logger: logging.OrNoop(logger)}
}

// AssignNumbers numbers every pending sleeve that lacks a number for its
// prefix. For each prefix the highest number already in use, either on a
// sleeve of the working set or in the counter store, is found first and new
// numbers continue from it in sleeve id order. allowedPrefixes == nil numbers
// every prefix.
func (n *Numberer) AssignNumbers(tx domain.DocumentTx, pending []Pending, format domain.NumberFormat, allowedPrefixes []string) (NumberingResult, error) {
	res := NumberingResult{Marks: make(map[domain.ElementID]string)}

	var allowed map[string]bool
	if allowedPrefixes != nil {
		allowed = make(map[string]bool, len(allowedPrefixes))
		for _, p := range allowedPrefixes {
			allowed[p] = true
		}
	}

	toNumber := make(map[string][]domain.Sleeve)
	releasing := make(map[domain.ElementID]bool)
	for _, p := range pending {
		if allowed != nil && !allowed[p.Prefix] {
			res.Filtered++
			continue
		}
		prefix, _, numbered := domain.ParseMark(p.Sleeve.Mark)
		if numbered && prefix == p.Prefix && !p.Renumber {
			res.AlreadyNumbered++
			continue
		}
		releasing[p.Sleeve.ID] = true
		toNumber[p.Prefix] = append(toNumber[p.Prefix], p.Sleeve)
	}
	if len(toNumber) == 0 {
		return res, nil
	}

	highest := n.scan(tx, releasing)
	prefixes := make([]string, 0, len(toNumber))
	for p := range toNumber {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	for _, prefix := range prefixes {
		sleeves := toNumber[prefix]
		domain.SortSleeves(sleeves)
		next := highest[prefix] + 1
		issued := make(map[domain.CounterKey]int)
		for _, s := range sleeves {
			mark := domain.FormatMark(prefix, next, format)
			if err := tx.WriteAttribute(s.ID, domain.AttrMark, domain.StringValue(mark)); err != nil {
				res.Errors++
				n.logger.Warn("mark write failed", "sleeve", s.ID, "mark", mark, "error", err)
				continue
			}
			key := domain.CounterKey{Category: s.Category, Scope: s.Level, Prefix: prefix}
			issued[key] = next
			res.Marks[s.ID] = mark
			res.Assigned++
			next++
		}
		for key, value := range issued {
			if value <= tx.Counter(key) {
				continue
			}
			if err := tx.SetCounter(key, value); err != nil {
				res.Errors++
				n.logger.Warn("counter update failed", "category", key.Category, "scope", key.Scope, "prefix", key.Prefix, "error", err)
			}
		}
		n.logger.Debug("prefix numbered", "prefix", prefix, "from", highest[prefix]+1, "to", next-1)
	}
	return res, nil
}

// scan returns, per prefix, the highest number in use by sleeves that are not
// being renumbered and by the counter store.
func (n *Numberer) scan(view domain.DocumentView, releasing map[domain.ElementID]bool) map[string]int {
	highest := make(map[string]int)
	for _, s := range view.ListSleeves() {
		if releasing[s.ID] {
			continue
		}
		prefix, num, ok := domain.ParseMark(s.Mark)
		if ok && num > highest[prefix] {
			highest[prefix] = num
		}
	}
	for _, c := range view.ListCounters() {
		if c.Value > highest[c.Key.Prefix] {
			highest[c.Key.Prefix] = c.Value
		}
	}
	return highest
}
