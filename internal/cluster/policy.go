package cluster

import (
	"sort"
	"strings"

	"sleevemark/pkg/domain"
)

// Namespace selects the conduit or host attribute map of a snapshot.
type Namespace int

// Attribute namespaces.
const (
	NamespaceConduit Namespace = iota
	NamespaceHost
)

func (n Namespace) String() string {
	if n == NamespaceHost {
		return "host"
	}
	return "conduit"
}

// Policy is an aggregation policy together with its join separator.
type Policy struct {
	Kind      domain.AggregationPolicy
	Separator string
}

// Matcher extracts one attribute from an attribute map.
type Matcher func(attrs map[string]string) (string, bool)

// Combined holds the constituent snapshot records of one combined sleeve in a
// stable order.
type Combined struct {
	Key     domain.ElementID
	records []domain.SnapshotRecord
}

// NewCombined orders records by conduit id, then capture time.
func NewCombined(key domain.ElementID, records []domain.SnapshotRecord) Combined {
	cp := append([]domain.SnapshotRecord(nil), records...)
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].ConduitID != cp[j].ConduitID {
			return cp[i].ConduitID < cp[j].ConduitID
		}
		return cp[i].CapturedAt.Before(cp[j].CapturedAt)
	})
	return Combined{Key: key, records: cp}
}

// Len returns the number of constituents.
func (c Combined) Len() int { return len(c.records) }

// Value aggregates one attribute across constituents. The namespace of a
// prefer-host policy is ignored: host values win, conduit values fill in.
func (c Combined) Value(ns Namespace, p Policy, match Matcher) (string, bool) {
	switch p.Kind {
	case domain.AggregateConcatenate:
		return c.concat(ns, p.Separator, match)
	case domain.AggregatePreferHost:
		if v, ok := c.first(NamespaceHost, match); ok {
			return v, true
		}
		return c.first(NamespaceConduit, match)
	default:
		return c.first(ns, match)
	}
}

func (c Combined) attrs(r domain.SnapshotRecord, ns Namespace) map[string]string {
	if ns == NamespaceHost {
		return r.Host
	}
	return r.Conduit
}

func (c Combined) first(ns Namespace, match Matcher) (string, bool) {
	for _, r := range c.records {
		if v, ok := match(c.attrs(r, ns)); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

func (c Combined) concat(ns Namespace, sep string, match Matcher) (string, bool) {
	if sep == "" {
		sep = domain.DefaultJoinSeparator
	}
	seen := make(map[string]bool)
	var parts []string
	for _, r := range c.records {
		v, ok := match(c.attrs(r, ns))
		v = strings.TrimSpace(v)
		if !ok || v == "" || seen[v] {
			continue
		}
		seen[v] = true
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, sep), true
}
