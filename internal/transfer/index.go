// Package transfer propagates captured conduit and host attributes onto
// sleeves. A batch loads the snapshot index once, computes every update in
// parallel and writes them from a single goroutine inside one transaction.
package transfer

import (
	"sort"

	"sleevemark/internal/cluster"
	"sleevemark/pkg/domain"
)

// maxAliasHops bounds alias redirect chains so a cyclic alias table cannot hang a lookup.
const maxAliasHops = 8

// Source answers attribute lookups for one resolved identity.
type Source interface {
	Ref() domain.IdentityRef
	Value(ns cluster.Namespace, policy cluster.Policy, match cluster.Matcher) (string, bool)
}

// Index is the immutable in-memory snapshot index. It is safe for concurrent
// reads once built.
type Index struct {
	individual map[domain.ElementID]domain.SleeveSnapshotView
	cluster    map[domain.ElementID]domain.SleeveSnapshotView
	combined   map[domain.ElementID]cluster.Combined
	aliases    map[domain.ElementID]domain.ElementID
	records    int
}

// NewIndex builds the three-way index. Individual and cluster keys keep the
// most recently captured record; combined keys keep every constituent.
func NewIndex(data domain.SnapshotData) *Index {
	ix := &Index{
		individual: make(map[domain.ElementID]domain.SleeveSnapshotView),
		cluster:    make(map[domain.ElementID]domain.SleeveSnapshotView),
		combined:   make(map[domain.ElementID]cluster.Combined),
		aliases:    make(map[domain.ElementID]domain.ElementID, len(data.Aliases)),
		records:    len(data.Records),
	}
	for k, v := range data.Aliases {
		if k != v {
			ix.aliases[k] = v
		}
	}

	records := append([]domain.SnapshotRecord(nil), data.Records...)
	sort.SliceStable(records, func(i, j int) bool { return records[i].CapturedAt.Before(records[j].CapturedAt) })

	grouped := make(map[domain.ElementID][]domain.SnapshotRecord)
	for _, r := range records {
		switch r.Kind {
		case domain.IdentityCombined:
			grouped[r.Key] = append(grouped[r.Key], r)
		case domain.IdentityCluster:
			ix.cluster[r.Key] = viewOf(r)
		default:
			ix.individual[r.Key] = viewOf(r)
		}
	}
	for key, rs := range grouped {
		ix.combined[key] = cluster.NewCombined(key, rs)
	}
	return ix
}

func viewOf(r domain.SnapshotRecord) domain.SleeveSnapshotView {
	cp := domain.CloneSnapshotRecord(r)
	return domain.SleeveSnapshotView{Kind: cp.Kind, Key: cp.Key, Conduit: cp.Conduit, Host: cp.Host}
}

// Len returns the number of records the index was built from.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.records
}

// Canonical follows the alias table from id to its current id.
func (ix *Index) Canonical(id domain.ElementID) domain.ElementID {
	for hops := 0; hops < maxAliasHops; hops++ {
		next, ok := ix.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
	return id
}

// Lookup returns the source stored under ref, following aliases when the key
// itself has no record.
func (ix *Index) Lookup(ref domain.IdentityRef) (Source, bool) {
	if ix == nil || ref.Key == 0 {
		return nil, false
	}
	if src, ok := ix.lookup(ref.Kind, ref.Key); ok {
		return src, true
	}
	if canonical := ix.Canonical(ref.Key); canonical != ref.Key {
		return ix.lookup(ref.Kind, canonical)
	}
	return nil, false
}

func (ix *Index) lookup(kind domain.IdentityKind, key domain.ElementID) (Source, bool) {
	switch kind {
	case domain.IdentityCombined:
		c, ok := ix.combined[key]
		if !ok || c.Len() == 0 {
			return nil, false
		}
		return combinedSource{c: c}, true
	case domain.IdentityCluster:
		v, ok := ix.cluster[key]
		if !ok {
			return nil, false
		}
		return viewSource{v: v}, true
	default:
		v, ok := ix.individual[key]
		if !ok {
			return nil, false
		}
		return viewSource{v: v}, true
	}
}

// Resolve picks the highest priority source available for id.
func (ix *Index) Resolve(id domain.SleeveIdentity) (Source, bool) {
	for _, ref := range id.Candidates() {
		if src, ok := ix.Lookup(ref); ok {
			return src, true
		}
	}
	return nil, false
}

type viewSource struct {
	v domain.SleeveSnapshotView
}

func (s viewSource) Ref() domain.IdentityRef {
	return domain.IdentityRef{Kind: s.v.Kind, Key: s.v.Key}
}

func (s viewSource) Value(ns cluster.Namespace, policy cluster.Policy, match cluster.Matcher) (string, bool) {
	if policy.Kind == domain.AggregatePreferHost {
		if v, ok := nonEmpty(match(s.v.Host)); ok {
			return v, true
		}
		return nonEmpty(match(s.v.Conduit))
	}
	if ns == cluster.NamespaceHost {
		return nonEmpty(match(s.v.Host))
	}
	return nonEmpty(match(s.v.Conduit))
}

func nonEmpty(v string, ok bool) (string, bool) {
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

type combinedSource struct {
	c cluster.Combined
}

func (s combinedSource) Ref() domain.IdentityRef {
	return domain.IdentityRef{Kind: domain.IdentityCombined, Key: s.c.Key}
}

func (s combinedSource) Value(ns cluster.Namespace, policy cluster.Policy, match cluster.Matcher) (string, bool) {
	return s.c.Value(ns, policy, match)
}
