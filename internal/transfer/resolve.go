package transfer

import (
	"sort"
	"strings"

	"sleevemark/internal/cluster"
	"sleevemark/pkg/domain"
)

// disciplinePrefixes are stripped from a requested source name when neither
// the name nor a configured alias is present.
var disciplinePrefixes = []string{"MEP ", "MEP_"}

// ValueResolver computes the value a mapping writes for one identity.
type ValueResolver interface {
	ResolveValue(src Source, m domain.ParameterMapping, id domain.SleeveIdentity) (string, bool)
}

type aliasResolver struct {
	policies map[string]domain.AggregationPolicy
	aliases  map[string][]string
}

// NewValueResolver returns the resolver configured by cfg's policies and
// aliases.
func NewValueResolver(cfg domain.ParameterTransferConfiguration) ValueResolver {
	r := &aliasResolver{
		policies: make(map[string]domain.AggregationPolicy, len(cfg.Policies)),
		aliases:  make(map[string][]string, len(cfg.Aliases)),
	}
	for name, p := range cfg.Policies {
		r.policies[strings.ToLower(strings.TrimSpace(name))] = p
	}
	for name, list := range cfg.Aliases {
		key := strings.ToLower(strings.TrimSpace(name))
		r.aliases[key] = append(r.aliases[key], list...)
	}
	return r
}

func (r *aliasResolver) ResolveValue(src Source, m domain.ParameterMapping, id domain.SleeveIdentity) (string, bool) {
	if m.Kind == domain.TransferLevelToOpening {
		if id.Level == "" {
			return "", false
		}
		return id.Level, true
	}
	if src == nil {
		return "", false
	}
	ns := cluster.NamespaceConduit
	if m.Kind == domain.TransferHostToOpening {
		ns = cluster.NamespaceHost
	}
	policy := cluster.Policy{Kind: r.policy(m.Source), Separator: m.Separator}
	return src.Value(ns, policy, r.matcher(m.Source))
}

func (r *aliasResolver) policy(source string) domain.AggregationPolicy {
	if p, ok := r.policies[strings.ToLower(strings.TrimSpace(source))]; ok {
		return p
	}
	return domain.AggregateFirstNonEmpty
}

// candidates lists the names tried for source, most specific first.
func (r *aliasResolver) candidates(source string) []string {
	source = strings.TrimSpace(source)
	names := []string{source}
	names = append(names, r.aliases[strings.ToLower(source)]...)
	for _, p := range disciplinePrefixes {
		if len(source) > len(p) && strings.EqualFold(source[:len(p)], p) {
			names = append(names, strings.TrimSpace(source[len(p):]))
		}
	}
	return names
}

func (r *aliasResolver) matcher(source string) cluster.Matcher {
	names := r.candidates(source)
	return func(attrs map[string]string) (string, bool) {
		if len(attrs) == 0 {
			return "", false
		}
		for _, name := range names {
			if v, ok := attrs[name]; ok && strings.TrimSpace(v) != "" {
				return v, true
			}
			if v, ok := lookupFold(attrs, name); ok {
				return v, true
			}
		}
		return "", false
	}
}

func lookupFold(attrs map[string]string, name string) (string, bool) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if strings.EqualFold(k, name) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := attrs[k]; strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}
