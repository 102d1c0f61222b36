package domain

import (
	"fmt"
	"strings"
)

// TransferKind says where a mapping reads its source value.
type TransferKind string

// Transfer kinds.
const (
	TransferConduitToOpening TransferKind = "conduit_to_opening"
	TransferHostToOpening    TransferKind = "host_to_opening"
	TransferLevelToOpening   TransferKind = "level_to_opening"
)

// AggregationPolicy combines attribute values of a combined sleeve's
// constituents.
type AggregationPolicy string

// Aggregation policies.
const (
	AggregateFirstNonEmpty AggregationPolicy = "first_non_empty"
	AggregateConcatenate   AggregationPolicy = "concatenate"
	AggregatePreferHost    AggregationPolicy = "prefer_host"
)

// DefaultJoinSeparator joins concatenated values when a mapping has none.
const DefaultJoinSeparator = ", "

// ParameterMapping copies one source attribute onto one target attribute.
type ParameterMapping struct {
	Source     string       `json:"source" yaml:"source"`
	Target     string       `json:"target" yaml:"target"`
	Kind       TransferKind `json:"kind" yaml:"kind"`
	Enabled    bool         `json:"enabled" yaml:"enabled"`
	Separator  string       `json:"separator,omitempty" yaml:"separator,omitempty"`
	Categories []Category   `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// AppliesTo reports whether the mapping is scoped to c.
func (m ParameterMapping) AppliesTo(c Category) bool {
	if len(m.Categories) == 0 {
		return true
	}
	for _, mc := range m.Categories {
		if mc == c {
			return true
		}
	}
	return false
}

// ParameterTransferConfiguration configures one batch transfer.
type ParameterTransferConfiguration struct {
	Name     string             `json:"name" yaml:"name"`
	Mappings []ParameterMapping `json:"mappings" yaml:"mappings"`
	// Policies overrides the aggregation policy per source attribute name.
	Policies map[string]AggregationPolicy `json:"policies,omitempty" yaml:"policies,omitempty"`
	// Aliases lists extra source names that may satisfy a requested name.
	Aliases map[string][]string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	// Workers bounds the parallel calculate phase; zero uses GOMAXPROCS.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// EnabledMappings returns enabled mappings in declaration order together
// with their declaration index.
func (c ParameterTransferConfiguration) EnabledMappings() []IndexedMapping {
	var out []IndexedMapping
	for i, m := range c.Mappings {
		if m.Enabled {
			out = append(out, IndexedMapping{Index: i, Mapping: m})
		}
	}
	return out
}

// IndexedMapping pairs a mapping with its declaration order.
type IndexedMapping struct {
	Index   int
	Mapping ParameterMapping
}

// Validate rejects configurations that would either do nothing or write the
// same target attribute twice for one element.
func (c ParameterTransferConfiguration) Validate() error {
	enabled := c.EnabledMappings()
	if len(enabled) == 0 {
		return ValidationError{Field: "mappings", Message: "no mappings enabled"}
	}
	for _, im := range enabled {
		m := im.Mapping
		field := fmt.Sprintf("mappings[%d]", im.Index)
		if strings.TrimSpace(m.Target) == "" {
			return ValidationError{Field: field, Message: "target attribute is required"}
		}
		if m.Kind != TransferLevelToOpening && strings.TrimSpace(m.Source) == "" {
			return ValidationError{Field: field, Message: "source attribute is required"}
		}
		switch m.Kind {
		case TransferConduitToOpening, TransferHostToOpening, TransferLevelToOpening:
		default:
			return ValidationError{Field: field, Message: fmt.Sprintf("unknown transfer kind %q", m.Kind)}
		}
	}
	for i, a := range enabled {
		for _, b := range enabled[i+1:] {
			if !strings.EqualFold(strings.TrimSpace(a.Mapping.Target), strings.TrimSpace(b.Mapping.Target)) {
				continue
			}
			if categoriesOverlap(a.Mapping.Categories, b.Mapping.Categories) {
				return ValidationError{
					Field:   fmt.Sprintf("mappings[%d]", b.Index),
					Message: fmt.Sprintf("target %q already written by mappings[%d]", b.Mapping.Target, a.Index),
				}
			}
		}
	}
	for name, p := range c.Policies {
		switch p {
		case AggregateFirstNonEmpty, AggregateConcatenate, AggregatePreferHost:
		default:
			return ValidationError{Field: "policies." + name, Message: fmt.Sprintf("unknown policy %q", p)}
		}
	}
	if c.Workers < 0 {
		return ValidationError{Field: "workers", Message: "must not be negative"}
	}
	return nil
}

func categoriesOverlap(a, b []Category) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// UpdateAction is one pending attribute write computed by the calculate phase.
type UpdateAction struct {
	TargetID     ElementID
	Attribute    string
	Value        Value
	MappingIndex int
}

// TransferResult summarizes a batch transfer. Transferred counts distinct
// targets that received at least one successful write; Failed counts
// rejected writes.
type TransferResult struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message,omitempty"`
	Transferred int      `json:"transferred"`
	Failed      int      `json:"failed"`
	Attempted   int      `json:"attempted"`
	Written     int      `json:"written"`
	Warnings    []string `json:"warnings,omitempty"`
}
