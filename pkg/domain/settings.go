package domain

import (
	"fmt"
	"sort"
	"strings"
)

// MixedPrefix is the discipline-neutral prefix used for sleeves of mixed
// provenance and for combined sleeves without a specific override. It is the
// only prefix that is not configurable.
const MixedPrefix = "MEP"

// DefaultUnmappedPrefix is used for categories that have no configured default.
const DefaultUnmappedPrefix = "SL"

// NormalizeSystemType folds case and whitespace so that user-typed system
// type labels compare equal regardless of formatting.
func NormalizeSystemType(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// OverrideEntry maps a system type label to a prefix.
type OverrideEntry struct {
	SystemType string `json:"system_type" yaml:"system_type"`
	Prefix     string `json:"prefix" yaml:"prefix"`
}

// OverrideMap is an ordered, case-insensitive system type to prefix map.
type OverrideMap struct {
	entries []OverrideEntry
	index   map[string]int
}

// NewOverrideMap validates and indexes entries, preserving declaration order.
func NewOverrideMap(group CategoryGroup, entries []OverrideEntry) (*OverrideMap, error) {
	m := &OverrideMap{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		key := NormalizeSystemType(e.SystemType)
		field := fmt.Sprintf("overrides.%s", group)
		if key == "" {
			return nil, ValidationError{Field: field, Message: "system type must not be empty"}
		}
		prefix := strings.TrimSpace(e.Prefix)
		if err := validatePrefix(field, prefix, true); err != nil {
			return nil, err
		}
		if _, dup := m.index[key]; dup {
			return nil, ValidationError{Field: field, Message: fmt.Sprintf("duplicate system type %q", e.SystemType)}
		}
		m.index[key] = len(m.entries)
		m.entries = append(m.entries, OverrideEntry{SystemType: strings.TrimSpace(e.SystemType), Prefix: prefix})
	}
	return m, nil
}

// Lookup returns the prefix configured for systemType.
func (m *OverrideMap) Lookup(systemType string) (string, bool) {
	if m == nil {
		return "", false
	}
	i, ok := m.index[NormalizeSystemType(systemType)]
	if !ok {
		return "", false
	}
	return m.entries[i].Prefix, true
}

// Entries returns the overrides in declaration order.
func (m *OverrideMap) Entries() []OverrideEntry {
	if m == nil {
		return nil
	}
	return append([]OverrideEntry(nil), m.entries...)
}

// Len returns the number of overrides.
func (m *OverrideMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// SettingsInput is the unvalidated, serialisable form of MarkPrefixSettings.
type SettingsInput struct {
	ProjectPrefix    string                     `json:"project_prefix" yaml:"project_prefix"`
	CategoryDefaults map[string]string          `json:"category_defaults" yaml:"category_defaults"`
	UnmappedPrefix   string                     `json:"unmapped_prefix" yaml:"unmapped_prefix"`
	Remark           map[string]bool            `json:"remark" yaml:"remark"`
	NumberFormat     string                     `json:"number_format" yaml:"number_format"`
	Overrides        map[string][]OverrideEntry `json:"overrides" yaml:"overrides"`
}

// MarkPrefixSettings is the validated settings snapshot for one run. It is
// never mutated after construction.
type MarkPrefixSettings struct {
	projectPrefix    string
	categoryDefaults map[Category]string
	unmappedPrefix   string
	remark           map[Category]bool
	numberFormat     NumberFormat
	overrides        map[CategoryGroup]*OverrideMap
}

// DefaultSettingsInput returns the settings shipped with a new project.
func DefaultSettingsInput() SettingsInput {
	return SettingsInput{
		CategoryDefaults: map[string]string{
			string(CategoryDuct):          "D",
			string(CategoryPipe):          "P",
			string(CategoryCableTray):     "CT",
			string(CategoryDuctAccessory): "DA",
			string(CategoryPipeAccessory): "PA",
			string(CategoryConduit):       "C",
		},
		UnmappedPrefix: DefaultUnmappedPrefix,
		NumberFormat:   "000",
	}
}

// DefaultSettings returns validated default settings.
func DefaultSettings() *MarkPrefixSettings {
	s, err := NewMarkPrefixSettings(DefaultSettingsInput())
	if err != nil {
		panic(err)
	}
	return s
}

// NewMarkPrefixSettings validates in and normalizes every key at this
// boundary so lookups never have to.
func NewMarkPrefixSettings(in SettingsInput) (*MarkPrefixSettings, error) {
	s := &MarkPrefixSettings{
		projectPrefix:    strings.TrimSpace(in.ProjectPrefix),
		categoryDefaults: make(map[Category]string, len(in.CategoryDefaults)),
		unmappedPrefix:   strings.TrimSpace(in.UnmappedPrefix),
		remark:           make(map[Category]bool, len(in.Remark)),
		overrides:        make(map[CategoryGroup]*OverrideMap, len(in.Overrides)),
	}
	if s.unmappedPrefix == "" {
		s.unmappedPrefix = DefaultUnmappedPrefix
	}
	if err := validatePrefix("unmapped_prefix", s.unmappedPrefix, true); err != nil {
		return nil, err
	}
	if err := validatePrefix("project_prefix", s.projectPrefix, false); err != nil {
		return nil, err
	}
	for name, prefix := range in.CategoryDefaults {
		c, err := categoryKey("category_defaults", name)
		if err != nil {
			return nil, err
		}
		prefix = strings.TrimSpace(prefix)
		if err := validatePrefix("category_defaults."+name, prefix, true); err != nil {
			return nil, err
		}
		s.categoryDefaults[c] = prefix
	}
	for name, on := range in.Remark {
		c, err := categoryKey("remark", name)
		if err != nil {
			return nil, err
		}
		s.remark[c] = on
	}
	for name, entries := range in.Overrides {
		c, err := categoryKey("overrides", name)
		if err != nil {
			return nil, err
		}
		group := c.Group()
		if _, dup := s.overrides[group]; dup {
			return nil, ValidationError{Field: "overrides", Message: fmt.Sprintf("group %s configured twice", group)}
		}
		m, err := NewOverrideMap(group, entries)
		if err != nil {
			return nil, err
		}
		s.overrides[group] = m
	}
	nf, err := ParseNumberFormat(in.NumberFormat)
	if err != nil {
		return nil, err
	}
	s.numberFormat = nf
	return s, nil
}

func categoryKey(field, name string) (Category, error) {
	c, ok := ParseCategory(name)
	if !ok {
		return "", ValidationError{Field: field, Message: fmt.Sprintf("unknown category %q", name)}
	}
	return c, nil
}

func validatePrefix(field, prefix string, required bool) error {
	if prefix == "" {
		if required {
			return ValidationError{Field: field, Message: "prefix must not be empty"}
		}
		return nil
	}
	last := prefix[len(prefix)-1]
	if last >= '0' && last <= '9' {
		return ValidationError{Field: field, Message: fmt.Sprintf("prefix %q must not end in a digit", prefix)}
	}
	return nil
}

// ProjectPrefix returns the project-wide prefix.
func (s *MarkPrefixSettings) ProjectPrefix() string { return s.projectPrefix }

// NumberFormat returns the sequence number format.
func (s *MarkPrefixSettings) NumberFormat() NumberFormat { return s.numberFormat }

// UnmappedPrefix returns the prefix used for categories without a default.
func (s *MarkPrefixSettings) UnmappedPrefix() string { return s.unmappedPrefix }

// DefaultPrefix returns the configured default for c or the unmapped fallback.
func (s *MarkPrefixSettings) DefaultPrefix(c Category) string {
	if p, ok := s.categoryDefaults[c]; ok {
		return p
	}
	return s.unmappedPrefix
}

// HasDefault reports whether c has an explicitly configured default.
func (s *MarkPrefixSettings) HasDefault(c Category) bool {
	_, ok := s.categoryDefaults[c]
	return ok
}

// ShouldRemark reports whether existing marks of c must be recomputed.
func (s *MarkPrefixSettings) ShouldRemark(c Category) bool { return s.remark[c] }

// Override looks up a user-defined prefix for systemType within group.
func (s *MarkPrefixSettings) Override(group CategoryGroup, systemType string) (string, bool) {
	return s.overrides[group].Lookup(systemType)
}

// Overrides returns the override map of group, which may be nil.
func (s *MarkPrefixSettings) Overrides(group CategoryGroup) *OverrideMap { return s.overrides[group] }

// Input converts the settings back into their serialisable form.
func (s *MarkPrefixSettings) Input() SettingsInput {
	in := SettingsInput{
		ProjectPrefix:    s.projectPrefix,
		CategoryDefaults: make(map[string]string, len(s.categoryDefaults)),
		UnmappedPrefix:   s.unmappedPrefix,
		NumberFormat:     s.numberFormat.Pattern,
	}
	for c, p := range s.categoryDefaults {
		in.CategoryDefaults[string(c)] = p
	}
	if len(s.remark) > 0 {
		in.Remark = make(map[string]bool, len(s.remark))
		for c, on := range s.remark {
			in.Remark[string(c)] = on
		}
	}
	if len(s.overrides) > 0 {
		in.Overrides = make(map[string][]OverrideEntry, len(s.overrides))
		groups := make([]string, 0, len(s.overrides))
		for g := range s.overrides {
			groups = append(groups, string(g))
		}
		sort.Strings(groups)
		for _, g := range groups {
			in.Overrides[g] = s.overrides[CategoryGroup(g)].Entries()
		}
	}
	return in
}

// ValidatePrefix rejects a prefix ending in a digit, which would make marks
// ambiguous. An empty prefix is accepted.
func ValidatePrefix(field, prefix string) error {
	return validatePrefix(field, strings.TrimSpace(prefix), false)
}
