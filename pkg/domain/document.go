package domain

import (
	"strconv"
	"strings"
)

// Attribute names the core reads from and writes to sleeve elements.
const (
	AttrMark               = "Mark"
	AttrClusterInstanceID  = "Cluster Instance Id"
	AttrCombinedInstanceID = "Combined Instance Id"
)

// ValueKind identifies the storage type of an attribute value.
type ValueKind string

// Value kinds supported by the host document.
const (
	ValueString ValueKind = "string"
	ValueNumber ValueKind = "number"
	ValueID     ValueKind = "id"
)

// Value is a typed attribute value.
type Value struct {
	Kind ValueKind `json:"kind" yaml:"kind"`
	Str  string    `json:"str,omitempty" yaml:"str,omitempty"`
	Num  float64   `json:"num,omitempty" yaml:"num,omitempty"`
	ID   ElementID `json:"id,omitempty" yaml:"id,omitempty"`
}

// StringValue wraps s.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// NumberValue wraps n.
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Num: n} }

// IDValue wraps id.
func IDValue(id ElementID) Value { return Value{Kind: ValueID, ID: id} }

// String renders the value as display text.
func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueID:
		return strconv.FormatInt(int64(v.ID), 10)
	default:
		return v.Str
	}
}

// AsID interprets the value as an element reference. Strings holding an
// integer are accepted since some hosts store ids as text.
func (v Value) AsID() ElementID {
	switch v.Kind {
	case ValueID:
		return v.ID
	case ValueNumber:
		return ElementID(v.Num)
	default:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0
		}
		return ElementID(n)
	}
}

// Element is a host document element together with its attributes.
type Element struct {
	ID         ElementID        `json:"id" yaml:"id"`
	Category   Category         `json:"category" yaml:"category"`
	Kind       SleeveKind       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Level      string           `json:"level,omitempty" yaml:"level,omitempty"`
	Point      Point            `json:"point" yaml:"point"`
	Attributes map[string]Value `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// IsSleeve reports whether the element is a placed sleeve.
func (e Element) IsSleeve() bool { return e.Kind != "" }

// Sleeve projects a sleeve element onto the Sleeve view.
func (e Element) Sleeve() Sleeve {
	s := Sleeve{
		ID:       e.ID,
		Category: e.Category,
		Kind:     e.Kind,
		Level:    e.Level,
		Point:    e.Point,
	}
	if v, ok := e.Attributes[AttrMark]; ok {
		s.Mark = v.String()
	}
	if v, ok := e.Attributes[AttrClusterInstanceID]; ok {
		s.ClusterID = v.AsID()
	}
	if v, ok := e.Attributes[AttrCombinedInstanceID]; ok {
		s.CombinedID = v.AsID()
	}
	return s
}

// CloneElement deep copies the attribute map.
func CloneElement(e Element) Element {
	cp := e
	if e.Attributes != nil {
		cp.Attributes = make(map[string]Value, len(e.Attributes))
		for k, v := range e.Attributes {
			cp.Attributes[k] = v
		}
	}
	return cp
}

// AllScopes addresses every counter scope of a category in ResetCounters.
const AllScopes = "*"

// CounterKey addresses one running sequence counter. Scope is the level name,
// or empty for project-wide numbering.
type CounterKey struct {
	Category Category `json:"category" yaml:"category"`
	Scope    string   `json:"scope" yaml:"scope"`
	Prefix   string   `json:"prefix" yaml:"prefix"`
}

// Counter is a persisted counter value.
type Counter struct {
	Key   CounterKey `json:"key" yaml:"key"`
	Value int        `json:"value" yaml:"value"`
}

// CommitStatus reports the outcome of a host transaction.
type CommitStatus string

// Commit statuses.
const (
	CommitCommitted  CommitStatus = "committed"
	CommitRolledBack CommitStatus = "rolled_back"
	CommitFailed     CommitStatus = "failed"
)
