// Package domain defines the clash zone, sleeve and settings entities, the
// value types shared by the marking and transfer engines, and the store
// interfaces those engines consume.
package domain

import (
	"sort"
	"strings"
)

// ElementID identifies an element in the host document. Zero is never a
// valid element.
type ElementID int64

// Category identifies the service category of a conduit or sleeve.
type Category string

// Supported conduit categories.
const (
	// CategoryDuct identifies ductwork.
	CategoryDuct Category = "Duct"
	// CategoryPipe identifies pipework.
	CategoryPipe Category = "Pipe"
	// CategoryCableTray identifies cable trays.
	CategoryCableTray Category = "CableTray"
	// CategoryDuctAccessory identifies dampers, silencers and other duct accessories.
	CategoryDuctAccessory Category = "DuctAccessory"
	// CategoryPipeAccessory identifies valves and other pipe accessories.
	CategoryPipeAccessory Category = "PipeAccessory"
	// CategoryConduit identifies electrical conduits.
	CategoryConduit Category = "Conduit"
)

// KnownCategories lists the categories in their canonical order.
func KnownCategories() []Category {
	return []Category{CategoryDuct, CategoryPipe, CategoryCableTray, CategoryDuctAccessory, CategoryPipeAccessory, CategoryConduit}
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(name string) (Category, bool) {
	trimmed := strings.TrimSpace(name)
	for _, c := range KnownCategories() {
		if strings.EqualFold(string(c), trimmed) {
			return c, true
		}
	}
	return "", false
}

// CategoryGroup collapses accessory categories onto their parent service so
// that overrides configured for ducts also apply to duct accessories.
type CategoryGroup string

// Override groups.
const (
	GroupDuct      CategoryGroup = "Duct"
	GroupPipe      CategoryGroup = "Pipe"
	GroupCableTray CategoryGroup = "CableTray"
	GroupConduit   CategoryGroup = "Conduit"
)

// Group returns the override group a category belongs to.
func (c Category) Group() CategoryGroup {
	switch c {
	case CategoryDuct, CategoryDuctAccessory:
		return GroupDuct
	case CategoryPipe, CategoryPipeAccessory:
		return GroupPipe
	case CategoryCableTray:
		return GroupCableTray
	case CategoryConduit:
		return GroupConduit
	default:
		return CategoryGroup(c)
	}
}

// Point is a placement point in model coordinates.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Box is an axis aligned bounding box used to scope reset operations.
type Box struct {
	Min Point `json:"min" yaml:"min"`
	Max Point `json:"max" yaml:"max"`
}

// Contains reports whether p lies inside the box, boundaries included.
func (b Box) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ClashZone records one detected intersection between a conduit and a
// structural host. Zones are produced by an external detection process.
type ClashZone struct {
	ID                 string    `json:"id" yaml:"id"`
	Category           Category  `json:"category" yaml:"category"`
	SystemType         string    `json:"system_type" yaml:"system_type"`
	LinkID             int64     `json:"link_id" yaml:"link_id"`
	ConduitID          ElementID `json:"conduit_id" yaml:"conduit_id"`
	HostID             ElementID `json:"host_id" yaml:"host_id"`
	SleeveInstanceID   ElementID `json:"sleeve_instance_id,omitempty" yaml:"sleeve_instance_id,omitempty"`
	ClusterSleeveID    ElementID `json:"cluster_sleeve_id,omitempty" yaml:"cluster_sleeve_id,omitempty"`
	CombinedInstanceID ElementID `json:"combined_instance_id,omitempty" yaml:"combined_instance_id,omitempty"`
	Level              string    `json:"level,omitempty" yaml:"level,omitempty"`
	Point              Point     `json:"point" yaml:"point"`
	Resolved           bool      `json:"resolved" yaml:"resolved"`
}

// SleeveKind distinguishes individual, clustered and combined sleeves.
type SleeveKind string

// Sleeve kinds.
const (
	SleeveIndividual SleeveKind = "individual"
	SleeveCluster    SleeveKind = "cluster"
	SleeveCombined   SleeveKind = "combined"
)

// Sleeve is a placed penetration component.
type Sleeve struct {
	ID         ElementID  `json:"id" yaml:"id"`
	Category   Category   `json:"category" yaml:"category"`
	Kind       SleeveKind `json:"kind" yaml:"kind"`
	Mark       string     `json:"mark,omitempty" yaml:"mark,omitempty"`
	Level      string     `json:"level,omitempty" yaml:"level,omitempty"`
	Point      Point      `json:"point" yaml:"point"`
	ClusterID  ElementID  `json:"cluster_id,omitempty" yaml:"cluster_id,omitempty"`
	CombinedID ElementID  `json:"combined_id,omitempty" yaml:"combined_id,omitempty"`
}

// IsCombined reports whether the sleeve serves zones from several categories.
func (s Sleeve) IsCombined() bool { return s.Kind == SleeveCombined }

// IsCluster reports whether the sleeve was merged from coincident zones.
func (s Sleeve) IsCluster() bool { return s.Kind == SleeveCluster }

// SortSleeves orders sleeves by id ascending in place.
func SortSleeves(sleeves []Sleeve) {
	sort.Slice(sleeves, func(i, j int) bool { return sleeves[i].ID < sleeves[j].ID })
}

// SortZones orders zones by id ascending in place.
func SortZones(zones []ClashZone) {
	sort.Slice(zones, func(i, j int) bool { return zones[i].ID < zones[j].ID })
}
