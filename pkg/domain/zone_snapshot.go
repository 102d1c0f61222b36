package domain

// ZoneSnapshot is an immutable, indexed read of the clash zone store. One
// snapshot serves a whole resolution pass so that membership cannot change
// between sleeves of the same batch.
type ZoneSnapshot struct {
	zones      []ClashZone
	byCategory map[Category][]int
	byCluster  map[ElementID][]int
	byCombined map[ElementID][]int
	bySleeve   map[ElementID][]int
}

// NewZoneSnapshot indexes a copy of zones.
func NewZoneSnapshot(zones []ClashZone) *ZoneSnapshot {
	cp := append([]ClashZone(nil), zones...)
	SortZones(cp)
	s := &ZoneSnapshot{
		zones:      cp,
		byCategory: make(map[Category][]int),
		byCluster:  make(map[ElementID][]int),
		byCombined: make(map[ElementID][]int),
		bySleeve:   make(map[ElementID][]int),
	}
	for i, z := range cp {
		s.byCategory[z.Category] = append(s.byCategory[z.Category], i)
		if z.ClusterSleeveID != 0 {
			s.byCluster[z.ClusterSleeveID] = append(s.byCluster[z.ClusterSleeveID], i)
		}
		if z.CombinedInstanceID != 0 {
			s.byCombined[z.CombinedInstanceID] = append(s.byCombined[z.CombinedInstanceID], i)
		}
		if z.SleeveInstanceID != 0 {
			s.bySleeve[z.SleeveInstanceID] = append(s.bySleeve[z.SleeveInstanceID], i)
		}
	}
	return s
}

// Len returns the number of zones.
func (s *ZoneSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.zones)
}

// All returns every zone ordered by id.
func (s *ZoneSnapshot) All() []ClashZone {
	if s == nil {
		return nil
	}
	return append([]ClashZone(nil), s.zones...)
}

// ByCategory returns zones of a category.
func (s *ZoneSnapshot) ByCategory(c Category) []ClashZone {
	if s == nil {
		return nil
	}
	return s.pick(s.byCategory[c])
}

// ByCluster returns zones merged into the cluster sleeve.
func (s *ZoneSnapshot) ByCluster(id ElementID) []ClashZone {
	if s == nil {
		return nil
	}
	return s.pick(s.byCluster[id])
}

// ByCombined returns zones joined to the combined sleeve.
func (s *ZoneSnapshot) ByCombined(id ElementID) []ClashZone {
	if s == nil {
		return nil
	}
	return s.pick(s.byCombined[id])
}

// BySleeve returns zones an individual sleeve was placed for.
func (s *ZoneSnapshot) BySleeve(id ElementID) []ClashZone {
	if s == nil {
		return nil
	}
	return s.pick(s.bySleeve[id])
}

// Categories returns the distinct categories present, in canonical order
// followed by unknown categories in first-seen order.
func (s *ZoneSnapshot) Categories() []Category {
	if s == nil {
		return nil
	}
	var out []Category
	seen := make(map[Category]bool)
	for _, c := range KnownCategories() {
		if len(s.byCategory[c]) > 0 {
			out = append(out, c)
			seen[c] = true
		}
	}
	for _, z := range s.zones {
		if !seen[z.Category] {
			seen[z.Category] = true
			out = append(out, z.Category)
		}
	}
	return out
}

func (s *ZoneSnapshot) pick(idx []int) []ClashZone {
	if len(idx) == 0 {
		return nil
	}
	out := make([]ClashZone, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.zones[i])
	}
	return out
}
