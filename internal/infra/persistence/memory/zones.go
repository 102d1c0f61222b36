package memory

import (
	"context"
	"fmt"
	"sort"

	"sleevemark/pkg/domain"
)

// PutZones upserts clash zones by id.
func (s *Store) PutZones(zones ...domain.ClashZone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, z := range zones {
		s.state.zones[z.ID] = z
	}
}

// PutElements upserts host elements by id.
func (s *Store) PutElements(elements ...domain.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range elements {
		s.state.elements[e.ID] = domain.CloneElement(e)
	}
}

func (s *Store) zonesWhere(ctx context.Context, keep func(domain.ClashZone) bool) ([]domain.ClashZone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ClashZone, 0)
	for _, z := range s.state.zones {
		if keep(z) {
			out = append(out, z)
		}
	}
	domain.SortZones(out)
	return out, nil
}

// ListZonesByCategory returns zones whose conduit is of category.
func (s *Store) ListZonesByCategory(ctx context.Context, category domain.Category) ([]domain.ClashZone, error) {
	return s.zonesWhere(ctx, func(z domain.ClashZone) bool { return z.Category == category })
}

// ListZonesByCluster returns zones that belong to the cluster sleeve.
func (s *Store) ListZonesByCluster(ctx context.Context, clusterID domain.ElementID) ([]domain.ClashZone, error) {
	if clusterID == 0 {
		return []domain.ClashZone{}, nil
	}
	return s.zonesWhere(ctx, func(z domain.ClashZone) bool { return z.ClusterSleeveID == clusterID })
}

// ListZonesByCombined returns zones that belong to the combined sleeve.
func (s *Store) ListZonesByCombined(ctx context.Context, combinedID domain.ElementID) ([]domain.ClashZone, error) {
	if combinedID == 0 {
		return []domain.ClashZone{}, nil
	}
	return s.zonesWhere(ctx, func(z domain.ClashZone) bool { return z.CombinedInstanceID == combinedID })
}

// DistinctCategories returns the categories present in the zone store, sorted.
func (s *Store) DistinctCategories(ctx context.Context) ([]domain.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[domain.Category]bool)
	out := make([]domain.Category, 0)
	for _, z := range s.state.zones {
		if z.Category == "" || seen[z.Category] {
			continue
		}
		seen[z.Category] = true
		out = append(out, z.Category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ZoneSnapshot returns an immutable index over every zone.
func (s *Store) ZoneSnapshot(ctx context.Context) (*domain.ZoneSnapshot, error) {
	zones, err := s.zonesWhere(ctx, func(domain.ClashZone) bool { return true })
	if err != nil {
		return nil, err
	}
	return domain.NewZoneSnapshot(zones), nil
}

// SetResolved flags the given zones and returns how many changed. Unknown ids
// are ignored.
func (s *Store) SetResolved(ctx context.Context, ids []string, resolved bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := s.state.clone()
	changed := 0
	for _, id := range ids {
		z, ok := candidate.zones[id]
		if !ok || z.Resolved == resolved {
			continue
		}
		z.Resolved = resolved
		candidate.zones[id] = z
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.swap(ctx, "set resolved", candidate); err != nil {
		return 0, err
	}
	return changed, nil
}

// LoadSnapshotIndex returns every snapshot record and alias.
func (s *Store) LoadSnapshotIndex(ctx context.Context) (domain.SnapshotData, error) {
	if err := ctx.Err(); err != nil {
		return domain.SnapshotData{}, err
	}
	_, _, loadHook := s.hooks()
	if loadHook != nil {
		if err := loadHook(); err != nil {
			return domain.SnapshotData{}, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.state.snapshots) == 0 {
		return domain.SnapshotData{}, domain.ErrNoSnapshots
	}
	data := domain.SnapshotData{
		Records: make([]domain.SnapshotRecord, 0, len(s.state.snapshots)),
		Aliases: make(map[domain.ElementID]domain.ElementID, len(s.state.aliases)),
	}
	for _, r := range s.state.snapshots {
		data.Records = append(data.Records, domain.CloneSnapshotRecord(r))
	}
	for k, v := range s.state.aliases {
		data.Aliases[k] = v
	}
	return data, nil
}

// SnapshotCount reports the number of stored snapshot records.
func (s *Store) SnapshotCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.snapshots), nil
}

// SaveSnapshots appends records and merges aliases. Records without a key are
// rejected as a whole.
func (s *Store) SaveSnapshots(ctx context.Context, data domain.SnapshotData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, r := range data.Records {
		if r.Key == 0 {
			return domain.ValidationError{Field: fmt.Sprintf("records[%d]", i), Message: "key is required"}
		}
		switch r.Kind {
		case domain.IdentityIndividual, domain.IdentityCluster, domain.IdentityCombined:
		default:
			return domain.ValidationError{Field: fmt.Sprintf("records[%d]", i), Message: fmt.Sprintf("unknown identity kind %q", r.Kind)}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := s.state.clone()
	for _, r := range data.Records {
		cp := domain.CloneSnapshotRecord(r)
		if cp.CapturedAt.IsZero() {
			cp.CapturedAt = s.nowFn()
		}
		candidate.snapshots = append(candidate.snapshots, cp)
	}
	for k, v := range data.Aliases {
		candidate.aliases[k] = v
	}
	return s.swap(ctx, "save snapshots", candidate)
}
