package transfer

import (
	"fmt"

	"sleevemark/pkg/domain"
)

// ReadIdentities resolves the identity tuple of every target through
// attribute reads only. Duplicate ids are read once; unknown ids produce a
// warning and no identity.
func ReadIdentities(view domain.DocumentView, targets []domain.ElementID) ([]domain.SleeveIdentity, []string) {
	seen := make(map[domain.ElementID]bool, len(targets))
	out := make([]domain.SleeveIdentity, 0, len(targets))
	var warnings []string
	for _, id := range targets {
		if seen[id] {
			continue
		}
		seen[id] = true
		e, ok := view.Element(id)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("element %d not found", id))
			continue
		}
		out = append(out, identityOf(view, e))
	}
	return out, warnings
}

func identityOf(view domain.DocumentView, e domain.Element) domain.SleeveIdentity {
	id := domain.SleeveIdentity{
		TargetID: e.ID,
		Category: e.Category,
		Level:    e.Level,
	}
	switch e.Kind {
	case domain.SleeveCluster:
		id.ClusterID = e.ID
	case domain.SleeveCombined:
		id.CombinedID = e.ID
	default:
		id.InstanceID = e.ID
	}
	if v, ok := view.ReadAttribute(e.ID, domain.AttrClusterInstanceID); ok && id.ClusterID == 0 {
		id.ClusterID = v.AsID()
	}
	if v, ok := view.ReadAttribute(e.ID, domain.AttrCombinedInstanceID); ok && id.CombinedID == 0 {
		id.CombinedID = v.AsID()
	}
	return id
}
