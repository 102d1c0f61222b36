// Package cluster resolves the clash zones behind clustered and combined
// sleeves and aggregates the attributes of their constituents.
package cluster

import (
	"errors"

	"sleevemark/internal/logging"
	"sleevemark/pkg/domain"
)

// ErrNoZoneSnapshot is returned when the aggregator was built without a zone read.
var ErrNoZoneSnapshot = errors.New("cluster: no zone snapshot")

// Aggregator answers constituent lookups from a single consistent zone read.
type Aggregator struct {
	zones  *domain.ZoneSnapshot
	logger logging.Logger
}

// NewAggregator binds the aggregator to one zone snapshot for the whole pass.
func NewAggregator(zones *domain.ZoneSnapshot, logger logging.Logger) *Aggregator {
	return &Aggregator{zones: zones, logger: logging.OrNoop(logger)}
}

// ResolveConstituentZones returns the zones a sleeve stands for:
//   - cluster sleeves: resolved zones merged under the sleeve id
//   - combined sleeves: zones joined to the combined instance
//   - individual sleeves: zones the sleeve was placed for
func (a *Aggregator) ResolveConstituentZones(s domain.Sleeve) ([]domain.ClashZone, error) {
	if a == nil || a.zones == nil {
		return nil, ErrNoZoneSnapshot
	}
	switch s.Kind {
	case domain.SleeveCluster:
		var out []domain.ClashZone
		for _, z := range a.zones.ByCluster(s.ID) {
			if z.Resolved {
				out = append(out, z)
			}
		}
		return out, nil
	case domain.SleeveCombined:
		return a.zones.ByCombined(s.ID), nil
	default:
		zones := a.zones.BySleeve(s.ID)
		if len(zones) == 0 && s.ClusterID != 0 {
			// Older placements recorded the cluster link only on the sleeve.
			a.logger.Debug("individual sleeve without zone link, using cluster", "sleeve", s.ID, "cluster", s.ClusterID)
			return a.zones.ByCluster(s.ClusterID), nil
		}
		return zones, nil
	}
}

// Zones exposes the underlying snapshot.
func (a *Aggregator) Zones() *domain.ZoneSnapshot { return a.zones }
