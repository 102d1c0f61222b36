package domain

import "time"

// IdentityKind says which sleeve identity a snapshot record is keyed by.
type IdentityKind string

// Identity kinds, see SleeveIdentity for their priority.
const (
	IdentityIndividual IdentityKind = "individual"
	IdentityCluster    IdentityKind = "cluster"
	IdentityCombined   IdentityKind = "combined"
)

// SnapshotRecord is one captured set of conduit and host attributes. Combined
// sleeves carry one record per constituent conduit under the same key.
type SnapshotRecord struct {
	Kind       IdentityKind      `json:"kind" yaml:"kind"`
	Key        ElementID         `json:"key" yaml:"key"`
	ConduitID  ElementID         `json:"conduit_id,omitempty" yaml:"conduit_id,omitempty"`
	HostID     ElementID         `json:"host_id,omitempty" yaml:"host_id,omitempty"`
	Category   Category          `json:"category,omitempty" yaml:"category,omitempty"`
	Conduit    map[string]string `json:"conduit,omitempty" yaml:"conduit,omitempty"`
	Host       map[string]string `json:"host,omitempty" yaml:"host,omitempty"`
	CapturedAt time.Time         `json:"captured_at" yaml:"captured_at"`
}

// CloneSnapshotRecord deep copies the attribute maps.
func CloneSnapshotRecord(r SnapshotRecord) SnapshotRecord {
	cp := r
	cp.Conduit = cloneStrings(r.Conduit)
	cp.Host = cloneStrings(r.Host)
	return cp
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SnapshotData is the full content of the snapshot store. Aliases redirect
// legacy sleeve ids to their current id.
type SnapshotData struct {
	Records []SnapshotRecord        `json:"records" yaml:"records"`
	Aliases map[ElementID]ElementID `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// SleeveSnapshotView is the attribute bag used to answer mappings for one
// identity. Views are never mutated once built.
type SleeveSnapshotView struct {
	Kind    IdentityKind
	Key     ElementID
	Conduit map[string]string
	Host    map[string]string
}

// SleeveIdentity is the identity tuple read from a target element. Lookup
// priority is combined, then individual, then cluster.
type SleeveIdentity struct {
	TargetID   ElementID
	Category   Category
	Level      string
	InstanceID ElementID
	ClusterID  ElementID
	CombinedID ElementID
}

// Candidates returns the identities to try, highest priority first.
func (id SleeveIdentity) Candidates() []IdentityRef {
	out := make([]IdentityRef, 0, 3)
	if id.CombinedID != 0 {
		out = append(out, IdentityRef{Kind: IdentityCombined, Key: id.CombinedID})
	}
	if id.InstanceID != 0 {
		out = append(out, IdentityRef{Kind: IdentityIndividual, Key: id.InstanceID})
	}
	if id.ClusterID != 0 {
		out = append(out, IdentityRef{Kind: IdentityCluster, Key: id.ClusterID})
	}
	return out
}

// IdentityRef addresses one index of the snapshot store.
type IdentityRef struct {
	Kind IdentityKind
	Key  ElementID
}
