package domain

import "context"

// DocumentView provides read-only access to the host document.
type DocumentView interface {
	Element(id ElementID) (Element, bool)
	ReadAttribute(id ElementID, name string) (Value, bool)
	// ListSleeves returns sleeves of the given categories (all when none are
	// given) ordered by id.
	ListSleeves(categories ...Category) []Sleeve
	// Selection returns the ids currently selected in the active view.
	Selection() []ElementID
	Counter(key CounterKey) int
	ListCounters() []Counter
}

// DocumentTx is the mutable view handed to a transaction function. Every
// write to the host happens through it.
type DocumentTx interface {
	DocumentView
	WriteAttribute(id ElementID, name string, value Value) error
	SetCounter(key CounterKey, value int) error
	// ResetCounters deletes every counter of category within scope (AllScopes
	// for every scope) and returns how many were removed.
	ResetCounters(category Category, scope string) int
}

// Document is the host document. Transactions are atomic and serialized: the
// host enforces a single writer.
type Document interface {
	RunInTransaction(ctx context.Context, name string, fn func(tx DocumentTx) error) (CommitStatus, error)
	View(ctx context.Context, fn func(DocumentView) error) error
}

// ZoneStore is the query surface of the clash zone store. Empty results are
// never an error.
type ZoneStore interface {
	ListZonesByCategory(ctx context.Context, category Category) ([]ClashZone, error)
	ListZonesByCluster(ctx context.Context, clusterID ElementID) ([]ClashZone, error)
	ListZonesByCombined(ctx context.Context, combinedID ElementID) ([]ClashZone, error)
	DistinctCategories(ctx context.Context) ([]Category, error)
	// ZoneSnapshot returns a consistent read of every zone.
	ZoneSnapshot(ctx context.Context) (*ZoneSnapshot, error)
	SetResolved(ctx context.Context, ids []string, resolved bool) (int, error)
}

// SnapshotStore holds previously captured conduit/host attributes.
type SnapshotStore interface {
	LoadSnapshotIndex(ctx context.Context) (SnapshotData, error)
	// SnapshotCount reports how many records were ever captured, distinct
	// from whether LoadSnapshotIndex succeeds.
	SnapshotCount(ctx context.Context) (int, error)
	SaveSnapshots(ctx context.Context, data SnapshotData) error
}

// PersistentStore bundles every store capability a backend provides.
type PersistentStore interface {
	ZoneStore
	SnapshotStore
	Document
}
