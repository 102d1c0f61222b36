// Package memory provides an in-memory implementation of the clash zone
// store, snapshot store and host document used for tests, ephemeral runs and
// as the working state of the sqlite and postgres backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sleevemark/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type memoryState struct {
	zones     map[string]domain.ClashZone
	elements  map[domain.ElementID]domain.Element
	snapshots []domain.SnapshotRecord
	aliases   map[domain.ElementID]domain.ElementID
	counters  map[domain.CounterKey]int
	selection []domain.ElementID
}

// Snapshot is the serialisable representation of the in-memory state.
type Snapshot struct {
	Zones     []domain.ClashZone                    `json:"zones" yaml:"zones"`
	Elements  []domain.Element                      `json:"elements" yaml:"elements"`
	Snapshots []domain.SnapshotRecord               `json:"snapshots" yaml:"snapshots"`
	Aliases   map[domain.ElementID]domain.ElementID `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Counters  []domain.Counter                      `json:"counters,omitempty" yaml:"counters,omitempty"`
	Selection []domain.ElementID                    `json:"selection,omitempty" yaml:"selection,omitempty"`
}

func newMemoryState() memoryState {
	return memoryState{
		zones:    map[string]domain.ClashZone{},
		elements: map[domain.ElementID]domain.Element{},
		aliases:  map[domain.ElementID]domain.ElementID{},
		counters: map[domain.CounterKey]int{},
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.zones {
		cloned.zones[k] = v
	}
	for k, v := range s.elements {
		cloned.elements[k] = domain.CloneElement(v)
	}
	cloned.snapshots = make([]domain.SnapshotRecord, 0, len(s.snapshots))
	for _, r := range s.snapshots {
		cloned.snapshots = append(cloned.snapshots, domain.CloneSnapshotRecord(r))
	}
	for k, v := range s.aliases {
		cloned.aliases[k] = v
	}
	for k, v := range s.counters {
		cloned.counters[k] = v
	}
	cloned.selection = append([]domain.ElementID(nil), s.selection...)
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Zones:     make([]domain.ClashZone, 0, len(state.zones)),
		Elements:  make([]domain.Element, 0, len(state.elements)),
		Snapshots: make([]domain.SnapshotRecord, 0, len(state.snapshots)),
		Counters:  make([]domain.Counter, 0, len(state.counters)),
		Selection: append([]domain.ElementID(nil), state.selection...),
	}
	for _, z := range state.zones {
		s.Zones = append(s.Zones, z)
	}
	domain.SortZones(s.Zones)
	for _, e := range state.elements {
		s.Elements = append(s.Elements, domain.CloneElement(e))
	}
	sort.Slice(s.Elements, func(i, j int) bool { return s.Elements[i].ID < s.Elements[j].ID })
	for _, r := range state.snapshots {
		s.Snapshots = append(s.Snapshots, domain.CloneSnapshotRecord(r))
	}
	if len(state.aliases) > 0 {
		s.Aliases = make(map[domain.ElementID]domain.ElementID, len(state.aliases))
		for k, v := range state.aliases {
			s.Aliases[k] = v
		}
	}
	s.Counters = sortedCounters(state.counters)
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	st := newMemoryState()
	for _, z := range s.Zones {
		st.zones[z.ID] = z
	}
	for _, e := range s.Elements {
		st.elements[e.ID] = domain.CloneElement(e)
	}
	for _, r := range s.Snapshots {
		st.snapshots = append(st.snapshots, domain.CloneSnapshotRecord(r))
	}
	for k, v := range s.Aliases {
		st.aliases[k] = v
	}
	for _, c := range s.Counters {
		st.counters[c.Key] = c.Value
	}
	st.selection = append([]domain.ElementID(nil), s.Selection...)
	return st
}

func sortedCounters(counters map[domain.CounterKey]int) []domain.Counter {
	out := make([]domain.Counter, 0, len(counters))
	for k, v := range counters {
		out = append(out, domain.Counter{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		return a.Prefix < b.Prefix
	})
	return out
}

// Store is an in-memory transactional store. Transactions run on a clone of
// the state and replace it only on commit, so a failed batch leaves nothing
// behind.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time

	hookMu     sync.RWMutex
	commitHook func(name string) error
	writeHook  func(id domain.ElementID, attr string, v domain.Value) error
	loadHook   func() error
	persister  Persister
}

// Persister stores the candidate state of a write before it becomes
// visible. A non-nil error discards the write.
type Persister func(ctx context.Context, name string, candidate Snapshot) error

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// MergeState upserts zones and elements, appends snapshot records and adds
// aliases from snapshot without touching anything else.
func (s *Store) MergeState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.merge(snapshot)
}

func (st *memoryState) merge(snapshot Snapshot) {
	for _, z := range snapshot.Zones {
		st.zones[z.ID] = z
	}
	for _, e := range snapshot.Elements {
		st.elements[e.ID] = domain.CloneElement(e)
	}
	for _, r := range snapshot.Snapshots {
		st.snapshots = append(st.snapshots, domain.CloneSnapshotRecord(r))
	}
	for k, v := range snapshot.Aliases {
		st.aliases[k] = v
	}
	for _, c := range snapshot.Counters {
		st.counters[c.Key] = c.Value
	}
	if len(snapshot.Selection) > 0 {
		st.selection = append([]domain.ElementID(nil), snapshot.Selection...)
	}
}

// Import merges snapshot into the state as one persisted write.
func (s *Store) Import(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := s.state.clone()
	candidate.merge(snapshot)
	return s.swap(ctx, "import", candidate)
}

// SetSelection replaces the active view selection.
func (s *Store) SetSelection(ids ...domain.ElementID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.selection = append([]domain.ElementID(nil), ids...)
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetCommitHook installs fn to run before a transaction commits. A non-nil
// error fails the commit.
func (s *Store) SetCommitHook(fn func(name string) error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.commitHook = fn
}

// SetWriteHook installs fn to run before every attribute write. A non-nil
// error rejects that write.
func (s *Store) SetWriteHook(fn func(id domain.ElementID, attr string, v domain.Value) error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.writeHook = fn
}

// SetLoadHook installs fn to run when the snapshot index is loaded.
func (s *Store) SetLoadHook(fn func() error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.loadHook = fn
}

// SetPersister installs fn to receive every candidate state ahead of the
// swap. The sqlite and postgres stores persist through it.
func (s *Store) SetPersister(fn Persister) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.persister = fn
}

// swap persists candidate and installs it as the state. Callers hold s.mu.
func (s *Store) swap(ctx context.Context, name string, candidate memoryState) error {
	s.hookMu.RLock()
	persist := s.persister
	s.hookMu.RUnlock()
	if persist != nil {
		if err := persist(ctx, name, snapshotFromMemoryState(candidate)); err != nil {
			return err
		}
	}
	s.state = candidate
	return nil
}

func (s *Store) hooks() (func(string) error, func(domain.ElementID, string, domain.Value) error, func() error) {
	s.hookMu.RLock()
	defer s.hookMu.RUnlock()
	return s.commitHook, s.writeHook, s.loadHook
}

// RunInTransaction executes fn within a transactional copy of the document
// state. An error from fn rolls back; a failed commit is reported as a
// domain.TransactionError.
func (s *Store) RunInTransaction(ctx context.Context, name string, fn func(tx domain.DocumentTx) error) (domain.CommitStatus, error) {
	if err := ctx.Err(); err != nil {
		return domain.CommitFailed, domain.TransactionError{Name: name, Status: domain.CommitFailed, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	commitHook, writeHook, _ := s.hooks()
	tx := &transaction{
		view:      view{state: s.state.clone()},
		writeHook: writeHook,
	}
	if err := fn(tx); err != nil {
		return domain.CommitRolledBack, err
	}
	if commitHook != nil {
		if err := commitHook(name); err != nil {
			return domain.CommitFailed, domain.TransactionError{Name: name, Status: domain.CommitFailed, Err: err}
		}
	}
	if err := s.swap(ctx, name, tx.state); err != nil {
		return domain.CommitFailed, domain.TransactionError{Name: name, Status: domain.CommitFailed, Err: err}
	}
	return domain.CommitCommitted, nil
}

// View executes fn against a read-only snapshot of the document state.
func (s *Store) View(ctx context.Context, fn func(domain.DocumentView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(view{state: snapshot})
}

// view exposes a read-only snapshot of the document state.
type view struct {
	state memoryState
}

func (v view) Element(id domain.ElementID) (domain.Element, bool) {
	e, ok := v.state.elements[id]
	if !ok {
		return domain.Element{}, false
	}
	return domain.CloneElement(e), true
}

func (v view) ReadAttribute(id domain.ElementID, name string) (domain.Value, bool) {
	e, ok := v.state.elements[id]
	if !ok {
		return domain.Value{}, false
	}
	val, ok := e.Attributes[name]
	return val, ok
}

func (v view) ListSleeves(categories ...domain.Category) []domain.Sleeve {
	want := make(map[domain.Category]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	out := make([]domain.Sleeve, 0)
	for _, e := range v.state.elements {
		if !e.IsSleeve() {
			continue
		}
		if len(want) > 0 && !want[e.Category] {
			continue
		}
		out = append(out, e.Sleeve())
	}
	domain.SortSleeves(out)
	return out
}

func (v view) Selection() []domain.ElementID {
	return append([]domain.ElementID(nil), v.state.selection...)
}

func (v view) Counter(key domain.CounterKey) int {
	return v.state.counters[key]
}

func (v view) ListCounters() []domain.Counter {
	return sortedCounters(v.state.counters)
}

// transaction is the mutable document view handed to RunInTransaction callbacks.
type transaction struct {
	view
	writeHook func(id domain.ElementID, attr string, v domain.Value) error
}

func (tx *transaction) WriteAttribute(id domain.ElementID, name string, value domain.Value) error {
	e, ok := tx.state.elements[id]
	if !ok {
		return domain.ErrNotFound{Entity: "element", ID: fmt.Sprint(id)}
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("element %d: attribute name required", id)
	}
	if tx.writeHook != nil {
		if err := tx.writeHook(id, name, value); err != nil {
			return err
		}
	}
	if current, exists := e.Attributes[name]; exists && current.Kind != "" && value.Kind != "" && current.Kind != value.Kind {
		return fmt.Errorf("element %d attribute %q: cannot store %s in %s attribute", id, name, value.Kind, current.Kind)
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]domain.Value)
	}
	e.Attributes[name] = value
	tx.state.elements[id] = e
	return nil
}

func (tx *transaction) SetCounter(key domain.CounterKey, value int) error {
	if value < 0 {
		return fmt.Errorf("counter %v: negative value %d", key, value)
	}
	tx.state.counters[key] = value
	return nil
}

func (tx *transaction) ResetCounters(category domain.Category, scope string) int {
	removed := 0
	for key := range tx.state.counters {
		if key.Category != category {
			continue
		}
		if scope != domain.AllScopes && !strings.EqualFold(key.Scope, scope) {
			continue
		}
		delete(tx.state.counters, key)
		removed++
	}
	return removed
}
