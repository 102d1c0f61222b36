package marking

import (
	"context"
	"errors"
	"testing"

	"sleevemark/internal/infra/persistence/memory"
	"sleevemark/pkg/domain"
)

func resetFixture() *memory.Store {
	store := memory.NewStore()
	pipe := sleeveElement(3, domain.CategoryPipe, "L1", "P001")
	pipe.Point = domain.Point{X: 50, Y: 50}
	far := sleeveElement(4, domain.CategoryDuct, "L1", "D002")
	far.Point = domain.Point{X: 500, Y: 500}
	store.PutElements(
		sleeveElement(1, domain.CategoryDuct, "L1", "D001"),
		sleeveElement(2, domain.CategoryDuct, "L2", "D003"),
		pipe,
		far,
	)
	store.MergeState(memory.Snapshot{Counters: []domain.Counter{
		{Key: domain.CounterKey{Category: domain.CategoryDuct, Scope: "L1", Prefix: "D"}, Value: 2},
		{Key: domain.CounterKey{Category: domain.CategoryDuct, Scope: "L2", Prefix: "D"}, Value: 3},
		{Key: domain.CounterKey{Category: domain.CategoryPipe, Scope: "L1", Prefix: "P"}, Value: 1},
	}})
	return store
}

func runReset(t *testing.T, store *memory.Store, scope ResetScope) (ResetResult, error) {
	t.Helper()
	var res ResetResult
	_, err := store.RunInTransaction(context.Background(), "reset", func(tx domain.DocumentTx) error {
		var err error
		res, err = ResetMarks(tx, scope, nil)
		return err
	})
	return res, err
}

func counterValues(store *memory.Store) map[domain.CounterKey]int {
	out := map[domain.CounterKey]int{}
	for _, c := range store.ExportState().Counters {
		out[c.Key] = c.Value
	}
	return out
}

func TestResetScopeRequiresBound(t *testing.T) {
	_, err := runReset(t, resetFixture(), ResetScope{Categories: []domain.Category{domain.CategoryDuct}})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResetLevelClearsOnlyThatLevel(t *testing.T) {
	store := resetFixture()
	res, err := runReset(t, store, ResetScope{Categories: []domain.Category{domain.CategoryDuct}, Level: "l1"})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	got := marks(t, store)
	if got[1] != "" || got[4] != "" || got[2] != "D003" || got[3] != "P001" {
		t.Fatalf("unexpected marks %v", got)
	}
	if res.Cleared != 2 || res.CountersReset != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	counters := counterValues(store)
	if _, ok := counters[domain.CounterKey{Category: domain.CategoryDuct, Scope: "L1", Prefix: "D"}]; ok {
		t.Fatalf("expected L1 duct counter reset")
	}
	if counters[domain.CounterKey{Category: domain.CategoryDuct, Scope: "L2", Prefix: "D"}] != 3 {
		t.Fatalf("L2 counter must survive")
	}
}

func TestResetBoundsLeavesCounters(t *testing.T) {
	store := resetFixture()
	res, err := runReset(t, store, ResetScope{Bounds: &domain.Box{Min: domain.Point{X: 0, Y: 0}, Max: domain.Point{X: 100, Y: 100}}})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	got := marks(t, store)
	if got[4] != "D002" {
		t.Fatalf("sleeve outside bounds must keep its mark")
	}
	if res.CountersReset != 0 || len(counterValues(store)) != 3 {
		t.Fatalf("spatial reset must not touch counters, got %+v", res)
	}
}

func TestResetSelection(t *testing.T) {
	store := resetFixture()
	store.SetSelection(2)
	res, err := runReset(t, store, ResetScope{Selection: true})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	got := marks(t, store)
	if res.Cleared != 1 || got[2] != "" || got[1] != "D001" {
		t.Fatalf("unexpected result %+v marks %v", res, got)
	}
}

func TestResetAllClearsEverything(t *testing.T) {
	store := resetFixture()
	res, err := runReset(t, store, ResetScope{All: true})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	for id, m := range marks(t, store) {
		if m != "" {
			t.Fatalf("sleeve %d kept mark %s", id, m)
		}
	}
	if res.Cleared != 4 || res.CountersReset != 3 || len(counterValues(store)) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResetThenNumberRestartsLevel(t *testing.T) {
	store := resetFixture()
	if _, err := runReset(t, store, ResetScope{All: true, Categories: []domain.Category{domain.CategoryDuct}}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runNumbering(t, store, func(v domain.DocumentView) []Pending {
		var out []Pending
		for _, s := range v.ListSleeves(domain.CategoryDuct) {
			out = append(out, Pending{Sleeve: s, Prefix: "D"})
		}
		return out
	}, nil)
	got := marks(t, store)
	if got[1] != "D001" || got[2] != "D002" || got[4] != "D003" || got[3] != "P001" {
		t.Fatalf("unexpected marks %v", got)
	}
}
