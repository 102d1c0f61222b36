package core

import (
	"context"
	"errors"
	"testing"

	"sleevemark/internal/marking"
	"sleevemark/pkg/domain"
)

func markedFixture(t *testing.T) observed {
	t.Helper()
	o := newObserved(markFixture())
	if _, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: chwSettings(t)}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	return o
}

func TestResetMarksByLevel(t *testing.T) {
	o := markedFixture(t)
	res, err := o.svc.ResetMarks(context.Background(), marking.ResetScope{Level: "L1", Categories: []domain.Category{domain.CategoryDuct}})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res.Cleared != 3 || res.CountersReset != 3 || res.Errors != 0 {
		t.Fatalf("unexpected reset result %+v", res)
	}
	if markOf(t, o.store, 30) != "" || markOf(t, o.store, 40) != "P001" {
		t.Fatalf("reset touched the wrong sleeves")
	}
	entry := o.audit.last(t)
	if entry.Operation != OpResetMarks || entry.Detail["cleared"] != 3 {
		t.Fatalf("unexpected audit entry %+v", entry)
	}

	if _, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: chwSettings(t)}); err != nil {
		t.Fatalf("remark: %v", err)
	}
	if got := markOf(t, o.store, 30); got != "D001" {
		t.Fatalf("expected numbering to restart after reset, got %q", got)
	}
}

func TestResetMarksBySelectionKeepsCounters(t *testing.T) {
	o := markedFixture(t)
	o.store.SetSelection(30)
	res, err := o.svc.ResetMarks(context.Background(), marking.ResetScope{Selection: true})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res.Cleared != 1 || res.CountersReset != 0 {
		t.Fatalf("unexpected reset result %+v", res)
	}
	if _, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: chwSettings(t)}); err != nil {
		t.Fatalf("remark: %v", err)
	}
	if got := markOf(t, o.store, 30); got != "D002" {
		t.Fatalf("expected counter history to continue, got %q", got)
	}
}

func TestResetMarksAll(t *testing.T) {
	o := markedFixture(t)
	res, err := o.svc.ResetMarks(context.Background(), marking.ResetScope{All: true})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res.Cleared != 4 || res.CountersReset != 4 {
		t.Fatalf("unexpected reset result %+v", res)
	}
}

func TestResetMarksRejectsUnboundedScope(t *testing.T) {
	o := markedFixture(t)
	_, err := o.svc.ResetMarks(context.Background(), marking.ResetScope{})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if o.audit.last(t).Status != AuditStatusError || !o.metrics.has(OpResetMarks, false) {
		t.Fatalf("expected failure to be observed")
	}
	if markOf(t, o.store, 30) != "D001" {
		t.Fatalf("rejected reset must not write")
	}
}
