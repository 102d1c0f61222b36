package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sleevemark/internal/infra/persistence/memory"
	"sleevemark/internal/marking"
	"sleevemark/pkg/domain"
)

func TestMarkSleevesResolvesAndNumbers(t *testing.T) {
	o := newObserved(markFixture())
	report, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: chwSettings(t)})
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	want := map[domain.ElementID]string{10: "CHW001", 20: "MEP001", 30: "D001", 40: "P001"}
	got := map[domain.ElementID]string{}
	for id := range want {
		got[id] = markOf(t, o.store, id)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("marks mismatch (-want +got):\n%s", diff)
	}
	if report.Status != domain.CommitCommitted || report.Processed != 4 || report.Numbered != 4 || report.Errors != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	wantRules := map[marking.RuleID]int{
		marking.RuleSystemType:      1,
		marking.RuleMultiLink:       1,
		marking.RuleCategoryDefault: 2,
	}
	if diff := cmp.Diff(wantRules, report.Rules); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]domain.Category{domain.CategoryDuct, domain.CategoryPipe}, report.Categories); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	// z1 and z2 were already resolved.
	if report.ZonesResolved != 4 {
		t.Fatalf("expected 4 zones flagged resolved, got %d", report.ZonesResolved)
	}

	entry := o.audit.last(t)
	if entry.Operation != OpMarkSleeves || entry.Status != AuditStatusSuccess || entry.RunID != "run-1" || !entry.Timestamp.Equal(fixedTime) {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
	if entry.Detail["numbered"] != 4 {
		t.Fatalf("expected numbered detail, got %v", entry.Detail)
	}
	if !o.metrics.has(OpMarkSleeves, true) {
		t.Fatalf("expected success metric")
	}
	if len(o.tracer.ended) != 1 || o.tracer.ended[0].err != nil || o.tracer.ended[0].runID != "run-1" {
		t.Fatalf("expected one successful span, got %+v", o.tracer.ended)
	}
	if !o.logger.contains("i:operation completed") {
		t.Fatalf("expected completion log, got %v", o.logger.entries)
	}
}

func TestMarkSleevesIsIdempotent(t *testing.T) {
	o := newObserved(markFixture())
	req := MarkRequest{Settings: chwSettings(t)}
	if _, err := o.svc.MarkSleeves(context.Background(), req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := o.svc.MarkSleeves(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Numbered != 0 || report.AlreadyNumbered != 4 {
		t.Fatalf("expected nothing renumbered, got %+v", report)
	}
	if got := markOf(t, o.store, 30); got != "D001" {
		t.Fatalf("mark changed on rerun: %q", got)
	}
}

func TestMarkSleevesRemarkResetsCounters(t *testing.T) {
	store := markFixture()
	setMark(store, 30, "D007")
	o := newObserved(store)
	settings := chwSettings(t)
	if _, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: settings}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if got := markOf(t, store, 30); got != "D007" {
		t.Fatalf("existing number must be kept, got %q", got)
	}

	report, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: settings, RemarkAll: true})
	if err != nil {
		t.Fatalf("remark: %v", err)
	}
	if got := markOf(t, store, 30); got != "D001" {
		t.Fatalf("expected renumbered D001, got %q", got)
	}
	if report.CountersReset != 3 || report.Numbered != 4 {
		t.Fatalf("unexpected remark report %+v", report)
	}
}

func TestMarkSleevesRemarkFromSettings(t *testing.T) {
	store := markFixture()
	setMark(store, 40, "P009")
	in := domain.DefaultSettingsInput()
	in.Remark = map[string]bool{"Pipe": true}
	settings, err := domain.NewMarkPrefixSettings(in)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	o := newObserved(store)
	if _, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: settings}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if got := markOf(t, store, 40); got != "P001" {
		t.Fatalf("expected pipe renumbered, got %q", got)
	}
}

func TestMarkSleevesProjectAndDisciplinePrefixes(t *testing.T) {
	o := newObserved(markFixture())
	_, err := o.svc.MarkSleeves(context.Background(), MarkRequest{
		Settings:           chwSettings(t),
		ProjectPrefix:      "PRJ",
		DisciplinePrefixes: map[domain.Category]string{domain.CategoryPipe: "PL"},
	})
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if got := markOf(t, o.store, 10); got != "PRJ-CHW001" {
		t.Fatalf("expected project prefix on override, got %q", got)
	}
	if got := markOf(t, o.store, 40); got != "PRJ-PL001" {
		t.Fatalf("expected discipline prefix, got %q", got)
	}
}

func TestMarkSleevesSettingsProjectPrefix(t *testing.T) {
	in := domain.DefaultSettingsInput()
	in.ProjectPrefix = "B"
	settings, err := domain.NewMarkPrefixSettings(in)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	o := newObserved(markFixture())
	if _, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: settings, Categories: []domain.Category{domain.CategoryPipe}}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if got := markOf(t, o.store, 40); got != "B-P001" {
		t.Fatalf("expected settings project prefix, got %q", got)
	}
	if got := markOf(t, o.store, 30); got != "" {
		t.Fatalf("duct sleeve outside the requested categories was marked: %q", got)
	}
}

func TestMarkSleevesPrefixOnlyThenNumberOnly(t *testing.T) {
	o := newObserved(markFixture())
	settings := chwSettings(t)
	report, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: settings, Mode: ModePrefixOnly})
	if err != nil {
		t.Fatalf("prefix only: %v", err)
	}
	if report.Prefixed != 4 || report.Numbered != 0 {
		t.Fatalf("unexpected prefix-only report %+v", report)
	}
	if got := markOf(t, o.store, 10); got != "CHW" {
		t.Fatalf("expected bare prefix, got %q", got)
	}

	report, err = o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: settings, Mode: ModeNumberOnly})
	if err != nil {
		t.Fatalf("number only: %v", err)
	}
	if report.Numbered != 4 || report.Skipped != 0 {
		t.Fatalf("unexpected number-only report %+v", report)
	}
	if got := markOf(t, o.store, 20); got != "MEP001" {
		t.Fatalf("expected MEP001, got %q", got)
	}
}

func TestMarkSleevesPrefixOnlyDropsNumberOnPrefixChange(t *testing.T) {
	store := markFixture()
	store.PutElements(
		domain.Element{ID: 10, Category: domain.CategoryDuct, Kind: domain.SleeveCluster, Level: "L1",
			Attributes: map[string]domain.Value{domain.AttrMark: domain.StringValue("D007")}},
		domain.Element{ID: 30, Category: domain.CategoryDuct, Kind: domain.SleeveIndividual, Level: "L1",
			Attributes: map[string]domain.Value{domain.AttrMark: domain.StringValue("D003")}},
	)
	o := newObserved(store)
	report, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: chwSettings(t), Mode: ModePrefixOnly})
	if err != nil {
		t.Fatalf("prefix only: %v", err)
	}
	if got := markOf(t, o.store, 10); got != "CHW" {
		t.Fatalf("changed prefix must drop the old number, got %q", got)
	}
	if got := markOf(t, o.store, 30); got != "D003" {
		t.Fatalf("unchanged prefix must keep its number, got %q", got)
	}
	if report.Prefixed != 3 {
		t.Fatalf("expected three prefix writes, got %+v", report)
	}
}

func TestMarkSleevesNumberOnlySkipsUnmarked(t *testing.T) {
	o := newObserved(markFixture())
	report, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: chwSettings(t), Mode: "NUMBER-ONLY"})
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if report.Skipped != 4 || report.Numbered != 0 {
		t.Fatalf("expected every sleeve skipped, got %+v", report)
	}
}

func TestMarkSleevesAllowedPrefixes(t *testing.T) {
	o := newObserved(markFixture())
	report, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: chwSettings(t), AllowedPrefixes: []string{"D"}})
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if report.Numbered != 1 || report.Skipped != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if markOf(t, o.store, 30) != "D001" || markOf(t, o.store, 10) != "" {
		t.Fatalf("only D sleeves should be numbered")
	}
}

func TestMarkSleevesWithoutZones(t *testing.T) {
	o := newObserved(memory.NewStore())
	report, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: domain.DefaultSettings()})
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if report.Status != domain.CommitCommitted || report.Processed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !o.logger.contains("i:no categories to mark") {
		t.Fatalf("expected info log, got %v", o.logger.entries)
	}
}

func TestMarkSleevesValidation(t *testing.T) {
	cases := map[string]MarkRequest{
		"missing settings":   {},
		"unknown mode":       {Settings: domain.DefaultSettings(), Mode: "sideways"},
		"numeric project":    {Settings: domain.DefaultSettings(), ProjectPrefix: "P1"},
		"numeric discipline": {Settings: domain.DefaultSettings(), DisciplinePrefixes: map[domain.Category]string{domain.CategoryDuct: "D2"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			o := newObserved(markFixture())
			_, err := o.svc.MarkSleeves(context.Background(), req)
			var verr domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if o.audit.last(t).Status != AuditStatusError {
				t.Fatalf("expected error audit entry")
			}
			if markOf(t, o.store, 30) != "" {
				t.Fatalf("validation failure must not write")
			}
		})
	}
}

func TestMarkSleevesCommitFailure(t *testing.T) {
	store := markFixture()
	store.SetCommitHook(func(string) error { return errors.New("document is read only") })
	o := newObserved(store)
	report, err := o.svc.MarkSleeves(context.Background(), MarkRequest{Settings: chwSettings(t)})
	var txErr domain.TransactionError
	if !errors.As(err, &txErr) || txErr.Status != domain.CommitFailed {
		t.Fatalf("expected commit failure, got %v", err)
	}
	if report.Status != domain.CommitFailed {
		t.Fatalf("expected failed status, got %s", report.Status)
	}
	store.SetCommitHook(nil)
	if markOf(t, store, 30) != "" {
		t.Fatalf("failed commit must not leave marks behind")
	}
	if !o.metrics.has(OpMarkSleeves, false) {
		t.Fatalf("expected failure metric")
	}
	if len(o.tracer.ended) != 1 || o.tracer.ended[0].err == nil {
		t.Fatalf("expected failed span, got %+v", o.tracer.ended)
	}
	if !o.logger.contains("e:operation failed") {
		t.Fatalf("expected error log, got %v", o.logger.entries)
	}
	// Zones stay unresolved when nothing was committed.
	zones, _ := store.ZoneSnapshot(context.Background())
	for _, z := range zones.ByCombined(20) {
		if z.Resolved {
			t.Fatalf("zone %s flagged resolved after failed commit", z.ID)
		}
	}
}

func TestMarkSleevesCancelled(t *testing.T) {
	o := newObserved(markFixture())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.svc.MarkSleeves(ctx, MarkRequest{Settings: chwSettings(t)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestParseMarkMode(t *testing.T) {
	for in, want := range map[string]MarkMode{"": ModeFull, " Full ": ModeFull, "prefix-only": ModePrefixOnly, "Number-Only": ModeNumberOnly} {
		got, err := ParseMarkMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMarkMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMarkMode("numbers"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
