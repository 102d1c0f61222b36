package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"sleevemark/internal/blob/core"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	info, err := s.Put(ctx, "transfer/sizes.yaml", strings.NewReader("name: sizes"), core.PutOptions{ContentType: "application/yaml", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 11 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	info.Metadata["k"] = "mutated"
	head, err := s.Head(ctx, "transfer/sizes.yaml")
	if err != nil || head.Metadata["k"] != "v" {
		t.Fatalf("metadata must be copied, got %+v %v", head, err)
	}
	if _, err := s.Put(ctx, "transfer/sizes.yaml", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "transfer/sizes.yaml", strings.NewReader("name: v2"), core.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, rc, err := s.Get(ctx, "transfer/sizes.yaml")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "name: v2" {
		t.Fatalf("unexpected content %q", b)
	}
	if _, err := s.Put(ctx, "settings/mark-prefix.yaml", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, _ := s.List(ctx, "transfer/")
	if len(list) != 1 || list[0].Key != "transfer/sizes.yaml" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 || all[0].Key != "settings/mark-prefix.yaml" {
		t.Fatalf("expected sorted list, got %+v", all)
	}
	if ok, _ := s.Delete(ctx, "transfer/sizes.yaml"); !ok {
		t.Fatalf("expected delete to report existing blob")
	}
	if ok, _ := s.Delete(ctx, "transfer/sizes.yaml"); ok {
		t.Fatalf("expected second delete to report missing blob")
	}
	if _, err := s.Head(ctx, "transfer/sizes.yaml"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Put(ctx, " ", strings.NewReader("x"), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}
