package blob

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()
	fsStore, err := Open(ctx, Options{FSRoot: t.TempDir()})
	if err != nil || fsStore.Driver() != DriverFilesystem {
		t.Fatalf("expected default fs driver, got %v %v", fsStore, err)
	}
	mem, err := Open(ctx, Options{Driver: DriverMemory})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %v", err)
	}
	if _, err := Open(ctx, Options{Driver: DriverS3}); err == nil || !strings.Contains(err.Error(), "BUCKET") {
		t.Fatalf("expected missing bucket error, got %v", err)
	}
	if _, err := Open(ctx, Options{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("SLEEVEMARK_BLOB_DRIVER", "S3")
	t.Setenv("SLEEVEMARK_BLOB_S3_BUCKET", "marks")
	t.Setenv("SLEEVEMARK_BLOB_S3_REGION", "eu-west-1")
	t.Setenv("SLEEVEMARK_BLOB_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("SLEEVEMARK_BLOB_S3_PATH_STYLE", "TRUE")
	t.Setenv("AWS_ACCESS_KEY_ID", "key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	opts := OptionsFromEnv(Options{FSRoot: "keep"})
	if opts.Driver != DriverS3 || opts.FSRoot != "keep" {
		t.Fatalf("unexpected options %+v", opts)
	}
	s3 := opts.S3
	if s3.Bucket != "marks" || s3.Region != "eu-west-1" || s3.Endpoint != "http://minio:9000" || !s3.PathStyle {
		t.Fatalf("unexpected s3 options %+v", s3)
	}
	if s3.AccessKeyID != "key" || s3.SecretAccessKey != "secret" {
		t.Fatalf("expected static credentials from env")
	}
}

func TestMemoryRoundTripThroughFacade(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	if _, err := store.Put(ctx, "settings/a.yaml", strings.NewReader("a: 1"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "settings/a.yaml", strings.NewReader("a: 2"), PutOptions{}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, _, err := store.Get(ctx, "settings/missing.yaml"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
