package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"sleevemark/internal/infra/blob/fs"
	"sleevemark/internal/infra/blob/memory"
	"sleevemark/internal/infra/blob/s3"
)

// S3Config configures the S3 driver.
type S3Config = s3.Config

// NewMemory returns an empty in-memory store.
func NewMemory() Store { return memory.New() }

// Options selects and configures a blob backend.
type Options struct {
	Driver Driver   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// OptionsFromEnv overlays blob settings from the environment onto base.
//
//	SLEEVEMARK_BLOB_DRIVER: fs|s3|memory (default fs)
//	SLEEVEMARK_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	SLEEVEMARK_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
func OptionsFromEnv(base Options) Options {
	if v := os.Getenv("SLEEVEMARK_BLOB_DRIVER"); v != "" {
		base.Driver = Driver(strings.ToLower(v))
	}
	if v := os.Getenv("SLEEVEMARK_BLOB_FS_ROOT"); v != "" {
		base.FSRoot = v
	}
	if v := os.Getenv("SLEEVEMARK_BLOB_S3_BUCKET"); v != "" {
		base.S3.Bucket = v
	}
	if v := os.Getenv("SLEEVEMARK_BLOB_S3_REGION"); v != "" {
		base.S3.Region = v
	}
	if v := os.Getenv("SLEEVEMARK_BLOB_S3_ENDPOINT"); v != "" {
		base.S3.Endpoint = v
	}
	if v := os.Getenv("SLEEVEMARK_BLOB_S3_PATH_STYLE"); v != "" {
		base.S3.PathStyle = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		base.S3.AccessKeyID = v
		base.S3.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
		base.S3.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
	}
	return base
}

// Open constructs the blob.Store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		st, err := fs.New(opts.FSRoot)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverS3:
		if opts.S3.Bucket == "" {
			return nil, fmt.Errorf("SLEEVEMARK_BLOB_S3_BUCKET required for s3 driver")
		}
		st, err := s3.New(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
		return st, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
