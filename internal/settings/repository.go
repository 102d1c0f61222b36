// Package settings persists mark prefix settings and transfer configurations
// as YAML documents in the blob store.
package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"sleevemark/internal/blob"
	"sleevemark/internal/logging"
	"sleevemark/pkg/domain"
)

const (
	// MarkPrefixKey is the blob key of the mark prefix settings document.
	MarkPrefixKey = "settings/mark-prefix.yaml"
	// TransferPrefix is the blob key prefix of transfer configurations.
	TransferPrefix = "transfer/"

	contentType = "application/yaml"
)

var transferName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Repository loads and saves settings documents.
type Repository struct {
	store  blob.Store
	logger logging.Logger
}

// NewRepository binds a repository to store.
func NewRepository(store blob.Store, logger logging.Logger) *Repository {
	return &Repository{store: store, logger: logging.OrNoop(logger)}
}

// DecodeMarkPrefix parses and validates a settings document. Unknown fields
// are rejected so typos do not silently fall back to defaults.
func DecodeMarkPrefix(r io.Reader) (*domain.MarkPrefixSettings, error) {
	in := domain.DefaultSettingsInput()
	in.CategoryDefaults = nil
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode mark prefix settings: %w", err)
	}
	if in.CategoryDefaults == nil {
		in.CategoryDefaults = domain.DefaultSettingsInput().CategoryDefaults
	}
	return domain.NewMarkPrefixSettings(in)
}

// EncodeMarkPrefix writes s as YAML.
func EncodeMarkPrefix(w io.Writer, s *domain.MarkPrefixSettings) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s.Input()); err != nil {
		return fmt.Errorf("encode mark prefix settings: %w", err)
	}
	return enc.Close()
}

// LoadMarkPrefix returns the stored settings, or the defaults when none were
// saved yet.
func (r *Repository) LoadMarkPrefix(ctx context.Context) (*domain.MarkPrefixSettings, error) {
	_, rc, err := r.store.Get(ctx, MarkPrefixKey)
	if errors.Is(err, blob.ErrNotFound) {
		r.logger.Debug("no stored mark prefix settings, using defaults", "key", MarkPrefixKey)
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", MarkPrefixKey, err)
	}
	defer rc.Close()
	return DecodeMarkPrefix(rc)
}

// SaveMarkPrefix replaces the stored settings.
func (r *Repository) SaveMarkPrefix(ctx context.Context, s *domain.MarkPrefixSettings) error {
	if s == nil {
		return domain.ValidationError{Field: "settings", Message: "settings required"}
	}
	var buf bytes.Buffer
	if err := EncodeMarkPrefix(&buf, s); err != nil {
		return err
	}
	if _, err := r.store.Put(ctx, MarkPrefixKey, &buf, blob.PutOptions{ContentType: contentType, Overwrite: true}); err != nil {
		return fmt.Errorf("save %s: %w", MarkPrefixKey, err)
	}
	r.logger.Info("mark prefix settings saved", "key", MarkPrefixKey)
	return nil
}

// DecodeTransfer parses and validates a transfer configuration document.
func DecodeTransfer(r io.Reader) (domain.ParameterTransferConfiguration, error) {
	var cfg domain.ParameterTransferConfiguration
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, domain.ValidationError{Field: "transfer", Message: "empty document"}
		}
		return cfg, fmt.Errorf("decode transfer configuration: %w", err)
	}
	for i, m := range cfg.Mappings {
		for j, c := range m.Categories {
			parsed, ok := domain.ParseCategory(string(c))
			if !ok {
				return cfg, domain.ValidationError{Field: fmt.Sprintf("mappings[%d].categories[%d]", i, j), Message: fmt.Sprintf("unknown category %q", c)}
			}
			cfg.Mappings[i].Categories[j] = parsed
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func transferKey(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !transferName.MatchString(name) {
		return "", domain.ValidationError{Field: "name", Message: fmt.Sprintf("invalid transfer configuration name %q", name)}
	}
	return TransferPrefix + name + ".yaml", nil
}

// LoadTransfer returns the named transfer configuration.
func (r *Repository) LoadTransfer(ctx context.Context, name string) (domain.ParameterTransferConfiguration, error) {
	key, err := transferKey(name)
	if err != nil {
		return domain.ParameterTransferConfiguration{}, err
	}
	_, rc, err := r.store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return domain.ParameterTransferConfiguration{}, domain.ErrNotFound{Entity: "transfer configuration", ID: name}
	}
	if err != nil {
		return domain.ParameterTransferConfiguration{}, fmt.Errorf("load %s: %w", key, err)
	}
	defer rc.Close()
	cfg, err := DecodeTransfer(rc)
	if err != nil {
		return cfg, err
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	return cfg, nil
}

// SaveTransfer validates cfg and stores it under its name.
func (r *Repository) SaveTransfer(ctx context.Context, cfg domain.ParameterTransferConfiguration) error {
	key, err := transferKey(cfg.Name)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode transfer configuration: %w", err)
	}
	if _, err := r.store.Put(ctx, key, bytes.NewReader(out), blob.PutOptions{ContentType: contentType, Overwrite: true}); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	r.logger.Info("transfer configuration saved", "name", cfg.Name, "mappings", len(cfg.Mappings))
	return nil
}

// ListTransfers returns the names of stored transfer configurations.
func (r *Repository) ListTransfers(ctx context.Context) ([]string, error) {
	infos, err := r.store.List(ctx, TransferPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Key, TransferPrefix)
		if !strings.HasSuffix(name, ".yaml") || strings.Contains(name, "/") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}
