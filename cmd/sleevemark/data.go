package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sleevemark/internal/infra/persistence/memory"
	"sleevemark/pkg/domain"
)

func decodeYAML(path string, v any) error {
	in, err := openInput(path)
	if err != nil {
		return err
	}
	defer in.Close()
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func newLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load FILE",
		Short: "Merge clash zones, elements and snapshots from a YAML state file",
		Long: `Merges a state document (zones, elements, snapshots, aliases, counters,
selection) into the configured store. Use "-" to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snapshot memory.Snapshot
			if err := decodeYAML(args[0], &snapshot); err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.ImportState(ctx, snapshot); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int{
					"zones":     len(snapshot.Zones),
					"elements":  len(snapshot.Elements),
					"snapshots": len(snapshot.Snapshots),
				})
			})
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the stored state as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app) error {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(a.store.ExportState()); err != nil {
					return fmt.Errorf("encode state: %w", err)
				}
				return enc.Close()
			})
		},
	}
}

func newCaptureCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "capture FILE",
		Short: "Store captured conduit and host attribute snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data domain.SnapshotData
			if err := decodeYAML(args[0], &data); err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.CaptureSnapshots(ctx, data); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int{"records": len(data.Records), "aliases": len(data.Aliases)})
			})
		},
	}
}
