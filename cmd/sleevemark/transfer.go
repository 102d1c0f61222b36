package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sleevemark/internal/settings"
	"sleevemark/pkg/domain"
)

func newTransferCmd(opts *rootOptions) *cobra.Command {
	var (
		name    string
		file    string
		workers int
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "transfer [sleeve-id...]",
		Short: "Copy captured conduit and host attributes onto sleeves",
		Long: `Runs a batch transfer using a stored configuration (--name) or a local
configuration file (--file). Targets are the given sleeve ids, or with --all
every sleeve of the categories an enabled mapping applies to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (name == "") == (file == "") {
				return fmt.Errorf("exactly one of --name or --file is required")
			}
			if all == (len(args) > 0) {
				return fmt.Errorf("give sleeve ids or --all, not both or neither")
			}
			targets, err := parseIDs(args)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				cfg, err := loadTransferConfig(ctx, a, name, file)
				if err != nil {
					return err
				}
				if workers > 0 {
					cfg.Workers = workers
				}
				if all {
					if targets, err = a.svc.MappedSleeves(ctx, cfg); err != nil {
						return err
					}
				}
				res, err := a.svc.ExecuteBatchTransfer(ctx, targets, cfg)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("transfer failed: %s", res.Message)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "stored transfer configuration name")
	f.StringVar(&file, "file", "", "transfer configuration file")
	f.BoolVar(&all, "all", false, "target every sleeve of the mapped categories")
	f.IntVar(&workers, "workers", 0, "calculate phase workers (default: configuration, then transfer.workers)")
	return cmd
}

func loadTransferConfig(ctx context.Context, a *app, name, file string) (domain.ParameterTransferConfiguration, error) {
	if name != "" {
		return a.settings.LoadTransfer(ctx, name)
	}
	in, err := openInput(file)
	if err != nil {
		return domain.ParameterTransferConfiguration{}, err
	}
	defer in.Close()
	return settings.DecodeTransfer(in)
}

func parseIDs(args []string) ([]domain.ElementID, error) {
	ids := make([]domain.ElementID, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid sleeve id %q", arg)
		}
		ids = append(ids, domain.ElementID(n))
	}
	return ids, nil
}
