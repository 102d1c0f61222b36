package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sleevemark/internal/settings"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage mark prefix settings and transfer configurations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the stored mark prefix settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withApp(cmd, func(ctx context.Context, a *app) error {
					s, err := a.settings.LoadMarkPrefix(ctx)
					if err != nil {
						return err
					}
					return settings.EncodeMarkPrefix(cmd.OutOrStdout(), s)
				})
			},
		},
		&cobra.Command{
			Use:   "validate FILE",
			Short: "Check a mark prefix settings file without storing it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				in, err := openInput(args[0])
				if err != nil {
					return err
				}
				defer in.Close()
				if _, err := settings.DecodeMarkPrefix(in); err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return err
			},
		},
		&cobra.Command{
			Use:   "import FILE",
			Short: "Validate and store mark prefix settings",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				in, err := openInput(args[0])
				if err != nil {
					return err
				}
				defer in.Close()
				s, err := settings.DecodeMarkPrefix(in)
				if err != nil {
					return err
				}
				return opts.withApp(cmd, func(ctx context.Context, a *app) error {
					return a.settings.SaveMarkPrefix(ctx, s)
				})
			},
		},
		&cobra.Command{
			Use:   "import-transfer FILE",
			Short: "Validate and store a named transfer configuration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				in, err := openInput(args[0])
				if err != nil {
					return err
				}
				defer in.Close()
				cfg, err := settings.DecodeTransfer(in)
				if err != nil {
					return err
				}
				return opts.withApp(cmd, func(ctx context.Context, a *app) error {
					return a.settings.SaveTransfer(ctx, cfg)
				})
			},
		},
		&cobra.Command{
			Use:   "transfers",
			Short: "List stored transfer configurations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withApp(cmd, func(ctx context.Context, a *app) error {
					names, err := a.settings.ListTransfers(ctx)
					if err != nil {
						return err
					}
					for _, n := range names {
						if _, err := fmt.Fprintln(cmd.OutOrStdout(), n); err != nil {
							return err
						}
					}
					return nil
				})
			},
		},
	)
	return cmd
}
