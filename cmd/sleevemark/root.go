package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "sleevemark",
		Short: "Mark sleeves and propagate conduit attributes onto openings",
		Long: `sleevemark assigns marks to placed sleeves from their clash zones and
copies captured conduit and host attributes onto the openings.

Configuration is read from --config (default sleevemark.yaml, optional) and
SLEEVEMARK_* environment variables.`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "sleevemark.yaml", "path to the configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newMarkCmd(opts),
		newResetCmd(opts),
		newTransferCmd(opts),
		newLoadCmd(opts),
		newExportCmd(opts),
		newCaptureCmd(opts),
		newSettingsCmd(opts),
	)
	return root
}

// withApp opens the configured stores for the duration of fn.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, o.configPath, o.logLevel)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}
