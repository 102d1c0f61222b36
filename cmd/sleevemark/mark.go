package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sleevemark/internal/core"
	"sleevemark/internal/marking"
	"sleevemark/internal/settings"
	"sleevemark/pkg/domain"
)

func newMarkCmd(opts *rootOptions) *cobra.Command {
	var (
		categories   []string
		project      string
		disciplines  []string
		remarkAll    bool
		mode         string
		allowed      []string
		settingsFile string
	)
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Resolve prefixes and number sleeves",
		Long: `Resolves the mark prefix of every sleeve in the selected categories from
its clash zones and assigns the next free number per prefix. Existing numbers
are kept unless --remark-all or the category's remark setting is on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsedMode, err := core.ParseMarkMode(mode)
			if err != nil {
				return err
			}
			cats, err := parseCategories(categories)
			if err != nil {
				return err
			}
			discipline, err := parseDisciplines(disciplines)
			if err != nil {
				return err
			}
			req := core.MarkRequest{
				Categories:         cats,
				ProjectPrefix:      project,
				DisciplinePrefixes: discipline,
				RemarkAll:          remarkAll,
				Mode:               parsedMode,
			}
			if cmd.Flags().Changed("allowed-prefix") {
				req.AllowedPrefixes = allowed
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				req.Settings, err = loadMarkSettings(ctx, a, settingsFile)
				if err != nil {
					return err
				}
				report, err := a.svc.MarkSleeves(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&categories, "category", nil, "categories to mark (default: every category with clash zones)")
	f.StringVar(&project, "project-prefix", "", "project prefix joined to every mark with a dash")
	f.StringArrayVar(&disciplines, "discipline", nil, "category default override as Category=PREFIX (repeatable)")
	f.BoolVar(&remarkAll, "remark-all", false, "renumber every sleeve and reset the category counters")
	f.StringVar(&mode, "mode", string(core.ModeFull), "full, prefix-only or number-only")
	f.StringSliceVar(&allowed, "allowed-prefix", nil, "number only sleeves resolving to these prefixes")
	f.StringVar(&settingsFile, "settings", "", "mark prefix settings file (default: stored settings)")
	return cmd
}

func loadMarkSettings(ctx context.Context, a *app, path string) (*domain.MarkPrefixSettings, error) {
	if path == "" {
		return a.settings.LoadMarkPrefix(ctx)
	}
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return settings.DecodeMarkPrefix(in)
}

func parseCategories(names []string) ([]domain.Category, error) {
	out := make([]domain.Category, 0, len(names))
	for _, n := range names {
		c, ok := domain.ParseCategory(n)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", n)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseDisciplines(pairs []string) (map[domain.Category]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[domain.Category]string, len(pairs))
	for _, p := range pairs {
		name, prefix, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("discipline %q: expected Category=PREFIX", p)
		}
		c, known := domain.ParseCategory(name)
		if !known {
			return nil, fmt.Errorf("discipline %q: unknown category %q", p, name)
		}
		out[c] = strings.TrimSpace(prefix)
	}
	return out, nil
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var (
		categories []string
		level      string
		bbox       string
		selection  bool
		all        bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear marks within a level, box or selection",
		Long: `Clears the marks of sleeves inside the given scope. Level and --all resets
also drop the numbering counters of that scope so the next mark run starts at
one; box and selection resets keep the counters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats, err := parseCategories(categories)
			if err != nil {
				return err
			}
			scope := marking.ResetScope{Categories: cats, Level: level, Selection: selection, All: all}
			if bbox != "" {
				box, err := parseBox(bbox)
				if err != nil {
					return err
				}
				scope.Bounds = &box
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.svc.ResetMarks(ctx, scope)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&categories, "category", nil, "categories to reset (default: all)")
	f.StringVar(&level, "level", "", "level name")
	f.StringVar(&bbox, "bbox", "", "bounding box as minX,minY,minZ,maxX,maxY,maxZ")
	f.BoolVar(&selection, "selection", false, "reset the current selection")
	f.BoolVar(&all, "all", false, "reset every sleeve")
	return cmd
}

func parseBox(s string) (domain.Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return domain.Box{}, fmt.Errorf("bbox %q: expected six comma separated numbers", s)
	}
	var v [6]float64
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Box{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = n
	}
	return domain.Box{
		Min: domain.Point{X: min(v[0], v[3]), Y: min(v[1], v[4]), Z: min(v[2], v[5])},
		Max: domain.Point{X: max(v[0], v[3]), Y: max(v[1], v[4]), Z: max(v[2], v[5])},
	}, nil
}
