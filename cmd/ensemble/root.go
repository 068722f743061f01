package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/internal/config"
	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/state"
	"github.com/goliatone/go-ensemble/pkg/state/sqlite"
)

// app carries the settings every command shares.
type app struct {
	cfg    config.Config
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	ensembles []string
	loads     []string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "ensemble",
		Short:         "Work with ensembles of simulation realizations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringArrayVarP(&a.ensembles, "ensemble", "e", nil, "ensemble as name=glob, the glob matching realization directories")
	flags.StringArrayVarP(&a.loads, "load", "l", nil, "file to load in every realization as [format:]localpath")
	flags.Int("workers", 0, "realizations processed concurrently (ENSEMBLE_WORKERS)")
	flags.String("store", "", "archive directory, or a .db file for sqlite (ENSEMBLE_STORE)")
	flags.String("log-level", "", "debug, info, warn or error (ENSEMBLE_LOG_LEVEL)")
	flags.String("log-format", "", "text or json (ENSEMBLE_LOG_FORMAT)")

	root.AddCommand(
		newAggregateCmd(a),
		newDiffCmd(a),
		newStackCmd(a),
		newResampleCmd(a),
		newMismatchCmd(a),
		newArchiveCmd(a),
		newRestoreCmd(a),
	)
	return root
}

// configure reads the environment and lets explicitly set flags override it.
func (a *app) configure(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	logger, err := cfg.Logger(a.errOut)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) options() []ensemble.Option {
	return []ensemble.Option{
		ensemble.WithWorkers(a.cfg.Workers),
		ensemble.WithDiagnosticLogger(ensemble.SlogDiagnostics(a.logger)),
	}
}

// openEnsembles discovers every --ensemble and loads every --load file.
// Realizations that fail to load a file are logged, not fatal.
func (a *app) openEnsembles(ctx context.Context) ([]*ensemble.Ensemble, error) {
	if len(a.ensembles) == 0 {
		return nil, fmt.Errorf("at least one --ensemble is required")
	}
	requests := make([]ensemble.LoadRequest, 0, len(a.loads))
	for _, load := range a.loads {
		format, source, err := parseLoad(load)
		if err != nil {
			return nil, err
		}
		requests = append(requests, ensemble.LoadRequest{Format: format, Source: source})
	}
	out := make([]*ensemble.Ensemble, 0, len(a.ensembles))
	for _, spec := range a.ensembles {
		name, pattern, ok := strings.Cut(spec, "=")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(pattern) == "" {
			return nil, fmt.Errorf("ensemble %q: want name=glob", spec)
		}
		ens, err := ensemble.Discover(ctx, name, ensemble.GlobEnumerator{Pattern: pattern}, a.options()...)
		if err != nil {
			return nil, err
		}
		if ens.Len() == 0 {
			return nil, fmt.Errorf("ensemble %s: no realization matches %q", name, pattern)
		}
		if len(requests) > 0 {
			_, report := ens.LoadBatch(ctx, requests...)
			for index, err := range report.Failed {
				a.logger.Warn("load failed", slog.String("ensemble", name), slog.Int("realization", index), slog.Any("error", err))
			}
		}
		a.logger.Debug("ensemble ready", slog.String("ensemble", name), slog.Int("realizations", ens.Len()))
		out = append(out, ens)
	}
	return out, nil
}

func parseLoad(spec string) (dataset.Format, string, error) {
	if kind, source, ok := strings.Cut(spec, ":"); ok {
		format, err := dataset.ParseFormat(kind)
		if err != nil {
			return "", "", fmt.Errorf("load %q: %w", spec, err)
		}
		return format, source, nil
	}
	format, ok := dataset.FormatFromPath(spec)
	if !ok {
		return "", "", fmt.Errorf("load %q: cannot tell the format, use format:localpath", spec)
	}
	return format, spec, nil
}

// openStore returns the configured archive store and a function closing it.
func (a *app) openStore() (state.Store, func() error, error) {
	location := strings.TrimSpace(a.cfg.Store)
	if location == "" {
		return nil, nil, fmt.Errorf("no store configured, set --store or ENSEMBLE_STORE")
	}
	if strings.HasSuffix(location, ".db") {
		store, err := sqlite.Open(location, a.options()...)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return state.NewDirStore(location, a.options()...), func() error { return nil }, nil
}

func (a *app) write(ds *dataset.Dataset) error {
	return dataset.Write(a.out, ds)
}
