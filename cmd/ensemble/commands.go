package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/observations"
	"github.com/goliatone/go-ensemble/pkg/state"
	"github.com/goliatone/go-ensemble/pkg/timeseries"
)

func newAggregateCmd(a *app) *cobra.Command {
	var (
		statistic string
		key       string
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Reduce a dataset across the realizations of an ensemble",
		Example: `  ensemble aggregate -e iter-0='runs/realization-*/iter-0' \
    -l csv:share/results/volumes/geogrid.csv --stat p10 --key geogrid.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ensembles, err := a.openEnsembles(cmd.Context())
			if err != nil {
				return err
			}
			result, _, err := ensembles[0].Aggregate(statistic, ensemble.WithKeys(key))
			if err != nil {
				return err
			}
			ds, err := result.Get(key)
			if err != nil {
				return err
			}
			return a.write(ds)
		},
	}
	cmd.Flags().StringVar(&statistic, "stat", "mean", "mean, median, min, max, std, var or pXX")
	cmd.Flags().StringVar(&key, "key", "", "dataset key to aggregate")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newStackCmd(a *app) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Stack a dataset across every realization of every ensemble",
		Example: `  ensemble stack -e iter-0='runs/realization-*/iter-0' -e iter-1='runs/realization-*/iter-1' \
    -l scalar:share/results/npv.txt --key npv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ensembles, err := a.openEnsembles(cmd.Context())
			if err != nil {
				return err
			}
			set, err := ensemble.NewEnsembleSet("cli", ensembles, a.options()...)
			if err != nil {
				return err
			}
			ds, _, err := set.Get(key)
			if err != nil {
				return err
			}
			return a.write(ds)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "dataset key to stack")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Subtract the first ensemble from the second, realization by realization",
		Example: `  ensemble diff -e prior='runs/realization-*/iter-0' -e posterior='runs/realization-*/iter-3' \
    -l share/results/volumes/geogrid.csv --key geogrid.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ensembles, err := a.openEnsembles(cmd.Context())
			if err != nil {
				return err
			}
			if len(ensembles) != 2 {
				return fmt.Errorf("diff needs exactly two --ensemble flags, got %d", len(ensembles))
			}
			base, other := ensembles[0], ensembles[1]
			opts := append(a.options(), ensemble.WithName(other.Name()+"-"+base.Name()), ensemble.WithKeyFilter(key))
			delta, _, err := ensemble.Sub(other, base).EvaluateEnsemble(opts...)
			if err != nil {
				return err
			}
			ds, _, err := delta.Get(key)
			if err != nil {
				return err
			}
			return a.write(ds)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "dataset key to compare")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newResampleCmd(a *app) *cobra.Command {
	var (
		timeIndex string
		columns   []string
		withStats bool
	)
	cmd := &cobra.Command{
		Use:   "resample",
		Short: "Resample summary vectors of an ensemble onto a time index",
		Example: `  ensemble resample -e iter-0='runs/realization-*/iter-0' \
    -l csv:share/results/tables/unsmry--raw.csv --time-index monthly --column 'FO*'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, err := timeseries.ParseTimeIndex(timeIndex)
			if err != nil {
				return err
			}
			ensembles, err := a.openEnsembles(cmd.Context())
			if err != nil {
				return err
			}
			ens := ensembles[0]
			summary := ens.Summary
			if withStats {
				summary = func(columns []string, index timeseries.TimeIndex) (*dataset.Dataset, ensemble.Diagnostics, error) {
					return ens.SummaryStats(columns, index)
				}
			}
			ds, _, err := summary(columns, index)
			if err != nil {
				return err
			}
			return a.write(ds)
		},
	}
	cmd.Flags().StringVar(&timeIndex, "time-index", "monthly", "raw, first, last, daily, weekly, monthly, yearly or an ISO date")
	cmd.Flags().StringArrayVar(&columns, "column", nil, "summary vectors to include, wildcards allowed")
	cmd.Flags().BoolVar(&withStats, "stats", false, "report mean, p10, p90, maximum and minimum instead of every realization")
	return cmd
}

func newMismatchCmd(a *app) *cobra.Command {
	var (
		observationFile string
		misfit          bool
	)
	cmd := &cobra.Command{
		Use:   "mismatch",
		Short: "Score every realization against an observation file",
		Example: `  ensemble mismatch -e iter-0='runs/realization-*/iter-0' \
    -l csv:share/results/tables/unsmry--raw.csv --observations observations.yml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, diags, err := observations.Load(observationFile)
			if err != nil {
				return err
			}
			for _, d := range diags {
				a.logger.Warn("observation removed", slog.String("error", d.Error()))
			}
			ensembles, err := a.openEnsembles(cmd.Context())
			if err != nil {
				return err
			}
			ens := ensembles[0]
			if misfit {
				return a.writeMisfit(set, ens)
			}
			result, diags, err := set.Mismatch(cmd.Context(), ens, observations.WithWorkers(a.cfg.Workers))
			if err != nil {
				return err
			}
			for _, d := range diags {
				a.logger.Warn("observation skipped", slog.String("error", d.Error()))
			}
			ds, err := result.Dataset()
			if err != nil {
				return err
			}
			return a.write(ds)
		},
	}
	cmd.Flags().StringVar(&observationFile, "observations", "", "observation YAML file")
	cmd.Flags().BoolVar(&misfit, "misfit", false, "print one misfit value per realization")
	_ = cmd.MarkFlagRequired("observations")
	return cmd
}

func (a *app) writeMisfit(set *observations.Set, ens *ensemble.Ensemble) error {
	reals := make([]float64, 0, ens.Len())
	values := make([]float64, 0, ens.Len())
	for _, r := range ens.Realizations() {
		value, err := set.Misfit(r, true)
		if err != nil {
			return err
		}
		reals = append(reals, float64(r.Index()))
		values = append(values, value)
	}
	ds, err := dataset.NewTable(
		dataset.FloatColumn(dataset.RealColumn, reals...),
		dataset.FloatColumn("MISFIT", values...),
	)
	if err != nil {
		return err
	}
	return a.write(ds)
}

func newArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Save the loaded data of an ensemble to the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()
			ensembles, err := a.openEnsembles(cmd.Context())
			if err != nil {
				return err
			}
			archiver := state.Archiver{Store: store}
			for _, ens := range ensembles {
				meta, err := archiver.SaveEnsemble(cmd.Context(), ens, state.Meta{})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s %d\n", ens.Name(), meta.SnapshotID, ens.Len())
			}
			return nil
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "restore NAME",
		Short: "Print a dataset of an archived ensemble",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()
			archiver := state.Archiver{Store: store, Options: a.options()}
			ens, err := archiver.LoadEnsemble(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ds, _, err := ens.Get(key)
			if err != nil {
				return err
			}
			return a.write(ds)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "dataset key to print")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
