package ensemble

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-ensemble/pkg/dataset"
)

// ApplyFunc computes a dataset from one realization.
type ApplyFunc func(ctx context.Context, r Realization) (*dataset.Dataset, error)

// BulkReport lists per realization outcomes of a bulk operation.
type BulkReport struct {
	Succeeded []int
	Failed    map[int]error
}

// Err joins the failures in index order, or returns nil.
func (b BulkReport) Err() error {
	if len(b.Failed) == 0 {
		return nil
	}
	indices := make([]int, 0, len(b.Failed))
	for index := range b.Failed {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	errs := make([]error, len(indices))
	for i, index := range indices {
		errs[i] = fmt.Errorf("realization %d: %w", index, b.Failed[index])
	}
	return errors.Join(errs...)
}

type bulkOutcome struct {
	index int
	ds    *dataset.Dataset
	diags Diagnostics
	err   error
}

// each runs fn on every realization with at most WithWorkers goroutines.
// A failing or panicking realization never stops the others. Outcomes are ordered by
// index.
func (e *Ensemble) each(ctx context.Context, fn func(ctx context.Context, r Realization) bulkOutcome) []bulkOutcome {
	members := e.Realizations()
	outcomes := make([]bulkOutcome, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.workerLimit())
	for i, r := range members {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					outcomes[i] = bulkOutcome{index: r.Index(), err: fmt.Errorf("%w: %v", ErrRealizationPanic, p)}
				}
			}()
			if err := gctx.Err(); err != nil {
				outcomes[i] = bulkOutcome{index: r.Index(), err: err}
				return nil
			}
			out := fn(gctx, r)
			out.index = r.Index()
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func report(outcomes []bulkOutcome) BulkReport {
	rep := BulkReport{}
	for _, o := range outcomes {
		if o.err != nil {
			if rep.Failed == nil {
				rep.Failed = map[int]error{}
			}
			rep.Failed[o.index] = o.err
			continue
		}
		rep.Succeeded = append(rep.Succeeded, o.index)
	}
	return rep
}

// Apply calls fn on every realization concurrently and stacks the returned
// datasets with a leading REAL column, in index order. Realizations for
// which fn fails are listed in the report and left out of the result.
func (e *Ensemble) Apply(ctx context.Context, fn ApplyFunc) (*dataset.Dataset, BulkReport) {
	if ctx == nil {
		ctx = context.Background()
	}
	outcomes := e.each(ctx, func(ctx context.Context, r Realization) bulkOutcome {
		ds, err := fn(ctx, r)
		if err == nil && ds == nil {
			err = fmt.Errorf("ensemble: apply returned no dataset")
		}
		return bulkOutcome{ds: ds, err: err}
	})
	var parts []*dataset.Dataset
	for _, o := range outcomes {
		if o.err == nil {
			parts = append(parts, withReal(o.ds, o.index))
		}
	}
	rep := report(outcomes)
	stacked, err := dataset.Concat(parts...)
	if err != nil {
		if rep.Failed == nil {
			rep.Failed = map[int]error{}
		}
		for _, index := range rep.Succeeded {
			rep.Failed[index] = err
		}
		rep.Succeeded = nil
		return nil, rep
	}
	return stacked, rep
}

// LoadFile loads source into every realization concurrently.
func (e *Ensemble) LoadFile(ctx context.Context, kind dataset.Format, source string) (Diagnostics, BulkReport) {
	return e.LoadBatch(ctx, LoadRequest{Format: kind, Source: source})
}

// LoadRequest names one file to load in every realization.
type LoadRequest struct {
	Format dataset.Format
	Source string
}

// LoadBatch loads every request into each realization, one goroutine per
// realization working through the requests in order. A realization fails
// on its first failing request; the requests before it stay loaded.
func (e *Ensemble) LoadBatch(ctx context.Context, requests ...LoadRequest) (Diagnostics, BulkReport) {
	if ctx == nil {
		ctx = context.Background()
	}
	outcomes := e.each(ctx, func(ctx context.Context, r Realization) bulkOutcome {
		var out bulkOutcome
		for _, req := range requests {
			if err := ctx.Err(); err != nil {
				out.err = err
				return out
			}
			if disk, ok := r.(*DiskRealization); ok {
				diags, err := disk.load(ctx, req.Format, req.Source)
				out.diags = append(out.diags, diags...)
				if err != nil {
					out.err = err
					return out
				}
				continue
			}
			if err := r.Load(req.Format, req.Source); err != nil {
				out.err = err
				return out
			}
		}
		return out
	})
	var diags Diagnostics
	for _, o := range outcomes {
		diags = append(diags, o.diags...)
	}
	return diags, report(outcomes)
}
