package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/pkg/activity"
)

var ErrNotFound = errors.New("state: realization not found")

// Lister is implemented by stores that can enumerate the saved indices of
// an ensemble.
type Lister interface {
	List(ctx context.Context, ensemble string) ([]int, error)
}

// Archiver saves and restores whole ensembles through a Store.
type Archiver struct {
	Store Store
	// Hooks receive an ensemble.persisted event after each SaveEnsemble.
	Hooks activity.Hooks
	// Options configure the restored ensemble.
	Options []ensemble.Option
}

// SaveEnsemble saves every realization of ens under one snapshot id. The id
// is generated unless meta carries one. A failing hook is returned as an
// error after the ensemble has been saved.
func (a Archiver) SaveEnsemble(ctx context.Context, ens *ensemble.Ensemble, meta Meta) (Meta, error) {
	if a.Store == nil {
		return Meta{}, fmt.Errorf("state: store is required")
	}
	if ens == nil {
		return Meta{}, fmt.Errorf("state: ensemble is nil")
	}
	shared := cloneMeta(meta)
	if shared.SnapshotID == "" {
		shared.SnapshotID = uuid.NewString()
	}
	if shared.UpdatedAt.IsZero() {
		shared.UpdatedAt = time.Now().UTC()
	}

	members := ens.Realizations()
	for _, r := range members {
		if err := ctx.Err(); err != nil {
			return Meta{}, err
		}
		ref := Ref{Ensemble: ens.Name(), Index: r.Index()}
		if _, err := a.Store.Save(ctx, ref, r, shared); err != nil {
			return Meta{}, fmt.Errorf("state: save %s realization %d: %w", ens.Name(), r.Index(), err)
		}
	}

	emitter := activity.NewEmitter(a.Hooks, activity.Config{Enabled: true})
	event := activity.BuildEnsemblePersistedEvent(activity.EnsembleEventInput{
		Ensemble:   ens.Name(),
		SnapshotID: shared.SnapshotID,
		Metadata:   map[string]any{"realizations": len(members)},
		OccurredAt: shared.UpdatedAt,
	})
	if err := emitter.Emit(ctx, event); err != nil {
		return shared, fmt.Errorf("state: notify %s persisted: %w", ens.Name(), err)
	}
	return shared, nil
}

// LoadEnsemble restores the named ensemble from the given indices. With no
// indices the store must implement Lister and every saved realization is
// restored. A requested index that was never saved fails with ErrNotFound.
func (a Archiver) LoadEnsemble(ctx context.Context, name string, indices ...int) (*ensemble.Ensemble, error) {
	if a.Store == nil {
		return nil, fmt.Errorf("state: store is required")
	}
	if len(indices) == 0 {
		lister, ok := a.Store.(Lister)
		if !ok {
			return nil, fmt.Errorf("state: %T cannot list realizations, pass indices", a.Store)
		}
		listed, err := lister.List(ctx, name)
		if err != nil {
			return nil, err
		}
		indices = listed
	}

	members := make([]ensemble.Realization, 0, len(indices))
	for _, index := range indices {
		r, _, ok, err := a.Store.Load(ctx, Ref{Ensemble: name, Index: index})
		if err != nil {
			return nil, fmt.Errorf("state: load %s realization %d: %w", name, index, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s realization %d", ErrNotFound, name, index)
		}
		members = append(members, r)
	}
	return ensemble.New(name, members, a.Options...)
}
