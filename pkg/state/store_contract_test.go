package state_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/state"
)

type listingStore interface {
	state.Store
	state.Lister
}

func day(month time.Month, d int) time.Time {
	return time.Date(2020, month, d, 0, 0, 0, 0, time.UTC)
}

func fixtureRealization(t *testing.T, index int) *ensemble.DetachedRealization {
	t.Helper()
	table, err := dataset.NewTable(
		dataset.TimeColumn(dataset.DateColumn, day(1, 1), day(2, 1), day(3, 1)),
		dataset.FloatColumn("FOPT", 0, math.NaN(), 250.125),
		dataset.StringColumn("WELL", "OP_1", "", "OP_2"),
	)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	r := ensemble.NewDetachedRealization(index, "iter-0/realization-fixture")
	r.Put("share/results/tables/unsmry--monthly.csv", table)
	r.Put("parameters.txt", dataset.NewKeyValue(map[string]any{"FWL": 1700.0 + float64(index), "MODE": "high"}))
	r.Put("share/results/npv.txt", dataset.NewScalar(3.5))
	return r
}

func assertSameData(t *testing.T, want, got ensemble.Realization) {
	t.Helper()
	if got.Index() != want.Index() || got.Description() != want.Description() {
		t.Fatalf("expected realization %d %q, got %d %q", want.Index(), want.Description(), got.Index(), got.Description())
	}
	if len(got.Keys()) != len(want.Keys()) {
		t.Fatalf("expected keys %v, got %v", want.Keys(), got.Keys())
	}
	for _, key := range want.Keys() {
		w, err := want.Get(key)
		if err != nil {
			t.Fatalf("get %s from original: %v", key, err)
		}
		g, err := got.Get(key)
		if err != nil {
			t.Fatalf("get %s from restored: %v", key, err)
		}
		if !w.Equal(g) {
			t.Fatalf("%s differs after reload: want %v got %v", key, w.Names(), g.Names())
		}
	}
}

// runStoreContract checks the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) listingStore) {
	ctx := context.Background()

	t.Run("missing ref", func(t *testing.T) {
		store := newStore(t)
		_, _, ok, err := store.Load(ctx, state.Ref{Ensemble: "iter-0", Index: 9})
		if err != nil || ok {
			t.Fatalf("expected ok=false without error, got ok=%t err=%v", ok, err)
		}
	})

	t.Run("save and load", func(t *testing.T) {
		store := newStore(t)
		original := fixtureRealization(t, 2)
		ref := state.Ref{Ensemble: "iter-0", Index: 2}
		meta, err := store.Save(ctx, ref, original, state.Meta{Extra: map[string]string{"case": "base"}})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if meta.SnapshotID == "" || meta.UpdatedAt.IsZero() {
			t.Fatalf("expected snapshot id and time to be assigned, got %+v", meta)
		}

		restored, loaded, ok, err := store.Load(ctx, ref)
		if err != nil || !ok {
			t.Fatalf("load: ok=%t err=%v", ok, err)
		}
		if loaded.SnapshotID != meta.SnapshotID || loaded.Extra["case"] != "base" {
			t.Fatalf("meta mismatch: saved %+v loaded %+v", meta, loaded)
		}
		if !loaded.UpdatedAt.Equal(meta.UpdatedAt) {
			t.Fatalf("expected updated at %v, got %v", meta.UpdatedAt, loaded.UpdatedAt)
		}
		assertSameData(t, original, restored)
	})

	t.Run("saved copy is isolated", func(t *testing.T) {
		store := newStore(t)
		original := fixtureRealization(t, 0)
		ref := state.Ref{Ensemble: "iter-0", Index: 0}
		if _, err := store.Save(ctx, ref, original, state.Meta{}); err != nil {
			t.Fatalf("save: %v", err)
		}
		original.Put("share/results/npv.txt", dataset.NewScalar(99))

		restored, _, _, err := store.Load(ctx, ref)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		npv, _ := restored.Get("share/results/npv.txt")
		if v, _ := npv.Float(dataset.ScalarColumn, 0); v != 3.5 {
			t.Fatalf("expected saved value 3.5, got %v", v)
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		store := newStore(t)
		ref := state.Ref{Ensemble: "iter-0", Index: 1}
		if _, err := store.Save(ctx, ref, fixtureRealization(t, 1), state.Meta{SnapshotID: "first"}); err != nil {
			t.Fatalf("save: %v", err)
		}
		smaller := ensemble.NewDetachedRealization(1, "")
		smaller.Put("share/results/npv.txt", dataset.NewScalar(7))
		if _, err := store.Save(ctx, ref, smaller, state.Meta{SnapshotID: "second"}); err != nil {
			t.Fatalf("save: %v", err)
		}
		restored, meta, _, err := store.Load(ctx, ref)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if meta.SnapshotID != "second" {
			t.Fatalf("expected second snapshot, got %q", meta.SnapshotID)
		}
		assertSameData(t, smaller, restored)
	})

	t.Run("index mismatch", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Save(ctx, state.Ref{Ensemble: "iter-0", Index: 5}, fixtureRealization(t, 4), state.Meta{})
		if !errors.Is(err, state.ErrInvalidRef) {
			t.Fatalf("expected ErrInvalidRef, got %v", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		store := newStore(t)
		for _, index := range []int{3, 0, 11} {
			if _, err := store.Save(ctx, state.Ref{Ensemble: "iter-1", Index: index}, fixtureRealization(t, index), state.Meta{}); err != nil {
				t.Fatalf("save: %v", err)
			}
		}
		if _, err := store.Save(ctx, state.Ref{Ensemble: "iter-2", Index: 4}, fixtureRealization(t, 4), state.Meta{}); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := store.List(ctx, "iter-1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 3 || got[0] != 0 || got[1] != 3 || got[2] != 11 {
			t.Fatalf("expected [0 3 11], got %v", got)
		}
		if none, err := store.List(ctx, "iter-9"); err != nil || len(none) != 0 {
			t.Fatalf("expected nothing for an unknown ensemble, got %v %v", none, err)
		}
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(*testing.T) listingStore { return state.NewMemoryStore() })
}

func TestDirStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) listingStore { return state.NewDirStore(t.TempDir()) })
}
