package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	ensemble "github.com/goliatone/go-ensemble"
	"github.com/goliatone/go-ensemble/pkg/dataset"
	"github.com/goliatone/go-ensemble/pkg/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ensemble.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func realization(t *testing.T, index int, npv float64) *ensemble.DetachedRealization {
	t.Helper()
	table, err := dataset.NewTable(
		dataset.TimeColumn(dataset.DateColumn, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)),
		dataset.FloatColumn("FOPT", 10, 20),
	)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	r := ensemble.NewDetachedRealization(index, "")
	r.Put("unsmry--monthly.csv", table)
	r.Put("npv.txt", dataset.NewScalar(npv))
	return r
}

func TestStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ref := state.Ref{Ensemble: "iter-0", Index: 1}

	if _, _, ok, err := store.Load(ctx, ref); err != nil || ok {
		t.Fatalf("expected nothing saved yet, got ok=%t err=%v", ok, err)
	}

	updated := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	meta, err := store.Save(ctx, ref, realization(t, 1, 3.5), state.Meta{UpdatedAt: updated, Extra: map[string]string{"user": "ops"}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if meta.SnapshotID == "" {
		t.Fatalf("expected a generated snapshot id")
	}

	restored, loaded, ok, err := store.Load(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("load: ok=%t err=%v", ok, err)
	}
	if loaded.SnapshotID != meta.SnapshotID || !loaded.UpdatedAt.Equal(updated) || loaded.Extra["user"] != "ops" {
		t.Fatalf("unexpected meta %+v", loaded)
	}
	table, err := restored.Get("unsmry--monthly.csv")
	if err != nil {
		t.Fatalf("get table: %v", err)
	}
	want, _ := realization(t, 1, 3.5).Get("unsmry--monthly.csv")
	if !table.Equal(want) {
		t.Fatalf("table differs after reload")
	}

	if _, err := store.Save(ctx, ref, realization(t, 1, 8), state.Meta{SnapshotID: "second"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	restored, loaded, _, err = store.Load(ctx, ref)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	npv, _ := restored.Get("npv.txt")
	if v, _ := npv.Float(dataset.ScalarColumn, 0); v != 8 || loaded.SnapshotID != "second" {
		t.Fatalf("expected overwritten value 8 with snapshot second, got %v %q", v, loaded.SnapshotID)
	}
}

func TestStoreRejectsMismatchedIndex(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Save(context.Background(), state.Ref{Ensemble: "iter-0", Index: 2}, realization(t, 1, 1), state.Meta{})
	if !errors.Is(err, state.ErrInvalidRef) {
		t.Fatalf("expected ErrInvalidRef, got %v", err)
	}
}

func TestStoreWithArchiver(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ens, err := ensemble.New("iter-3", []ensemble.Realization{realization(t, 5, 1), realization(t, 0, 2)})
	if err != nil {
		t.Fatalf("ensemble: %v", err)
	}
	archiver := state.Archiver{Store: store}
	if _, err := archiver.SaveEnsemble(ctx, ens, state.Meta{}); err != nil {
		t.Fatalf("save ensemble: %v", err)
	}
	indices, err := store.List(ctx, "iter-3")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 5 {
		t.Fatalf("expected [0 5], got %v", indices)
	}
	restored, err := archiver.LoadEnsemble(ctx, "iter-3")
	if err != nil {
		t.Fatalf("load ensemble: %v", err)
	}
	npv, _, err := restored.Get("npv.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if names := npv.Names(); names[0] != dataset.RealColumn {
		t.Fatalf("expected REAL first, got %v", names)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Fatalf("expected an error for an empty path")
	}
}
