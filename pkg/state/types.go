package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	ensemble "github.com/goliatone/go-ensemble"
)

var ErrInvalidRef = errors.New("state: invalid ref")

// Ref identifies one persisted realization.
type Ref struct {
	Ensemble string
	Index    int
}

// Meta is storage-owned metadata used for trace and audit.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty" yaml:"snapshot_id,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Store loads/saves one realization for a single ref. Load returns ok=false
// when nothing was saved under ref.
type Store interface {
	Load(ctx context.Context, ref Ref) (r *ensemble.DetachedRealization, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, r ensemble.Realization, meta Meta) (Meta, error)
}

// Identifier returns the canonical storage key of r.
func (r Ref) Identifier() (string, error) {
	name := strings.TrimSpace(r.Ensemble)
	switch {
	case name == "":
		return "", fmt.Errorf("%w: ensemble name is required", ErrInvalidRef)
	case r.Index < 0:
		return "", fmt.Errorf("%w: negative index %d", ErrInvalidRef, r.Index)
	case strings.ContainsAny(name, `/\`) || name == "." || name == "..":
		return "", fmt.Errorf("%w: ensemble name %q is not a single path segment", ErrInvalidRef, name)
	}
	return fmt.Sprintf("%s/realization-%d", name, r.Index), nil
}

// stamp fills in the snapshot id and update time a store assigns on save.
func stamp(meta Meta, now time.Time) Meta {
	out := cloneMeta(meta)
	if out.SnapshotID == "" {
		out.SnapshotID = uuid.NewString()
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = now.UTC()
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
