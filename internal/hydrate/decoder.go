package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-ensemble/pkg/dataset"
)

// Context identifies the mapping being decoded, for error messages.
type Context struct {
	Source   string
	Category string
	Position int
}

func (c Context) String() string {
	if c.Category == "" {
		return c.Source
	}
	return fmt.Sprintf("%s:%s[%d]", c.Source, c.Category, c.Position)
}

// PreHook lets callers mutate or normalise the payload before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the hydrated struct after decoding.
type PostHook[T any] func(Context, *T) error

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts loosely typed mappings into structs.
type Decoder[T any] struct {
	preHooks        []PreHook
	postHooks       []PostHook[T]
	disallowUnknown bool
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithDisallowUnknownFields rejects fields T does not declare.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.disallowUnknown = true
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts payload into T applying the configured hooks. The caller's
// payload is never modified.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T

	if payload == nil {
		return zero, fmt.Errorf("hydrate: payload is nil for %s", ctx)
	}

	current, err := clonePayload(payload)
	if err != nil {
		return zero, fmt.Errorf("hydrate: clone payload for %s: %w", ctx, err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for %s failed: %w", ctx, err)
		}
		if next != nil {
			current = next
		}
	}

	buffer, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("hydrate: marshal payload for %s: %w", ctx, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	if d.disallowUnknown {
		decoder.DisallowUnknownFields()
	}
	var result T
	if err := decoder.Decode(&result); err != nil {
		return zero, fmt.Errorf("hydrate: decode %s: %w", ctx, err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for %s failed: %w", ctx, err)
		}
	}

	return result, nil
}

// NormalizeDates rewrites the named fields to RFC 3339 strings so they
// decode into time.Time. Fields are looked up at the top level and inside
// nested lists of mappings. Strings in any layout dataset.ParseTime accepts
// and time.Time values are converted; anything else fails.
func NormalizeDates(fields ...string) PreHook {
	names := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		names[f] = struct{}{}
	}
	return func(_ Context, payload map[string]any) (map[string]any, error) {
		if err := normalizeDates(payload, names); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

func normalizeDates(m map[string]any, names map[string]struct{}) error {
	for key, value := range m {
		if _, ok := names[key]; ok {
			t, err := toTime(value)
			if err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
			m[key] = t.Format(time.RFC3339)
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			if err := normalizeDates(v, names); err != nil {
				return err
			}
		case []any:
			for _, item := range v {
				if nested, ok := item.(map[string]any); ok {
					if err := normalizeDates(nested, names); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return dataset.ParseTime(v)
	}
	return time.Time{}, fmt.Errorf("date %v (%T) not understood", value, value)
}

func clonePayload(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}
