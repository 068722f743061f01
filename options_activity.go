package ensemble

import (
	"context"

	"github.com/goliatone/go-ensemble/pkg/activity"
	"github.com/goliatone/go-ensemble/pkg/diag"
)

// WithActivityHooks attaches activity hooks notified when realizations load,
// ensembles aggregate and combinations evaluate. Nil hooks are dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := hooks.Clone()
	return func(cfg *config) {
		cfg.activityHooks = normalized
	}
}

// emit notifies the configured hooks. Hook failures never abort the caller;
// they come back as diagnostics for the caller to report.
func (c config) emit(ctx context.Context, event activity.Event) Diagnostics {
	if !c.activityHooks.Enabled() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Channel == "" {
		event.Channel = activity.DefaultChannel
	}
	if err := c.activityHooks.Notify(ctx, event); err != nil {
		return Diagnostics{diag.New(err, "activity hook failed")}
	}
	return nil
}
