package activity

import (
	"fmt"
	"strings"
	"time"
)

const (
	VerbRealizationLoaded    = "realization.loaded"
	VerbEnsembleAggregated   = "ensemble.aggregated"
	VerbCombinationEvaluated = "combination.evaluated"
	VerbEnsemblePersisted    = "ensemble.persisted"
)

// EnsembleEventInput holds the fields shared by ensemble lifecycle events.
type EnsembleEventInput struct {
	ActorID  string
	TenantID string
	Channel  string
	// Ensemble names the ensemble the event concerns.
	Ensemble string
	// Index is the realization index, nil for ensemble-wide events.
	Index *int
	// Key is the dataset key involved, when any.
	Key        string
	Statistic  string
	Expression string
	SnapshotID string
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildRealizationLoadedEvent reports a dataset loaded into a realization.
func BuildRealizationLoadedEvent(input EnsembleEventInput) Event {
	return buildEnsembleEvent(VerbRealizationLoaded, "realization", input)
}

// BuildEnsembleAggregatedEvent reports a statistic computed over an ensemble.
func BuildEnsembleAggregatedEvent(input EnsembleEventInput) Event {
	return buildEnsembleEvent(VerbEnsembleAggregated, "ensemble", input)
}

// BuildCombinationEvaluatedEvent reports the evaluation of a combination
// expression.
func BuildCombinationEvaluatedEvent(input EnsembleEventInput) Event {
	return buildEnsembleEvent(VerbCombinationEvaluated, "combination", input)
}

// BuildEnsemblePersistedEvent reports an ensemble written to a state store.
func BuildEnsemblePersistedEvent(input EnsembleEventInput) Event {
	return buildEnsembleEvent(VerbEnsemblePersisted, "ensemble", input)
}

func buildEnsembleEvent(verb, objectType string, input EnsembleEventInput) Event {
	metadata := cloneMap(input.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	ensemble := strings.TrimSpace(input.Ensemble)
	if ensemble != "" {
		set("ensemble", ensemble)
	}
	if input.Index != nil {
		set("realization", *input.Index)
	}
	if input.Key != "" {
		set("key", input.Key)
	}
	if input.Statistic != "" {
		set("statistic", input.Statistic)
	}
	if input.Expression != "" {
		set("expression", input.Expression)
	}
	if input.SnapshotID != "" {
		set("snapshot_id", input.SnapshotID)
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID(objectType, ensemble, input),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func objectID(objectType, ensemble string, input EnsembleEventInput) string {
	if objectType == "realization" && input.Index != nil {
		if ensemble == "" {
			return fmt.Sprintf("realization-%d", *input.Index)
		}
		return fmt.Sprintf("%s/realization-%d", ensemble, *input.Index)
	}
	if objectType == "combination" && input.Expression != "" {
		return input.Expression
	}
	if ensemble != "" {
		return ensemble
	}
	if input.SnapshotID != "" {
		return input.SnapshotID
	}
	return objectType
}
