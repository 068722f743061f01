package activity

import (
	"context"
	"testing"
)

func TestBuildRealizationLoadedEventIdentifiesRealization(t *testing.T) {
	index := 3
	meta := map[string]any{"rows": 12}
	input := EnsembleEventInput{
		ActorID:  " actor ",
		Ensemble: "iter-0",
		Index:    &index,
		Key:      "share/results/tables/unsmry--monthly.csv",
		Metadata: meta,
	}

	event := BuildRealizationLoadedEvent(input)

	if event.Verb != VerbRealizationLoaded {
		t.Fatalf("expected verb %s got %s", VerbRealizationLoaded, event.Verb)
	}
	if event.ObjectType != "realization" || event.ObjectID != "iter-0/realization-3" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.ActorID != "actor" {
		t.Fatalf("expected trimmed actor, got %q", event.ActorID)
	}
	if event.Metadata["realization"] != 3 || event.Metadata["key"] != input.Key || event.Metadata["rows"] != 12 {
		t.Fatalf("unexpected metadata: %+v", event.Metadata)
	}
	event.Metadata["rows"] = 0
	if meta["rows"] != 12 {
		t.Fatalf("expected input metadata untouched")
	}
}

func TestBuildCombinationEvaluatedEventUsesExpression(t *testing.T) {
	event := BuildCombinationEvaluatedEvent(EnsembleEventInput{Expression: "(iter-1 - iter-0)"})
	if event.ObjectType != "combination" || event.ObjectID != "(iter-1 - iter-0)" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.Metadata["expression"] != "(iter-1 - iter-0)" {
		t.Fatalf("expected expression metadata, got %+v", event.Metadata)
	}
}

func TestBuildEnsembleEventFallbackObjectID(t *testing.T) {
	if event := BuildEnsemblePersistedEvent(EnsembleEventInput{SnapshotID: "snap-1"}); event.ObjectID != "snap-1" {
		t.Fatalf("expected snapshot fallback, got %q", event.ObjectID)
	}
	if event := BuildEnsembleAggregatedEvent(EnsembleEventInput{}); event.ObjectID != "ensemble" {
		t.Fatalf("expected object type fallback, got %q", event.ObjectID)
	}
}

func TestBuildEnsembleEventsWorkWithHooks(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}

	event := BuildEnsembleAggregatedEvent(EnsembleEventInput{Ensemble: "iter-0", Statistic: "p10"})
	if err := hooks.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected capture to record event, got %d", len(capture.Events))
	}
	if capture.Events[0].Metadata["statistic"] != "p10" {
		t.Fatalf("expected statistic metadata, got %+v", capture.Events[0].Metadata)
	}
}
