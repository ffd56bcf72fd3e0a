package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/chronicle-audit/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func testRecorder() (*Recorder, *memStore) {
	store := newMemStore()
	return NewRecorder(store, nil, zap.NewNop()), store
}

func testEntity(id string) models.EntityKey {
	return models.EntityKey{Namespace: "billing", EntityType: "invoice", InstanceID: id}
}

func snapshot(key models.EntityKey, state models.StateBlob) Snapshot {
	return Snapshot{Entity: key, State: state}
}

func actorRef() *uuid.UUID {
	id := uuid.New()
	return &id
}

func record(t *testing.T, r *Recorder, ctx context.Context, req RecordRequest) *models.ChangeRecord {
	t.Helper()
	rec, err := r.Record(ctx, req)
	if err != nil {
		t.Fatalf("Record(%s): %v", req.Action, err)
	}
	return rec
}

func TestNoOpElimination(t *testing.T) {
	recorder, store := testRecorder()
	key := testEntity("42")
	state := models.StateBlob{"status": "open", "total": 100}

	ctx, end := BeginSequence(context.Background())
	defer end()

	rec := record(t, recorder, ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, state),
		Previous: &Snapshot{Entity: key, State: state.Clone()},
	})
	if rec != nil {
		t.Fatalf("no-op update stored as %v, want discarded", rec.ID)
	}
	if store.count() != 0 {
		t.Fatalf("store has %d records, want 0", store.count())
	}
}

func TestCreateThenUpdatesSquash(t *testing.T) {
	recorder, store := testRecorder()
	key := testEntity("7")
	actor := actorRef()

	ctx, end := BeginSequence(context.Background())
	defer end()

	stateA := models.StateBlob{"status": "draft"}
	stateB := models.StateBlob{"status": "open"}
	stateC := models.StateBlob{"status": "paid", "paid_at": "2026-08-31"}

	created := record(t, recorder, ctx, RecordRequest{
		Action:  models.ActionCreate,
		Current: snapshot(key, stateA),
		ActorID: actor,
	})
	record(t, recorder, ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, stateB),
		Previous: &Snapshot{Entity: key, State: stateA},
		ActorID:  actor,
	})
	final := record(t, recorder, ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, stateC),
		Previous: &Snapshot{Entity: key, State: stateB},
		ActorID:  actor,
	})

	if store.count() != 1 {
		t.Fatalf("store has %d records, want 1", store.count())
	}
	if final.ID != created.ID {
		t.Errorf("squash produced record %v, want original create %v", final.ID, created.ID)
	}
	if final.Action != models.ActionCreate {
		t.Errorf("squashed action = %s, want create", final.Action)
	}
	stored, err := store.GetRecord(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	want := models.StateBlob{"status": "paid", "paid_at": "2026-08-31"}
	if !stored.CurrentState.Equal(want) {
		t.Errorf("squashed current state = %v, want %v", stored.CurrentState, want)
	}
}

func TestActorBoundaryHaltsSquash(t *testing.T) {
	recorder, store := testRecorder()
	key := testEntity("9")

	ctx, end := BeginSequence(context.Background())
	defer end()

	record(t, recorder, ctx, RecordRequest{
		Action:  models.ActionCreate,
		Current: snapshot(key, models.StateBlob{"status": "draft"}),
		ActorID: actorRef(),
	})
	update := record(t, recorder, ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, models.StateBlob{"status": "open"}),
		Previous: &Snapshot{Entity: key, State: models.StateBlob{"status": "draft"}},
		ActorID:  actorRef(),
	})

	if store.count() != 2 {
		t.Fatalf("store has %d records, want 2 (no merge across actors)", store.count())
	}
	if update == nil || update.Action != models.ActionUpdate {
		t.Errorf("update by a different actor must persist independently")
	}
}

func TestDeleteNullifiesContiguousSameActorHistory(t *testing.T) {
	t.Run("same actor throughout", func(t *testing.T) {
		recorder, store := testRecorder()
		key := testEntity("11")
		actor := actorRef()

		ctx, end := BeginSequence(context.Background())
		defer end()

		record(t, recorder, ctx, RecordRequest{
			Action:  models.ActionCreate,
			Current: snapshot(key, models.StateBlob{"name": "a"}),
			ActorID: actor,
		})
		record(t, recorder, ctx, RecordRequest{
			Action:   models.ActionUpdate,
			Current:  snapshot(key, models.StateBlob{"name": "b"}),
			Previous: &Snapshot{Entity: key, State: models.StateBlob{"name": "a"}},
			ActorID:  actor,
		})
		deleted := record(t, recorder, ctx, RecordRequest{
			Action:  models.ActionDelete,
			Current: snapshot(key, models.StateBlob{"name": "b"}),
			ActorID: actor,
		})

		if store.count() != 1 {
			t.Fatalf("store has %d records, want only the delete", store.count())
		}
		if deleted.Action != models.ActionDelete {
			t.Errorf("surviving record action = %s, want delete", deleted.Action)
		}
	})

	t.Run("delete without state snapshot survives", func(t *testing.T) {
		recorder, store := testRecorder()
		key := testEntity("18")
		actor := actorRef()

		ctx, end := BeginSequence(context.Background())
		defer end()

		record(t, recorder, ctx, RecordRequest{
			Action:  models.ActionCreate,
			Current: snapshot(key, models.StateBlob{"name": "a"}),
			ActorID: actor,
		})
		// Callers may submit a DELETE as a bare tombstone, both blobs absent.
		deleted := record(t, recorder, ctx, RecordRequest{
			Action:  models.ActionDelete,
			Current: Snapshot{Entity: key},
			ActorID: actor,
		})

		if deleted == nil {
			t.Fatal("bare delete was discarded; history lost")
		}
		if store.count() != 1 {
			t.Fatalf("store has %d records, want only the delete", store.count())
		}
		stored, err := store.GetRecord(context.Background(), deleted.ID)
		if err != nil {
			t.Fatalf("GetRecord: %v", err)
		}
		if stored.Action != models.ActionDelete {
			t.Errorf("surviving record action = %s, want delete", stored.Action)
		}
	})

	t.Run("foreign actor halts the walk", func(t *testing.T) {
		recorder, store := testRecorder()
		key := testEntity("12")
		actorX := actorRef()
		actorY := actorRef()

		ctx, end := BeginSequence(context.Background())
		defer end()

		record(t, recorder, ctx, RecordRequest{
			Action:  models.ActionCreate,
			Current: snapshot(key, models.StateBlob{"name": "a"}),
			ActorID: actorX,
		})
		record(t, recorder, ctx, RecordRequest{
			Action:   models.ActionUpdate,
			Current:  snapshot(key, models.StateBlob{"name": "b"}),
			Previous: &Snapshot{Entity: key, State: models.StateBlob{"name": "a"}},
			ActorID:  actorY,
		})
		record(t, recorder, ctx, RecordRequest{
			Action:  models.ActionDelete,
			Current: snapshot(key, models.StateBlob{"name": "b"}),
			ActorID: actorX,
		})

		// The newest prior belongs to actor Y, so the deletion walk stops
		// immediately and all three records survive.
		if store.count() != 3 {
			t.Fatalf("store has %d records, want 3", store.count())
		}
	})
}

func TestCancellationInvariant(t *testing.T) {
	recorder, store := testRecorder()
	key := testEntity("13")
	actor := actorRef()

	ctx, end := BeginSequence(context.Background())
	defer end()

	record(t, recorder, ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, models.StateBlob{"active": true}),
		Previous: &Snapshot{Entity: key, State: models.StateBlob{"active": false}},
		ActorID:  actor,
	})
	flipped, err := recorder.Record(ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, models.StateBlob{"active": false}),
		Previous: &Snapshot{Entity: key, State: models.StateBlob{"active": true}},
		ActorID:  actor,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if flipped != nil {
		t.Errorf("double flip survived as %v, want cancelled out", flipped.ID)
	}
	if store.count() != 0 {
		t.Fatalf("store has %d records, want 0 after cancellation", store.count())
	}
}

func TestExtrasMismatchHaltsSquash(t *testing.T) {
	recorder, store := testRecorder()
	key := testEntity("14")
	actor := actorRef()

	ctx, end := BeginSequence(context.Background())
	defer end()

	record(t, recorder, ctx, RecordRequest{
		Action:       models.ActionUpdate,
		Current:      snapshot(key, models.StateBlob{"status": "open"}),
		Previous:     &Snapshot{Entity: key, State: models.StateBlob{"status": "draft"}},
		ActorID:      actor,
		ManualExtras: []models.ExtraPair{{Field: "team", Value: "alpha"}},
	})
	record(t, recorder, ctx, RecordRequest{
		Action:       models.ActionUpdate,
		Current:      snapshot(key, models.StateBlob{"status": "paid"}),
		Previous:     &Snapshot{Entity: key, State: models.StateBlob{"status": "open"}},
		ActorID:      actor,
		ManualExtras: []models.ExtraPair{{Field: "team", Value: "beta"}},
	})

	if store.count() != 2 {
		t.Fatalf("store has %d records, want 2 (differing extras must not merge)", store.count())
	}
}

func TestNestedSequenceIsolation(t *testing.T) {
	recorder, store := testRecorder()
	key := testEntity("15")
	actor := actorRef()

	outer, endOuter := BeginSequence(context.Background())
	defer endOuter()

	created := record(t, recorder, outer, RecordRequest{
		Action:  models.ActionCreate,
		Current: snapshot(key, models.StateBlob{"v": "a"}),
		ActorID: actor,
	})

	// The inner sequence must not see the outer's create, so its update
	// persists independently.
	inner, endInner := BeginSequence(outer)
	innerRec := record(t, recorder, inner, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, models.StateBlob{"v": "b"}),
		Previous: &Snapshot{Entity: key, State: models.StateBlob{"v": "a"}},
		ActorID:  actor,
	})
	endInner()

	if innerRec.ID == created.ID {
		t.Fatalf("inner sequence merged into outer record")
	}

	// Back in the outer scope, squashing still targets the outer create.
	final := record(t, recorder, outer, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, models.StateBlob{"v": "c"}),
		Previous: &Snapshot{Entity: key, State: models.StateBlob{"v": "a"}},
		ActorID:  actor,
	})

	if final.ID != created.ID {
		t.Errorf("outer squash produced %v, want outer create %v", final.ID, created.ID)
	}
	if store.count() != 2 {
		t.Fatalf("store has %d records, want 2 (outer create + inner update)", store.count())
	}
	stored, err := store.GetRecord(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if !stored.CurrentState.Equal(models.StateBlob{"v": "c"}) {
		t.Errorf("outer record state = %v, want {v: c}", stored.CurrentState)
	}
}

func TestUpdateAfterDeleteIsConsistencyError(t *testing.T) {
	recorder, _ := testRecorder()
	key := testEntity("16")
	actor := actorRef()

	ctx, end := BeginSequence(context.Background())
	defer end()

	record(t, recorder, ctx, RecordRequest{
		Action:  models.ActionDelete,
		Current: snapshot(key, models.StateBlob{"v": "a"}),
		ActorID: actor,
	})

	_, err := recorder.Record(ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, models.StateBlob{"v": "b"}),
		Previous: &Snapshot{Entity: key, State: models.StateBlob{"v": "a"}},
		ActorID:  actor,
	})

	var consistencyErr *ConsistencyError
	if !errors.As(err, &consistencyErr) {
		t.Fatalf("update after delete returned %v, want ConsistencyError", err)
	}
}

func TestMergePastCreateIsConsistencyError(t *testing.T) {
	recorder, _ := testRecorder()
	key := testEntity("19")
	actor := actorRef()

	ctx, end := BeginSequence(context.Background())
	defer end()

	// An update recorded before the create is a lifecycle violation the
	// walk must refuse to merge past: once the accumulator is the CREATE,
	// no older record may continue the squash.
	record(t, recorder, ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, models.StateBlob{"v": "b"}),
		Previous: &Snapshot{Entity: key, State: models.StateBlob{"v": "a"}},
		ActorID:  actor,
	})
	record(t, recorder, ctx, RecordRequest{
		Action:  models.ActionCreate,
		Current: snapshot(key, models.StateBlob{"v": "c"}),
		ActorID: actor,
	})

	_, err := recorder.Record(ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, models.StateBlob{"v": "d"}),
		Previous: &Snapshot{Entity: key, State: models.StateBlob{"v": "c"}},
		ActorID:  actor,
	})

	var consistencyErr *ConsistencyError
	if !errors.As(err, &consistencyErr) {
		t.Fatalf("merge past a create returned %v, want ConsistencyError", err)
	}
}

func TestNoSequenceBypassesSquashing(t *testing.T) {
	recorder, store := testRecorder()
	key := testEntity("17")
	actor := actorRef()
	ctx := context.Background()

	record(t, recorder, ctx, RecordRequest{
		Action:  models.ActionCreate,
		Current: snapshot(key, models.StateBlob{"v": "a"}),
		ActorID: actor,
	})
	record(t, recorder, ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(key, models.StateBlob{"v": "b"}),
		Previous: &Snapshot{Entity: key, State: models.StateBlob{"v": "a"}},
		ActorID:  actor,
	})

	if store.count() != 2 {
		t.Fatalf("store has %d records, want 2 in degraded mode", store.count())
	}
}

func TestSquashOnlyWithinSameEntity(t *testing.T) {
	recorder, store := testRecorder()
	actor := actorRef()

	ctx, end := BeginSequence(context.Background())
	defer end()

	record(t, recorder, ctx, RecordRequest{
		Action:  models.ActionCreate,
		Current: snapshot(testEntity("20"), models.StateBlob{"v": "a"}),
		ActorID: actor,
	})
	record(t, recorder, ctx, RecordRequest{
		Action:   models.ActionUpdate,
		Current:  snapshot(testEntity("21"), models.StateBlob{"v": "b"}),
		Previous: &Snapshot{Entity: testEntity("21"), State: models.StateBlob{"v": "a"}},
		ActorID:  actor,
	})

	if store.count() != 2 {
		t.Fatalf("store has %d records, want 2 (different instances never merge)", store.count())
	}
	for _, rec := range store.all() {
		if rec.Action == models.ActionCreate && !rec.CurrentState.Equal(models.StateBlob{"v": "a"}) {
			t.Errorf("create of entity 20 mutated to %v", rec.CurrentState)
		}
	}
}
