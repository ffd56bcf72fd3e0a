package audit

import (
	"context"
	"time"

	"github.com/chronicle-audit/backend/internal/events"
	"github.com/chronicle-audit/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snapshot pairs an entity key with a serialized state document.
type Snapshot struct {
	Entity models.EntityKey
	State  models.StateBlob
}

// RecordRequest describes one state change to be audited.
type RecordRequest struct {
	Action       models.Action
	Current      Snapshot
	Previous     *Snapshot
	ActorID      *uuid.UUID
	ExtraRefs    []string
	ManualExtras []models.ExtraPair
}

// Recorder validates change requests, filters no-ops, and hands candidates to
// the squash engine when a sequence is active. It is the write surface of the
// audit trail.
type Recorder struct {
	store     Store
	engine    *Engine
	publisher events.Publisher
	log       *zap.Logger
}

// NewRecorder builds a Recorder. publisher may be nil when no event fan-out
// is wanted.
func NewRecorder(store Store, publisher events.Publisher, log *zap.Logger) *Recorder {
	return &Recorder{
		store:     store,
		engine:    NewEngine(store, log),
		publisher: publisher,
		log:       log,
	}
}

// Record audits one state change. It returns the stored record, or nil when
// the change was discarded as a no-op or squashed away entirely.
func (r *Recorder) Record(ctx context.Context, req RecordRequest) (*models.ChangeRecord, error) {
	candidate, err := r.buildCandidate(req)
	if err != nil {
		return nil, err
	}

	// A logged "change" that changed nothing observable is discarded.
	if candidate.PreviousState != nil && candidate.CurrentState.Equal(candidate.PreviousState) {
		return nil, nil
	}

	seq := sequenceFrom(ctx)
	if seq == nil {
		return r.persistStandalone(ctx, candidate)
	}

	// Reconciliation reads and rewrites the entity's id list; it must not
	// interleave with another reconcile in the same unit of work.
	seq.mu.Lock()
	defer seq.mu.Unlock()
	if seq.ended {
		return r.persistStandalone(ctx, candidate)
	}

	key := candidate.Entity.String()
	resultant, updatedIDs, err := r.engine.Reconcile(ctx, candidate, seq.priorIDs(key))
	if err != nil {
		return nil, err
	}

	if resultant != nil {
		if err := r.attachExtras(ctx, resultant); err != nil {
			return nil, err
		}
		created := true
		for _, id := range updatedIDs {
			if id == resultant.ID {
				created = false
				break
			}
		}
		if created {
			updatedIDs = append(updatedIDs, resultant.ID)
			r.publish(ctx, events.EventRecordStored, resultant)
		} else {
			r.publish(ctx, events.EventRecordSquashed, resultant)
		}
	} else {
		r.publish(ctx, events.EventRecordDiscarded, candidate)
	}
	seq.ids[key] = updatedIDs

	return resultant, nil
}

// AttachExtra manually attaches a (field, value) pair to a stored record,
// for references that cannot be resolved by attribute-path walking. It is
// idempotent: an identical pair attaches once.
func (r *Recorder) AttachExtra(ctx context.Context, recordID uuid.UUID, field, value string) (*models.Extra, error) {
	if _, err := r.store.GetRecord(ctx, recordID); err != nil {
		return nil, err
	}
	return r.store.EnsureExtra(ctx, recordID, field, value)
}

// persistStandalone stores a candidate outside any sequence: no squashing,
// no history tracking.
func (r *Recorder) persistStandalone(ctx context.Context, candidate *models.ChangeRecord) (*models.ChangeRecord, error) {
	if err := r.store.CreateRecord(ctx, candidate); err != nil {
		return nil, err
	}
	if err := r.attachExtras(ctx, candidate); err != nil {
		return nil, err
	}
	r.publish(ctx, events.EventRecordStored, candidate)
	return candidate, nil
}

func (r *Recorder) buildCandidate(req RecordRequest) (*models.ChangeRecord, error) {
	if !req.Action.Valid() {
		return nil, validationf("action must be one of %s, %s, %s",
			models.ActionCreate, models.ActionUpdate, models.ActionDelete)
	}

	candidate := &models.ChangeRecord{
		Action:       req.Action,
		Entity:       req.Current.Entity,
		Timestamp:    time.Now().UTC(),
		CurrentState: req.Current.State,
		ActorID:      req.ActorID,
	}

	if req.Previous != nil {
		if !req.Previous.Entity.SameIdentity(req.Current.Entity) {
			return nil, validationf("previous snapshot %s/%s does not match current %s/%s",
				req.Previous.Entity.Namespace, req.Previous.Entity.EntityType,
				req.Current.Entity.Namespace, req.Current.Entity.EntityType)
		}
		candidate.PreviousState = req.Previous.State
	}

	extras, err := NormalizeExtras(req.Current.State, req.ExtraRefs, req.ManualExtras)
	if err != nil {
		return nil, err
	}
	candidate.Extras = extras

	return candidate, nil
}

func (r *Recorder) attachExtras(ctx context.Context, rec *models.ChangeRecord) error {
	for _, pair := range rec.Extras {
		if _, err := r.store.EnsureExtra(ctx, rec.ID, pair.Field, pair.Value); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) publish(ctx context.Context, eventType string, rec *models.ChangeRecord) {
	if r.publisher == nil {
		return
	}
	payload := map[string]any{
		"record_id":   rec.ID.String(),
		"action":      rec.Action.String(),
		"namespace":   rec.Entity.Namespace,
		"entity_type": rec.Entity.EntityType,
		"instance_id": rec.Entity.InstanceID,
	}
	if err := r.publisher.Publish(ctx, events.StreamAudit, events.Event{Type: eventType, Payload: payload}); err != nil {
		r.log.Warn("failed to publish audit event", zap.String("type", eventType), zap.Error(err))
	}
}
