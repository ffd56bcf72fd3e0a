package audit

import (
	"context"

	"github.com/chronicle-audit/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine reconciles candidate records against the prior record ids tracked
// for the same entity in the current unit of work, squashing redundant
// consecutive changes into a single representative record.
type Engine struct {
	store Store
	log   *zap.Logger
}

func NewEngine(store Store, log *zap.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Reconcile decides what the candidate becomes given the entity's prior
// sequence. It returns the record that ended up stored (nil when the change
// squashed away entirely) and the updated id list for the entity.
//
// The candidate must already have passed validation and no-op filtering.
func (e *Engine) Reconcile(ctx context.Context, candidate *models.ChangeRecord, priorIDs []uuid.UUID) (*models.ChangeRecord, []uuid.UUID, error) {
	resultant := candidate
	toDelete := make(map[uuid.UUID]bool)

	priors, err := e.store.RecordsByIDs(ctx, priorIDs)
	if err != nil {
		return nil, nil, err
	}

	if len(priors) > 0 {
		switch candidate.Action {
		case models.ActionDelete:
			// A DELETE nullifies the prior sequence, but only the
			// contiguous run attributed to the same actor. Older records
			// by other actors stay meaningful history.
			for _, prior := range priors {
				if !prior.SameActor(candidate) {
					break
				}
				toDelete[prior.ID] = true
			}

		case models.ActionUpdate:
			// Merge the candidate's changes backward onto prior records,
			// newest first. A CREATE followed by three UPDATEs squashes
			// down to a single CREATE.
			current := candidate
			for _, prior := range priors {
				if !prior.SameActor(candidate) {
					break
				}
				if !pairSetsEqual(prior.Extras, candidate.Extras) {
					break
				}
				if prior.Action == models.ActionDelete || current.Action == models.ActionCreate {
					return nil, nil, consistencyf(
						"entity %s: cannot merge %s onto prior record %s (%s)",
						candidate.Entity, current.Action, prior.ID, prior.Action)
				}

				merged := prior.CurrentState.Clone()
				merged.Overlay(current.CurrentState)
				prior.CurrentState = merged

				if current.Persisted() {
					toDelete[current.ID] = true
				}
				current = prior
				resultant = prior
			}

			// Merged updates may cancel out, such as flipping a bool
			// twice. A DELETE never cancels: it must survive the prune
			// of its same-actor priors.
			if resultant.CurrentState.Equal(resultant.PreviousState) {
				if resultant.Persisted() {
					toDelete[resultant.ID] = true
				}
				resultant = nil
			}
		}
	}

	// Write the surviving record before deleting what it superseded, so a
	// crash in between leaves extra history rather than losing it.
	if resultant != nil {
		if resultant.Persisted() {
			if err := e.store.UpdateRecordState(ctx, resultant); err != nil {
				return nil, nil, err
			}
		} else {
			if err := e.store.CreateRecord(ctx, resultant); err != nil {
				return nil, nil, err
			}
		}
	}

	updated := priorIDs
	if len(toDelete) > 0 {
		ids := make([]uuid.UUID, 0, len(toDelete))
		for id := range toDelete {
			ids = append(ids, id)
		}
		if err := e.store.DeleteRecords(ctx, ids); err != nil {
			return nil, nil, err
		}
		e.log.Debug("squashed records deleted",
			zap.String("entity", candidate.Entity.String()),
			zap.Int("count", len(ids)))

		updated = updated[:0:0]
		for _, id := range priorIDs {
			if !toDelete[id] {
				updated = append(updated, id)
			}
		}
	}

	return resultant, updated, nil
}
