package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chronicle-audit/backend/internal/audit"
	"github.com/chronicle-audit/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordRepo is the Postgres persistence gateway for change records and
// their extras. It implements audit.Store.
type RecordRepo struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) *RecordRepo {
	return &RecordRepo{pool: pool}
}

func (r *RecordRepo) CreateRecord(ctx context.Context, rec *models.ChangeRecord) error {
	prevBlob, err := rec.PreviousState.Encode()
	if err != nil {
		return fmt.Errorf("encode previous state: %w", err)
	}
	currBlob, err := rec.CurrentState.Encode()
	if err != nil {
		return fmt.Errorf("encode current state: %w", err)
	}

	return r.pool.QueryRow(ctx, `
		INSERT INTO change_records
			(action, namespace, entity_type, instance_id, timestamp, previous_blob, current_blob, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, rec.Action, rec.Entity.Namespace, rec.Entity.EntityType, rec.Entity.InstanceID,
		rec.Timestamp, prevBlob, currBlob, rec.ActorID).Scan(&rec.ID)
}

func (r *RecordRepo) UpdateRecordState(ctx context.Context, rec *models.ChangeRecord) error {
	prevBlob, err := rec.PreviousState.Encode()
	if err != nil {
		return fmt.Errorf("encode previous state: %w", err)
	}
	currBlob, err := rec.CurrentState.Encode()
	if err != nil {
		return fmt.Errorf("encode current state: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE change_records SET previous_blob = $2, current_blob = $3 WHERE id = $1
	`, rec.ID, prevBlob, currBlob)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &audit.NotFoundError{Kind: "record", ID: rec.ID.String()}
	}
	return nil
}

func (r *RecordRepo) DeleteRecords(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	// Extras cascade via FK.
	_, err := r.pool.Exec(ctx, `DELETE FROM change_records WHERE id = ANY($1)`, ids)
	return err
}

func (r *RecordRepo) GetRecord(ctx context.Context, id uuid.UUID) (*models.ChangeRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, action, namespace, entity_type, instance_id, timestamp, previous_blob, current_blob, actor_id
		FROM change_records WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &audit.NotFoundError{Kind: "record", ID: id.String()}
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadExtras(ctx, []*models.ChangeRecord{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *RecordRepo) RecordsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.ChangeRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, action, namespace, entity_type, instance_id, timestamp, previous_blob, current_blob, actor_id
		FROM change_records WHERE id = ANY($1)
		ORDER BY timestamp DESC, seq DESC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadExtras(ctx, recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListByEntity returns an entity's stored history newest-first.
func (r *RecordRepo) ListByEntity(ctx context.Context, key models.EntityKey, limit, offset int) ([]*models.ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, action, namespace, entity_type, instance_id, timestamp, previous_blob, current_blob, actor_id
		FROM change_records
		WHERE namespace = $1 AND entity_type = $2 AND instance_id = $3
		ORDER BY timestamp DESC, seq DESC LIMIT $4 OFFSET $5
	`, key.Namespace, key.EntityType, key.InstanceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListByActor returns records attributed to one actor, newest-first.
func (r *RecordRepo) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, action, namespace, entity_type, instance_id, timestamp, previous_blob, current_blob, actor_id
		FROM change_records WHERE actor_id = $1
		ORDER BY timestamp DESC, seq DESC LIMIT $2 OFFSET $3
	`, actorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *RecordRepo) EnsureExtra(ctx context.Context, recordID uuid.UUID, field, value string) (*models.Extra, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO record_extras (record_id, field_name, field_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_id, field_name, field_value) DO NOTHING
	`, recordID, field, value)
	if err != nil {
		return nil, err
	}

	extra := &models.Extra{RecordID: recordID, FieldName: field, FieldValue: value}
	err = r.pool.QueryRow(ctx, `
		SELECT id FROM record_extras
		WHERE record_id = $1 AND field_name = $2 AND field_value = $3
	`, recordID, field, value).Scan(&extra.ID)
	if err != nil {
		return nil, err
	}
	return extra, nil
}

// ExtrasByRecord returns the stored extra rows of one record.
func (r *RecordRepo) ExtrasByRecord(ctx context.Context, recordID uuid.UUID) ([]models.Extra, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, record_id, field_name, field_value
		FROM record_extras WHERE record_id = $1
		ORDER BY field_name, field_value
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var extras []models.Extra
	for rows.Next() {
		var e models.Extra
		if err := rows.Scan(&e.ID, &e.RecordID, &e.FieldName, &e.FieldValue); err != nil {
			return nil, err
		}
		extras = append(extras, e)
	}
	return extras, rows.Err()
}

// DeleteOlderThan prunes records with a timestamp before cutoff, returning
// the number removed.
func (r *RecordRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM change_records WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ChangeRecord, error) {
	var (
		rec      models.ChangeRecord
		prevBlob []byte
		currBlob []byte
	)
	err := row.Scan(&rec.ID, &rec.Action, &rec.Entity.Namespace, &rec.Entity.EntityType,
		&rec.Entity.InstanceID, &rec.Timestamp, &prevBlob, &currBlob, &rec.ActorID)
	if err != nil {
		return nil, err
	}

	if rec.PreviousState, err = models.DecodeState(prevBlob); err != nil {
		return nil, err
	}
	if rec.CurrentState, err = models.DecodeState(currBlob); err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]*models.ChangeRecord, error) {
	var recs []*models.ChangeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *RecordRepo) loadExtras(ctx context.Context, recs []*models.ChangeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(recs))
	byID := make(map[uuid.UUID]*models.ChangeRecord, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
		byID[rec.ID] = rec
	}

	rows, err := r.pool.Query(ctx, `
		SELECT record_id, field_name, field_value
		FROM record_extras WHERE record_id = ANY($1)
		ORDER BY field_name, field_value
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			recordID uuid.UUID
			pair     models.ExtraPair
		)
		if err := rows.Scan(&recordID, &pair.Field, &pair.Value); err != nil {
			return err
		}
		if rec, ok := byID[recordID]; ok {
			rec.Extras = append(rec.Extras, pair)
		}
	}
	return rows.Err()
}
