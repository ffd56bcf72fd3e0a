package audit

import (
	"context"

	"github.com/chronicle-audit/backend/internal/models"
	"github.com/google/uuid"
)

// Store is the persistence gateway the engine writes through. Each call is a
// single atomic step; the engine sequences them so that a crash between steps
// degrades to extra un-squashed history, never lost history.
type Store interface {
	// CreateRecord inserts a new record and assigns its id and timestamp.
	CreateRecord(ctx context.Context, rec *models.ChangeRecord) error

	// UpdateRecordState rewrites the stored state blobs of an existing record.
	UpdateRecordState(ctx context.Context, rec *models.ChangeRecord) error

	// DeleteRecords removes the given records and their extras. Missing ids
	// are ignored.
	DeleteRecords(ctx context.Context, ids []uuid.UUID) error

	// GetRecord fetches one record with its extras, or a NotFoundError.
	GetRecord(ctx context.Context, id uuid.UUID) (*models.ChangeRecord, error)

	// RecordsByIDs fetches the records that still exist among ids, extras
	// populated, ordered newest-first by timestamp.
	RecordsByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.ChangeRecord, error)

	// EnsureExtra attaches a (field, value) pair to a record, returning the
	// existing row when an identical one is already attached.
	EnsureExtra(ctx context.Context, recordID uuid.UUID, field, value string) (*models.Extra, error)
}
