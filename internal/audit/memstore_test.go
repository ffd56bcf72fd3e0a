package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/chronicle-audit/backend/internal/models"
	"github.com/google/uuid"
)

// memStore is an in-memory Store used to exercise the engine without
// Postgres. Reads hand out copies so unsaved mutations never leak back.
type memStore struct {
	mu      sync.Mutex
	nextSeq int
	seqs    map[uuid.UUID]int
	records map[uuid.UUID]*models.ChangeRecord
	extras  map[uuid.UUID][]models.Extra
}

func newMemStore() *memStore {
	return &memStore{
		seqs:    make(map[uuid.UUID]int),
		records: make(map[uuid.UUID]*models.ChangeRecord),
		extras:  make(map[uuid.UUID][]models.Extra),
	}
}

func cloneRecord(rec *models.ChangeRecord) *models.ChangeRecord {
	out := *rec
	out.PreviousState = rec.PreviousState.Clone()
	out.CurrentState = rec.CurrentState.Clone()
	out.Extras = append([]models.ExtraPair(nil), rec.Extras...)
	return &out
}

func (s *memStore) CreateRecord(_ context.Context, rec *models.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = uuid.New()
	s.nextSeq++
	s.seqs[rec.ID] = s.nextSeq
	// Mirror RecordRepo: extras materialize only through EnsureExtra.
	stored := cloneRecord(rec)
	stored.Extras = nil
	s.records[rec.ID] = stored
	return nil
}

func (s *memStore) UpdateRecordState(_ context.Context, rec *models.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[rec.ID]
	if !ok {
		return &NotFoundError{Kind: "record", ID: rec.ID.String()}
	}
	stored.PreviousState = rec.PreviousState.Clone()
	stored.CurrentState = rec.CurrentState.Clone()
	return nil
}

func (s *memStore) DeleteRecords(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
		delete(s.extras, id)
	}
	return nil
}

func (s *memStore) GetRecord(_ context.Context, id uuid.UUID) (*models.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, &NotFoundError{Kind: "record", ID: id.String()}
	}
	return cloneRecord(rec), nil
}

func (s *memStore) RecordsByIDs(_ context.Context, ids []uuid.UUID) ([]*models.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []*models.ChangeRecord
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			recs = append(recs, cloneRecord(rec))
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return s.seqs[recs[i].ID] > s.seqs[recs[j].ID]
	})
	return recs, nil
}

func (s *memStore) EnsureExtra(_ context.Context, recordID uuid.UUID, field, value string) (*models.Extra, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.extras[recordID] {
		if e.FieldName == field && e.FieldValue == value {
			return &e, nil
		}
	}
	extra := models.Extra{ID: uuid.New(), RecordID: recordID, FieldName: field, FieldValue: value}
	s.extras[recordID] = append(s.extras[recordID], extra)
	if rec, ok := s.records[recordID]; ok {
		rec.Extras = append(rec.Extras, models.ExtraPair{Field: field, Value: value})
	}
	return &extra, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) all() []*models.ChangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []*models.ChangeRecord
	for _, rec := range s.records {
		recs = append(recs, cloneRecord(rec))
	}
	sort.Slice(recs, func(i, j int) bool {
		return s.seqs[recs[i].ID] < s.seqs[recs[j].ID]
	})
	return recs
}
