package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type sequenceCtxKey struct{}

// Sequence tracks which record ids belong to which entity within one logical
// unit of work. It is never shared across units of work: every BeginSequence
// call installs a fresh instance, and nested sequences shadow the enclosing
// one without reading from or leaking into it.
type Sequence struct {
	mu    sync.Mutex
	ended bool
	ids   map[string][]uuid.UUID
}

// BeginSequence starts a unit of work for squash tracking. The returned
// context carries a fresh, empty sequence; the returned func ends it. The end
// func must run even on failure paths, so callers defer it immediately:
//
//	ctx, end := audit.BeginSequence(ctx)
//	defer end()
//
// Code holding the enclosing context is unaffected: the parent's sequence (if
// any) stays bound to the parent and is restored simply by using it again.
func BeginSequence(parent context.Context) (context.Context, func()) {
	seq := &Sequence{ids: make(map[string][]uuid.UUID)}
	end := func() {
		seq.mu.Lock()
		seq.ended = true
		seq.ids = nil
		seq.mu.Unlock()
	}
	return context.WithValue(parent, sequenceCtxKey{}, seq), end
}

// sequenceFrom returns the active sequence bound to ctx, or nil when none is
// active (or the bound one has ended). A nil result means squashing is
// bypassed and every valid candidate persists independently.
func sequenceFrom(ctx context.Context) *Sequence {
	seq, _ := ctx.Value(sequenceCtxKey{}).(*Sequence)
	if seq == nil {
		return nil
	}
	seq.mu.Lock()
	ended := seq.ended
	seq.mu.Unlock()
	if ended {
		return nil
	}
	return seq
}

// priorIDs returns a copy of the id list recorded for the entity key.
// Callers must hold seq.mu.
func (s *Sequence) priorIDs(key string) []uuid.UUID {
	ids := s.ids[key]
	out := make([]uuid.UUID, len(ids))
	copy(out, ids)
	return out
}
