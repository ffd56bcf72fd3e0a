package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of state change a record captures.
type Action int16

const (
	ActionCreate Action = 1
	ActionUpdate Action = 2
	ActionDelete Action = 3
)

var actionNames = map[Action]string{
	ActionCreate: "create",
	ActionUpdate: "update",
	ActionDelete: "delete",
}

func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int16(a))
}

// ParseAction maps an API action name to its Action value.
func ParseAction(s string) (Action, bool) {
	for a, name := range actionNames {
		if name == s {
			return a, true
		}
	}
	return 0, false
}

// EntityKey identifies one tracked object across its audit history.
type EntityKey struct {
	Namespace  string `json:"namespace"`
	EntityType string `json:"entity_type"`
	InstanceID string `json:"instance_id"`
}

// String renders the key in its map-keying form.
func (k EntityKey) String() string {
	return k.Namespace + "-" + k.EntityType + "-" + k.InstanceID
}

// SameIdentity reports whether two keys refer to the same kind of entity,
// ignoring the instance id.
func (k EntityKey) SameIdentity(other EntityKey) bool {
	return k.Namespace == other.Namespace && k.EntityType == other.EntityType
}

// StateBlob is a field-name to value document describing an entity snapshot.
// Values may nest further maps for related objects.
type StateBlob map[string]any

// Encode renders the blob as canonical JSON. encoding/json sorts map keys,
// so identical documents always produce identical bytes.
func (b StateBlob) Encode() ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

// DecodeState parses a stored blob back into a document. Empty input yields nil.
func DecodeState(data []byte) (StateBlob, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var b StateBlob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode state blob: %w", err)
	}
	return b, nil
}

// Equal compares two blobs by their canonical encoding. A nil blob only
// equals another nil blob.
func (b StateBlob) Equal(other StateBlob) bool {
	if (b == nil) != (other == nil) {
		return false
	}
	if b == nil {
		return true
	}
	left, err := b.Encode()
	if err != nil {
		return false
	}
	right, err := other.Encode()
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

// Clone returns a copy sharing no top-level storage with the original.
func (b StateBlob) Clone() StateBlob {
	if b == nil {
		return nil
	}
	out := make(StateBlob, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Overlay writes every field of src into b, last writer wins. Fields of b
// untouched by src are kept.
func (b StateBlob) Overlay(src StateBlob) {
	for k, v := range src {
		b[k] = v
	}
}

// ExtraPair is one normalized (field, value) tag attached to a record.
type ExtraPair struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ChangeRecord is one audit entry: a single observed transition of an entity.
type ChangeRecord struct {
	ID            uuid.UUID  `json:"id"`
	Action        Action     `json:"action"`
	Entity        EntityKey  `json:"entity"`
	Timestamp     time.Time  `json:"timestamp"`
	PreviousState StateBlob  `json:"previous_state,omitempty"`
	CurrentState  StateBlob  `json:"current_state"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`

	// Extras holds the record's normalized tag pairs. Populated on
	// candidates before reconciliation and on records loaded from storage.
	Extras []ExtraPair `json:"extras,omitempty"`
}

// Persisted reports whether the record has been assigned a storage id.
func (r *ChangeRecord) Persisted() bool {
	return r.ID != uuid.Nil
}

// SameActor reports whether two records are attributed to exactly the same
// actor, counting two absent actors as a match.
func (r *ChangeRecord) SameActor(other *ChangeRecord) bool {
	if (r.ActorID == nil) != (other.ActorID == nil) {
		return false
	}
	if r.ActorID == nil {
		return true
	}
	return *r.ActorID == *other.ActorID
}

// Extra is one stored extra-attribute row.
type Extra struct {
	ID         uuid.UUID `json:"id"`
	RecordID   uuid.UUID `json:"record_id"`
	FieldName  string    `json:"field_name"`
	FieldValue string    `json:"field_value"`
}
