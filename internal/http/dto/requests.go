package dto

// TokenRequest exchanges a configured service key for an actor JWT.
type TokenRequest struct {
	ServiceKey string `json:"service_key"`
	ActorID    string `json:"actor_id,omitempty"`
	Role       string `json:"role,omitempty"`
}

// SnapshotPayload carries an entity identity plus its serialized state.
type SnapshotPayload struct {
	Namespace  string         `json:"namespace"`
	EntityType string         `json:"entity_type"`
	InstanceID string         `json:"instance_id"`
	State      map[string]any `json:"state"`
}

// ExtraPairPayload is one manual (field, value) extra.
type ExtraPairPayload struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// RecordPayload describes one change to audit.
type RecordPayload struct {
	Action       string             `json:"action"`
	Current      SnapshotPayload    `json:"current"`
	Previous     *SnapshotPayload   `json:"previous,omitempty"`
	ExtraRefs    []string           `json:"extra_refs,omitempty"`
	ManualExtras []ExtraPairPayload `json:"manual_extras,omitempty"`
}

// BatchRequest records several changes inside one squash sequence.
type BatchRequest struct {
	Records []RecordPayload `json:"records"`
}

// AttachExtraRequest manually attaches an extra to a stored record.
type AttachExtraRequest struct {
	FieldName  string `json:"field_name"`
	FieldValue string `json:"field_value"`
}
