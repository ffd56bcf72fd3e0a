package events

import "context"

// StreamAudit is the pub/sub channel carrying audit record events.
const StreamAudit = "events:audit"

// Event types
const (
	EventRecordStored    = "record_stored"
	EventRecordSquashed  = "record_squashed"
	EventRecordDiscarded = "record_discarded"
	EventRecordsPruned   = "records_pruned"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
