package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types double as Kafka topic names.
const (
	TypeAppointmentBooked      = "scheduling.appointment.booked.v1"
	TypeAppointmentRescheduled = "scheduling.appointment.rescheduled.v1"
	TypeAppointmentStatus      = "scheduling.appointment.status_changed.v1"
	TypeAppointmentUpdated     = "scheduling.appointment.updated.v1"
	TypeAvailabilityChanged    = "scheduling.availability.changed.v1"
)

const (
	AggregateAppointment = "appointment"
	AggregateTemplate    = "schedule_template"
	AggregateBlock       = "schedule_block"
)

// Event is the envelope written to the outbox in the same transaction as the
// change it describes.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type envelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func NewEvent(eventType, aggregateType, aggregateID string, data any, now time.Time) (Event, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(envelope{
		EventID:    id,
		EventType:  eventType,
		OccurredAt: now.UTC(),
		Data:       data,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// Record is an outbox row waiting to be relayed.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}
