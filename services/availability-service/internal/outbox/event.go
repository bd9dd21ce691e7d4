package outbox

// Event is the domain event envelope written to the outbox table. The Kafka
// topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types raised by ledger mutations.
const (
	EventAppointmentBooked  = "availability.appointment.booked.v1"
	EventAppointmentRemoved = "availability.appointment.removed.v1"
)
