package outbox

// Event is the domain event envelope written to the outbox table in the same
// transaction as the state change it describes. The Kafka topic name equals
// EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the scheduling core. The notification collaborator
// consumes these; this service never delivers notifications itself.
const (
	EventAppointmentCreated       = "scheduling.appointment.created.v1"
	EventAppointmentStatusChanged = "scheduling.appointment.status_changed.v1"
)
