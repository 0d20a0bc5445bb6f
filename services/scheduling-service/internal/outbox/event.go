package outbox

// Event types emitted by the scheduling engine. The Kafka topic name equals
// the event type (one event per topic).
const (
	EventAppointmentBooked    = "scheduling.appointment.booked.v1"
	EventAppointmentUpdated   = "scheduling.appointment.updated.v1"
	EventAppointmentCancelled = "scheduling.appointment.cancelled.v1"
	EventAppointmentCompleted = "scheduling.appointment.completed.v1"
	EventAppointmentNoShow    = "scheduling.appointment.no_show.v1"
	EventReminderRequested    = "scheduling.reminder.requested.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
