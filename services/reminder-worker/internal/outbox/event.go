package outbox

// Event types emitted by the reminder worker. The Kafka topic name equals the
// event type.
const (
	EventReminderDue = "scheduling.reminder.due.v1"
	EventReminderDLQ = "scheduling.reminder.dlq.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
