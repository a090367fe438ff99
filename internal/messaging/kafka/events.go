package kafka

// Топики Kafka.
const (
	// TopicOrderChanges — события изменения строк заказов и позиций.
	TopicOrderChanges = "kinasal.order.changes"
	// TopicDeadLetterQueue — сообщения, которые не удалось разобрать/обработать.
	TopicDeadLetterQueue = "kinasal.dlq"
)

// Заголовки сообщений DLQ.
const (
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)
