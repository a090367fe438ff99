package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// Producer публикует события изменения заказов в Kafka.
// Реализует domain.ChangePublisher.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *log.Entry
}

// NewProducer создает Kafka producer для топика событий изменения заказов.
func NewProducer(brokers []string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1 // требование идемпотентного producer-а

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		topic:    TopicOrderChanges,
		logger:   log.WithField("component", "kafka-producer"),
	}, nil
}

// Publish сериализует событие и отправляет его в топик изменений.
// Ключ — имя таблицы: события одной таблицы упорядочены внутри партиции.
func (p *Producer) Publish(ctx context.Context, event domain.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.Table),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic": p.topic,
			"table": event.Table,
		}).Error("failed to send change event")
		return fmt.Errorf("send change event: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     p.topic,
		"table":     event.Table,
		"kind":      event.Kind,
		"partition": partition,
		"offset":    offset,
	}).Debug("change event sent")

	return nil
}

// PublishRaw отправляет произвольное сообщение в указанный топик. Используется
// для DLQ и для переотправки из DLQ обратно в рабочий топик.
func (p *Producer) PublishRaw(topic string, key string, value []byte, headers []sarama.RecordHeader) error {
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: time.Now(),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send raw message: %w", err)
	}
	return nil
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

var _ domain.ChangePublisher = (*Producer)(nil)
