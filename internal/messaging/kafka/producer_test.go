package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

func newTestProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mockProducer := mocks.NewSyncProducer(t, nil)
	return &Producer{
		producer: mockProducer,
		topic:    TopicOrderChanges,
		logger:   log.WithField("component", "kafka-producer-test"),
	}, mockProducer
}

func TestProducer_Publish(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	mockProducer.ExpectSendMessageAndSucceed()

	err := producer.Publish(context.Background(), domain.ChangeEvent{
		Kind:  domain.ChangeKindInsert,
		Table: domain.ChangeTableOrders,
		At:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Publish_Error(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.Publish(context.Background(), domain.ChangeEvent{
		Kind:  domain.ChangeKindUpdate,
		Table: domain.ChangeTableOrders,
	})
	if err == nil {
		t.Fatal("expected error from broker failure")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Publish_ContextCancelled(t *testing.T) {
	producer, mockProducer := newTestProducer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := producer.Publish(ctx, domain.ChangeEvent{Table: domain.ChangeTableOrders}); err == nil {
		t.Fatal("expected context error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishRaw(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	mockProducer.ExpectSendMessageAndSucceed()

	headers := []sarama.RecordHeader{{Key: []byte(HeaderOriginalTopic), Value: []byte(TopicOrderChanges)}}
	if err := producer.PublishRaw(TopicDeadLetterQueue, "orders", []byte("{broken"), headers); err != nil {
		t.Fatalf("publish raw: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
