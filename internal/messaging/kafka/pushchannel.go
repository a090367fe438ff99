package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// Channel — push-канал поверх Kafka consumer group. Каждая подписка — своя
// группа-сессия; обрыв сессии переводит подписчика в деградацию, переподписка
// создаёт новую сессию. Реализует domain.PushChannel.
type Channel struct {
	brokers []string
	groupID string
	topic   string
	dlq     *Producer
	logger  *log.Entry
}

// ChannelOption настраивает Channel.
type ChannelOption func(*Channel)

// WithDLQProducer задаёт producer для отправки неразборных сообщений в DLQ.
func WithDLQProducer(producer *Producer) ChannelOption {
	return func(c *Channel) {
		c.dlq = producer
	}
}

// WithLogger задаёт logger канала.
func WithLogger(logger *log.Entry) ChannelOption {
	return func(c *Channel) {
		c.logger = logger
	}
}

// NewChannel создаёт push-канал на топике событий изменения заказов.
func NewChannel(brokers []string, groupID string, options ...ChannelOption) *Channel {
	ch := &Channel{
		brokers: brokers,
		groupID: groupID,
		topic:   TopicOrderChanges,
	}
	for _, option := range options {
		option(ch)
	}
	if ch.logger == nil {
		ch.logger = log.WithField("component", "kafka-push-channel")
	}
	return ch
}

// Subscribe открывает consumer group сессию и доставляет события обработчику.
func (c *Channel) Subscribe(ctx context.Context, tables []string, handler domain.ChangeHandler) (domain.Subscription, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	// Подписчик сверяет состояние полным перечитыванием, история топика ему не нужна.
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.brokers, c.groupID, config)
	if err != nil {
		return nil, err
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	sub := &groupSubscription{
		group:  group,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	tableSet := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		tableSet[table] = struct{}{}
	}
	claims := &claimHandler{
		tables:  tableSet,
		handler: handler,
		dlq:     c.dlq,
		logger:  c.logger,
	}

	go func() {
		for {
			// Consume вызывается в цикле: при rebalance он завершается без ошибки.
			if err := group.Consume(consumeCtx, []string{c.topic}, claims); err != nil {
				sub.fail(err)
				return
			}
			if consumeCtx.Err() != nil {
				sub.fail(consumeCtx.Err())
				return
			}
		}
	}()

	go func() {
		for err := range group.Errors() {
			c.logger.WithError(err).Warn("consumer group error")
			sub.fail(err)
		}
	}()

	return sub, nil
}

type groupSubscription struct {
	group  sarama.ConsumerGroup
	cancel context.CancelFunc

	mu   sync.Mutex
	done chan struct{}
	err  error
}

func (s *groupSubscription) Done() <-chan struct{} { return s.done }

func (s *groupSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *groupSubscription) Unsubscribe() {
	s.fail(nil)
}

func (s *groupSubscription) fail(err error) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	s.err = err
	close(s.done)
	s.mu.Unlock()

	s.cancel()
	_ = s.group.Close()
}

// claimHandler разбирает сообщения топика изменений и передаёт их обработчику.
type claimHandler struct {
	tables  map[string]struct{}
	handler domain.ChangeHandler
	dlq     *Producer
	logger  *log.Entry
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}
			h.handleMessage(message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *claimHandler) handleMessage(message *sarama.ConsumerMessage) {
	var event domain.ChangeEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		h.logger.WithError(err).WithFields(log.Fields{
			"topic":  message.Topic,
			"offset": message.Offset,
		}).Warn("unparseable change event")
		h.sendToDLQ(message, err)
		return
	}

	if len(h.tables) > 0 {
		if _, ok := h.tables[event.Table]; !ok {
			return
		}
	}

	h.handler(event)
}

func (h *claimHandler) sendToDLQ(message *sarama.ConsumerMessage, cause error) {
	if h.dlq == nil {
		return
	}

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderOriginalTopic), Value: []byte(message.Topic)},
		{Key: []byte(HeaderErrorMessage), Value: []byte(cause.Error())},
		{Key: []byte(HeaderFailedAt), Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
	}
	if err := h.dlq.PublishRaw(TopicDeadLetterQueue, string(message.Key), message.Value, headers); err != nil {
		h.logger.WithError(err).Warn("failed to publish to DLQ")
	}
}

var _ domain.PushChannel = (*Channel)(nil)
