package inproc

import (
	"context"
	"errors"
	"sync"

	"github.com/kimcharlie25/K-inasal/internal/domain"
)

// ErrChannelUnavailable возвращается Subscribe, пока канал искусственно «сломан».
var ErrChannelUnavailable = errors.New("push channel unavailable")

// PushChannel — внутрипроцессный push-канал: издатель и подписчики в одном
// процессе. Используется тестами и драйвером без брокера. Реализует
// domain.PushChannel и domain.ChangePublisher.
type PushChannel struct {
	mu     sync.Mutex
	subs   map[int64]*subscription
	nextID int64
	broken bool
}

// NewPushChannel создаёт пустой канал.
func NewPushChannel() *PushChannel {
	return &PushChannel{subs: make(map[int64]*subscription)}
}

type subscription struct {
	tables  map[string]struct{}
	handler domain.ChangeHandler

	mu   sync.Mutex
	done chan struct{}
	err  error

	remove func()
}

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Unsubscribe() {
	s.fail(nil)
}

func (s *subscription) fail(err error) {
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

	s.remove()
}

// Subscribe регистрирует обработчик изменений указанных таблиц.
func (c *PushChannel) Subscribe(ctx context.Context, tables []string, handler domain.ChangeHandler) (domain.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, ErrChannelUnavailable
	}

	id := c.nextID
	c.nextID++

	tableSet := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		tableSet[table] = struct{}{}
	}

	sub := &subscription{
		tables:  tableSet,
		handler: handler,
		done:    make(chan struct{}),
	}
	sub.remove = func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
	c.subs[id] = sub

	return sub, nil
}

// Publish доставляет событие всем живым подписчикам подходящих таблиц.
func (c *PushChannel) Publish(ctx context.Context, event domain.ChangeEvent) error {
	c.mu.Lock()
	targets := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		if len(sub.tables) > 0 {
			if _, ok := sub.tables[event.Table]; !ok {
				continue
			}
		}
		targets = append(targets, sub)
	}
	c.mu.Unlock()

	for _, sub := range targets {
		select {
		case <-sub.done:
		default:
			sub.handler(event)
		}
	}

	return nil
}

// Fail обрывает все активные подписки с указанной причиной и заставляет
// последующие Subscribe завершаться ошибкой до вызова Restore.
// Тестовый рычаг для проверки деградации подписчиков.
func (c *PushChannel) Fail(err error) {
	c.mu.Lock()
	c.broken = true
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

// Restore снова разрешает подписки после Fail.
func (c *PushChannel) Restore() {
	c.mu.Lock()
	c.broken = false
	c.mu.Unlock()
}

// ActiveSubscriptions возвращает число живых подписок (для тестов на утечки).
func (c *PushChannel) ActiveSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

var (
	_ domain.PushChannel     = (*PushChannel)(nil)
	_ domain.ChangePublisher = (*PushChannel)(nil)
)
