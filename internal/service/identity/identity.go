package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultLookupURL     = "https://api.ipify.org?format=json"
	defaultLookupTimeout = 3 * time.Second
)

// Resolver определяет публичный IP процесса один раз и кэширует результат.
// Лукап best-effort: любая ошибка даёт пустой идентификатор, заказы от этого
// не страдают. Результат не привязан к жизненному циклу отдельного запроса.
type Resolver struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *log.Entry

	once sync.Once
	ip   string
}

// Option настраивает Resolver.
type Option func(*Resolver)

// WithLookupURL подменяет endpoint определения IP (для тестов).
func WithLookupURL(url string) Option {
	return func(r *Resolver) {
		r.url = url
	}
}

// WithTimeout задаёт предел ожидания лукапа.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = timeout
	}
}

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// NewResolver создаёт резолвер с коротким таймаутом лукапа.
func NewResolver(logger *log.Entry, options ...Option) *Resolver {
	if logger == nil {
		logger = log.WithField("component", "identity-resolver")
	}
	r := &Resolver{
		url:     defaultLookupURL,
		timeout: defaultLookupTimeout,
		client:  &http.Client{},
		logger:  logger,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// ClientIP возвращает закэшированный публичный IP или пустую строку.
// Первый вызов выполняет лукап; повторные возвращают результат без сети.
func (r *Resolver) ClientIP(ctx context.Context) string {
	r.once.Do(func() {
		r.ip = r.lookup(ctx)
	})
	return r.ip
}

func (r *Resolver) lookup(ctx context.Context) string {
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(lookupCtx, http.MethodGet, r.url, nil)
	if err != nil {
		r.logger.WithError(err).Debug("client ip lookup request failed")
		return ""
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.WithError(err).Debug("client ip lookup failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.WithField("status", resp.StatusCode).Debug("client ip lookup non-ok status")
		return ""
	}

	var payload struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		r.logger.WithError(err).Debug("client ip lookup decode failed")
		return ""
	}

	return payload.IP
}
