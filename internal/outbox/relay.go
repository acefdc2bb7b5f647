// Package outbox доставляет сообщения транзакционного outbox во внешние системы.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/clubhub/internal/model"
)

const (
	baseBackoff = time.Second
	maxBackoff  = 10 * time.Minute
)

// Store описывает операции хранилища, необходимые для доставки outbox.
type Store interface {
	ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]model.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	MarkOutboxRetry(ctx context.Context, id uuid.UUID, lastErr string, availableAt time.Time) error
	MarkOutboxFailed(ctx context.Context, id uuid.UUID, lastErr string) error
}

// Dispatcher доставляет сообщение одного топика.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.OutboxMessage) error
}

// Config задаёт параметры цикла доставки.
type Config struct {
	Interval    time.Duration
	Batch       int
	MaxAttempts int
	Lease       time.Duration
}

// Relay периодически забирает сообщения из outbox и передаёт их диспетчерам по топикам.
type Relay struct {
	store       Store
	logger      *zap.Logger
	cfg         Config
	dispatchers map[string]Dispatcher
	now         func() time.Time
}

// NewRelay создаёт Relay. Нулевые значения конфигурации заменяются значениями по умолчанию.
func NewRelay(store Store, logger *zap.Logger, cfg Config) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}

	return &Relay{
		store:       store,
		logger:      logger,
		cfg:         cfg,
		dispatchers: make(map[string]Dispatcher),
		now:         time.Now,
	}
}

// Register назначает диспетчер для топика.
func (r *Relay) Register(topic string, d Dispatcher) {
	r.dispatchers[topic] = d
}

// Run обрабатывает outbox до отмены контекста.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch доставляет одну пачку сообщений и возвращает количество успешно доставленных.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	msgs, err := r.store.ClaimOutbox(ctx, r.cfg.Batch, r.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("claim outbox: %w", err)
	}

	sent := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		ok, err := r.deliver(ctx, msg)
		if err != nil {
			r.logger.Error("outbox bookkeeping failed", zap.String("id", msg.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}

	return sent, nil
}

func (r *Relay) deliver(ctx context.Context, msg model.OutboxMessage) (bool, error) {
	d, ok := r.dispatchers[msg.Topic]
	if !ok {
		r.logger.Error("no dispatcher for outbox topic", zap.String("topic", msg.Topic), zap.String("id", msg.ID.String()))
		return false, r.store.MarkOutboxFailed(ctx, msg.ID, "no dispatcher for topic "+msg.Topic)
	}

	dispatchErr := d.Dispatch(ctx, msg)
	if dispatchErr == nil {
		return true, r.store.MarkOutboxSent(ctx, msg.ID)
	}

	attempts := msg.Attempts + 1
	if attempts >= r.cfg.MaxAttempts {
		r.logger.Error("outbox message dropped",
			zap.String("id", msg.ID.String()),
			zap.String("topic", msg.Topic),
			zap.Int("attempts", attempts),
			zap.Error(dispatchErr),
		)
		return false, r.store.MarkOutboxFailed(ctx, msg.ID, dispatchErr.Error())
	}

	next := r.now().Add(Backoff(msg.Attempts))
	r.logger.Warn("outbox delivery failed, will retry",
		zap.String("id", msg.ID.String()),
		zap.String("topic", msg.Topic),
		zap.Int("attempts", attempts),
		zap.Time("nextAttempt", next),
		zap.Error(dispatchErr),
	)
	return false, r.store.MarkOutboxRetry(ctx, msg.ID, dispatchErr.Error(), next)
}

// Backoff возвращает задержку перед повторной доставкой сообщения с attempts предыдущими попытками.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := baseBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
