package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/clubhub/internal/model"
)

// EnqueueOutbox сохраняет сообщения для последующей доставки. Внутри InTx запись атомарна с изменением данных.
func (q *Queries) EnqueueOutbox(ctx context.Context, msgs ...model.OutboxMessage) error {
	for _, m := range msgs {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		_, err := q.db.Exec(ctx,
			`INSERT INTO outbox_messages (id, topic, msg_key, payload) VALUES ($1, $2, $3, $4)`,
			m.ID, m.Topic, m.Key, m.Payload,
		)
		if err != nil {
			return fmt.Errorf("insert outbox message: %w", err)
		}
	}
	return nil
}

// ClaimOutbox захватывает пачку готовых к доставке сообщений, откладывая их повторную выдачу на время lease.
// Параллельные обработчики не получают одни и те же сообщения благодаря SKIP LOCKED.
func (r *PostgresRepository) ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]model.OutboxMessage, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE outbox_messages
		 SET available_at = $2
		 WHERE id IN (
		     SELECT id FROM outbox_messages
		     WHERE sent_at IS NULL AND failed_at IS NULL AND available_at <= now()
		     ORDER BY available_at, created_at
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, topic, msg_key, payload, attempts, last_error, available_at, created_at`,
		limit, time.Now().Add(lease),
	)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var res []model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &m.Payload, &m.Attempts, &m.LastError, &m.AvailableAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkOutboxSent отмечает сообщение как доставленное.
func (r *PostgresRepository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_messages SET sent_at = now(), attempts = attempts + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

// MarkOutboxRetry сохраняет ошибку доставки и планирует следующую попытку.
func (r *PostgresRepository) MarkOutboxRetry(ctx context.Context, id uuid.UUID, lastErr string, availableAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_messages SET attempts = attempts + 1, last_error = $2, available_at = $3 WHERE id = $1`,
		id, lastErr, availableAt,
	)
	if err != nil {
		return fmt.Errorf("mark outbox retry: %w", err)
	}
	return nil
}

// MarkOutboxFailed окончательно снимает сообщение с доставки.
func (r *PostgresRepository) MarkOutboxFailed(ctx context.Context, id uuid.UUID, lastErr string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_messages SET attempts = attempts + 1, last_error = $2, failed_at = now() WHERE id = $1`,
		id, lastErr,
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
