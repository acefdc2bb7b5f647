package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/clubhub/internal/model"
)

// Log пишет письма в журнал вместо отправки. Используется, когда брокер не настроен.
type Log struct {
	logger *zap.Logger
}

// NewLog создаёт журналирующий mailer.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Dispatch декодирует письмо и записывает адресата и тему.
func (l *Log) Dispatch(ctx context.Context, msg model.OutboxMessage) error {
	var email model.Email
	if err := json.Unmarshal(msg.Payload, &email); err != nil {
		return fmt.Errorf("decode email: %w", err)
	}

	l.logger.Info("email",
		zap.String("id", msg.ID.String()),
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
	)
	return nil
}
