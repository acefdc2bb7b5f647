// Package service реализует бизнес-логику членства в клубе.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/clubhub/internal/model"
	"github.com/mmeshcher/clubhub/internal/notify"
	"github.com/mmeshcher/clubhub/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	repository.Store
	InTx(ctx context.Context, fn func(repository.Store) error) error
	Ping(ctx context.Context) error
	Close() error
}

// CardGenerator формирует цифровой членский билет.
type CardGenerator interface {
	Generate(u *model.User, issuedAt time.Time) ([]byte, error)
}

// Options содержит необязательные параметры сервиса.
type Options struct {
	// ClubName подставляется в письма.
	ClubName string
	// EmitEvents включает запись событий членства в outbox для публикации во внешнюю шину.
	EmitEvents bool
	// Now возвращает текущее время; по умолчанию time.Now.
	Now func() time.Time
}

// Service содержит бизнес-логику членства в клубе.
type Service struct {
	repo       Repository
	cards      CardGenerator
	renderer   *notify.Renderer
	logger     *zap.Logger
	emitEvents bool
	now        func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и генератором членских билетов.
func NewService(repo Repository, cards CardGenerator, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ClubName == "" {
		opts.ClubName = "University Club"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:       repo,
		cards:      cards,
		renderer:   notify.NewRenderer(opts.ClubName),
		logger:     logger,
		emitEvents: opts.EmitEvents,
		now:        opts.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func emailMessage(email model.Email) (model.OutboxMessage, error) {
	payload, err := json.Marshal(email)
	if err != nil {
		return model.OutboxMessage{}, fmt.Errorf("marshal email: %w", err)
	}
	return model.OutboxMessage{
		ID:      uuid.New(),
		Topic:   model.TopicEmail,
		Key:     email.To,
		Payload: payload,
	}, nil
}

// outbox собирает сообщения для записи в outbox: письмо и, если включено, событие членства.
func (s *Service) outbox(email model.Email, event model.MembershipEvent) ([]model.OutboxMessage, error) {
	msg, err := emailMessage(email)
	if err != nil {
		return nil, err
	}
	msgs := []model.OutboxMessage{msg}

	if s.emitEvents {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("marshal membership event: %w", err)
		}
		msgs = append(msgs, model.OutboxMessage{
			ID:      uuid.New(),
			Topic:   model.TopicMembershipEvents,
			Key:     strconv.FormatInt(event.UserID, 10),
			Payload: payload,
		})
	}

	return msgs, nil
}
