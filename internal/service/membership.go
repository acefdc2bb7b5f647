package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/clubhub/internal/memberid"
	"github.com/mmeshcher/clubhub/internal/model"
	"github.com/mmeshcher/clubhub/internal/repository"
	"github.com/mmeshcher/clubhub/internal/validation"
)

// DefaultRejectionReason подставляется, если проверяющий не указал причину отказа.
const DefaultRejectionReason = "Your application did not meet the requirements"

// Apply регистрирует заявку пользователя на членство.
// Заявка, статус пользователя и письмо о получении записываются в одной транзакции.
func (s *Service) Apply(ctx context.Context, userID int64, in model.ApplyInput) (*model.Application, error) {
	var (
		app    *model.Application
		method model.PaymentMethod
	)
	err := s.repo.InTx(ctx, func(tx repository.Store) error {
		u, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return mapRepoErr(err)
		}

		switch {
		case u.Role.IsMember():
			return ErrAlreadyMember
		case u.MembershipStatus == model.MembershipPending:
			return ErrPendingApplication
		case u.MembershipStatus == model.MembershipActive:
			return ErrMembershipActive
		}

		var (
			txnID string
			phone *string
		)
		method, txnID, phone, err = parseApplyInput(in)
		if err != nil {
			return err
		}

		used, err := tx.TransactionIDExists(ctx, txnID)
		if err != nil {
			return err
		}
		if used {
			return ErrTransactionUsed
		}

		app = &model.Application{
			UserID:        userID,
			PaymentMethod: method,
			TransactionID: txnID,
			Amount:        in.Amount,
			PhoneNumber:   phone,
			Status:        model.ApplicationPending,
		}
		if err := tx.CreateApplication(ctx, app); err != nil {
			return mapRepoErr(err)
		}

		if err := tx.UpdateMembershipStatus(ctx, userID, model.MembershipPending); err != nil {
			return mapRepoErr(err)
		}

		email, err := s.renderer.Received(u, app)
		if err != nil {
			return err
		}
		msgs, err := s.outbox(email, model.MembershipEvent{
			Type:          model.EventApplied,
			UserID:        userID,
			ApplicationID: &app.ID,
			At:            app.CreatedAt,
		})
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msgs...)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("membership application submitted",
		zap.Int64("applicationID", app.ID),
		zap.Int64("userID", userID),
		zap.String("paymentMethod", string(method)),
	)

	return app, nil
}

func parseApplyInput(in model.ApplyInput) (model.PaymentMethod, string, *string, error) {
	method, ok := model.ParsePaymentMethod(in.PaymentMethod)
	if !ok {
		return "", "", nil, ErrInvalidPaymentMethod
	}

	txnID := validation.NormalizeTransactionID(in.TransactionID)
	if !validation.IsValidTransactionID(txnID) {
		return "", "", nil, ErrInvalidTransactionID
	}

	if !in.Amount.IsPositive() {
		return "", "", nil, ErrInvalidAmount
	}

	var phone *string
	if in.PhoneNumber != nil && strings.TrimSpace(*in.PhoneNumber) != "" {
		p := validation.NormalizePhone(*in.PhoneNumber)
		if !validation.IsValidPhone(p) {
			return "", "", nil, ErrInvalidPhone
		}
		phone = &p
	}

	return method, txnID, phone, nil
}

// GetMyStatus возвращает роль, статус членства и историю заявок пользователя.
func (s *Service) GetMyStatus(ctx context.Context, userID int64) (*model.MyStatus, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	apps, err := s.repo.ListApplicationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []model.Application{}
	}

	return &model.MyStatus{
		Role:             u.Role,
		MembershipStatus: u.MembershipStatus,
		UniqueID:         u.UniqueID,
		Applications:     apps,
	}, nil
}

// GetApplications возвращает страницу заявок для проверяющих.
func (s *Service) GetApplications(ctx context.Context, q model.ApplicationQuery) (*model.Page[model.Application], error) {
	q = q.Normalize()
	if q.Status != model.StatusAll {
		st, ok := model.ParseApplicationStatus(q.Status)
		if !ok {
			return nil, ErrInvalidStatusFilter
		}
		q.Status = string(st)
	}

	items, total, err := s.repo.ListApplications(ctx, q)
	if err != nil {
		return nil, err
	}

	page := model.NewPage(items, q.Page, q.Limit, total)
	return &page, nil
}

// GetApplicationByID возвращает заявку вместе с профилем владельца.
func (s *Service) GetApplicationByID(ctx context.Context, id int64) (*model.Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return app, nil
}

// ApproveApplication одобряет заявку, выдаёт уникальный идентификатор и делает пользователя членом клуба.
// Перевод заявки из PENDING выполняется сравнением со старым статусом, поэтому параллельные вызовы
// не могут одобрить одну заявку дважды.
func (s *Service) ApproveApplication(ctx context.Context, applicationID, reviewerID int64) (string, error) {
	var uniqueID string
	var userID int64

	err := s.repo.InTx(ctx, func(tx repository.Store) error {
		app, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return mapRepoErr(err)
		}
		if app.Status != model.ApplicationPending {
			return ErrAlreadyReviewed
		}
		userID = app.UserID

		u, err := tx.GetUserByID(ctx, app.UserID)
		if err != nil {
			return mapRepoErr(err)
		}

		now := s.now()
		ok, err := tx.ReviewApplication(ctx, model.Review{
			ApplicationID: applicationID,
			Status:        model.ApplicationApproved,
			ReviewerID:    reviewerID,
			ReviewedAt:    now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyReviewed
		}

		uniqueID, err = s.promote(ctx, tx, u, false)
		if err != nil {
			return err
		}

		email, err := s.renderer.Approved(u, uniqueID)
		if err != nil {
			return err
		}
		msgs, err := s.outbox(email, model.MembershipEvent{
			Type:          model.EventApproved,
			UserID:        u.ID,
			ApplicationID: &applicationID,
			ReviewerID:    &reviewerID,
			UniqueID:      &uniqueID,
			At:            now,
		})
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msgs...)
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("membership application approved",
		zap.Int64("applicationID", applicationID),
		zap.Int64("userID", userID),
		zap.Int64("reviewerID", reviewerID),
		zap.String("uniqueID", uniqueID),
	)

	return uniqueID, nil
}

// RejectApplication отклоняет заявку. Роль пользователя не меняется, повторная подача заявки разрешена.
func (s *Service) RejectApplication(ctx context.Context, applicationID, reviewerID int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultRejectionReason
	}

	var userID int64
	err := s.repo.InTx(ctx, func(tx repository.Store) error {
		app, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return mapRepoErr(err)
		}
		if app.Status != model.ApplicationPending {
			return ErrAlreadyReviewed
		}
		userID = app.UserID

		u, err := tx.GetUserByID(ctx, app.UserID)
		if err != nil {
			return mapRepoErr(err)
		}

		now := s.now()
		ok, err := tx.ReviewApplication(ctx, model.Review{
			ApplicationID: applicationID,
			Status:        model.ApplicationRejected,
			ReviewerID:    reviewerID,
			Reason:        &reason,
			ReviewedAt:    now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyReviewed
		}

		if err := tx.UpdateMembershipStatus(ctx, u.ID, model.MembershipRejected); err != nil {
			return mapRepoErr(err)
		}

		email, err := s.renderer.Rejected(u, reason)
		if err != nil {
			return err
		}
		msgs, err := s.outbox(email, model.MembershipEvent{
			Type:          model.EventRejected,
			UserID:        u.ID,
			ApplicationID: &applicationID,
			ReviewerID:    &reviewerID,
			At:            now,
		})
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msgs...)
	})
	if err != nil {
		return err
	}

	s.logger.Info("membership application rejected",
		zap.Int64("applicationID", applicationID),
		zap.Int64("userID", userID),
		zap.Int64("reviewerID", reviewerID),
	)

	return nil
}

// GetStats возвращает агрегированные счётчики заявок и членов клуба.
func (s *Service) GetStats(ctx context.Context) (*model.MembershipStats, error) {
	stats, err := s.repo.ApplicationStats(ctx)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// DirectApprove делает пользователя членом клуба без заявки. Такие переходы видны только в totalMembers
// и в журнале.
func (s *Service) DirectApprove(ctx context.Context, userID, reviewerID int64) (string, error) {
	var uniqueID string

	err := s.repo.InTx(ctx, func(tx repository.Store) error {
		u, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return mapRepoErr(err)
		}
		if u.Role.IsMember() {
			return ErrTargetAlreadyMember
		}

		uniqueID, err = s.promote(ctx, tx, u, true)
		if err != nil {
			return err
		}

		email, err := s.renderer.Approved(u, uniqueID)
		if err != nil {
			return err
		}
		msgs, err := s.outbox(email, model.MembershipEvent{
			Type:       model.EventDirectApproved,
			UserID:     u.ID,
			ReviewerID: &reviewerID,
			UniqueID:   &uniqueID,
			At:         s.now(),
		})
		if err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msgs...)
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("member approved directly",
		zap.Int64("userID", userID),
		zap.Int64("reviewerID", reviewerID),
		zap.String("uniqueID", uniqueID),
	)

	return uniqueID, nil
}

// IDCard формирует PDF членского билета для активного члена клуба.
func (s *Service) IDCard(ctx context.Context, userID int64) ([]byte, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	if u.MembershipStatus != model.MembershipActive || u.UniqueID == nil {
		return nil, ErrMembershipNotActive
	}
	if s.cards == nil {
		return nil, errors.New("id card generator is not configured")
	}

	return s.cards.Generate(u, s.now())
}

func (s *Service) promote(ctx context.Context, tx repository.Store, u *model.User, requireNonMember bool) (string, error) {
	dept := memberid.Department(u.Department)
	year := s.now().Year()

	seq, err := tx.NextMemberSequence(ctx, dept, year)
	if err != nil {
		return "", err
	}

	assigned, ok, err := tx.PromoteToMember(ctx, u.ID, memberid.Format(dept, year, seq), requireNonMember)
	if err != nil {
		return "", err
	}
	if !ok {
		if requireNonMember {
			return "", ErrTargetAlreadyMember
		}
		return "", ErrUserNotFound
	}
	return assigned, nil
}

func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrApplicationNotFound):
		return ErrApplicationNotFound
	case errors.Is(err, repository.ErrTransactionIDTaken):
		return ErrTransactionUsed
	case errors.Is(err, repository.ErrPendingApplicationExists):
		return ErrPendingApplication
	case errors.Is(err, repository.ErrUserExists):
		return ErrEmailTaken
	default:
		return err
	}
}
