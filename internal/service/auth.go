package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/clubhub/internal/model"
	"github.com/mmeshcher/clubhub/internal/repository"
	"github.com/mmeshcher/clubhub/internal/validation"
)

const minPasswordLen = 8

// RegisterInput содержит данные для регистрации пользователя.
type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	Department string
	StudentID  string
	Phone      string
}

// RegisterUser регистрирует нового пользователя с ролью VISITOR.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*model.User, error) {
	u, err := newUser(in, model.RoleVisitor)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, mapRepoErr(err)
	}

	s.logger.Info("user registered", zap.Int64("userID", u.ID), zap.String("department", u.Department))
	return u, nil
}

// AuthenticateUser проверяет email и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// EnsureAdmin создаёт администратора с указанными данными, если пользователя с таким email ещё нет.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	_, err := s.repo.GetUserByEmail(ctx, validation.NormalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	u, err := newUser(RegisterInput{
		Name:       name,
		Email:      email,
		Password:   password,
		Department: "ADMIN",
	}, model.RoleAdmin)
	if err != nil {
		return err
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil
		}
		return err
	}

	s.logger.Info("admin account created", zap.Int64("userID", u.ID))
	return nil
}

func newUser(in RegisterInput, role model.Role) (*model.User, error) {
	email := validation.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	department := strings.TrimSpace(in.Department)

	if name == "" || department == "" || !validation.IsValidEmail(email) || len(in.Password) < minPasswordLen {
		return nil, ErrInvalidRegistration
	}

	phone := ""
	if strings.TrimSpace(in.Phone) != "" {
		phone = validation.NormalizePhone(in.Phone)
		if !validation.IsValidPhone(phone) {
			return nil, ErrInvalidPhone
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, ErrInvalidRegistration
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return &model.User{
		Name:             name,
		Email:            email,
		PasswordHash:     hash,
		Role:             role,
		MembershipStatus: model.MembershipNone,
		Department:       department,
		StudentID:        strings.TrimSpace(in.StudentID),
		Phone:            phone,
	}, nil
}
