// Package handler содержит HTTP-обработчики API сервиса членства в клубе.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/clubhub/internal/middleware"
	"github.com/mmeshcher/clubhub/internal/model"
	"github.com/mmeshcher/clubhub/internal/respond"
	"github.com/mmeshcher/clubhub/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	Apply(ctx context.Context, userID int64, in model.ApplyInput) (*model.Application, error)
	GetMyStatus(ctx context.Context, userID int64) (*model.MyStatus, error)
	GetApplications(ctx context.Context, q model.ApplicationQuery) (*model.Page[model.Application], error)
	GetApplicationByID(ctx context.Context, id int64) (*model.Application, error)
	ApproveApplication(ctx context.Context, applicationID, reviewerID int64) (string, error)
	RejectApplication(ctx context.Context, applicationID, reviewerID int64, reason string) error
	GetStats(ctx context.Context) (*model.MembershipStats, error)
	DirectApprove(ctx context.Context, userID, reviewerID int64) (string, error)
	IDCard(ctx context.Context, userID int64) ([]byte, error)
	Ping(ctx context.Context) error
}

// Handler реализует HTTP-обработчики API сервиса членства.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

const (
	msgBadRequest   = "Invalid request body"
	msgInternal     = "Internal server error"
	msgUnauthorized = "Authentication required"
)

// writeError переводит ошибку сервиса в HTTP-ответ. Ошибки бизнес-логики отдаются клиенту как есть,
// остальные журналируются и скрываются за 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			status = http.StatusConflict
		case errors.Is(err, service.ErrInvalidCredentials):
			status = http.StatusUnauthorized
		}
		respond.Error(w, status, svcErr.Error())
		return
	}

	if errors.Is(err, context.Canceled) {
		return
	}

	h.logger.Error(op+" error", zap.Error(err), zap.String("path", r.URL.Path))
	respond.Error(w, http.StatusInternalServerError, msgInternal)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type registerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"`
	StudentID  string `json:"studentId"`
	Phone      string `json:"phone"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Department: req.Department,
		StudentID:  req.StudentID,
		Phone:      req.Phone,
	})
	if err != nil {
		h.writeError(w, r, err, "register user")
		return
	}

	respond.JSON(w, http.StatusCreated, "Registration successful", u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Login выполняет аутентификацию пользователя, выдаёт токен и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err, "login user")
		return
	}

	token, err := h.authMiddleware.IssueToken(u.ID, u.Role)
	if err != nil {
		h.writeError(w, r, err, "issue token")
		return
	}

	h.authMiddleware.SetAuthCookie(w, token)
	respond.JSON(w, http.StatusOK, "Login successful", loginResponse{Token: token, User: u})
}

// Health сообщает о доступности сервиса и базы данных.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		respond.Error(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	respond.JSON(w, http.StatusOK, "ok", nil)
}
