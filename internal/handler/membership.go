package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/clubhub/internal/middleware"
	"github.com/mmeshcher/clubhub/internal/model"
	"github.com/mmeshcher/clubhub/internal/respond"
)

type applyRequest struct {
	PaymentMethod string          `json:"paymentMethod"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	PhoneNumber   *string         `json:"phoneNumber"`
}

// Apply принимает заявку текущего пользователя на членство.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req applyRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	if strings.TrimSpace(req.PaymentMethod) == "" || strings.TrimSpace(req.TransactionID) == "" {
		respond.Error(w, http.StatusBadRequest, "Payment method, transaction ID and amount are required")
		return
	}

	app, err := h.service.Apply(r.Context(), userID, model.ApplyInput{
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		PhoneNumber:   req.PhoneNumber,
	})
	if err != nil {
		h.writeError(w, r, err, "apply")
		return
	}

	respond.JSON(w, http.StatusCreated, "Application submitted successfully", app)
}

// MyStatus возвращает статус членства текущего пользователя и историю его заявок.
func (h *Handler) MyStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	status, err := h.service.GetMyStatus(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "get my status")
		return
	}

	respond.JSON(w, http.StatusOK, "", status)
}

// ListApplications возвращает страницу заявок с фильтром по статусу и поиском.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	res, err := h.service.GetApplications(r.Context(), model.ApplicationQuery{
		Page:   page,
		Limit:  limit,
		Status: q.Get("status"),
		Search: q.Get("search"),
	})
	if err != nil {
		h.writeError(w, r, err, "list applications")
		return
	}

	respond.JSON(w, http.StatusOK, "", res)
}

// GetApplication возвращает одну заявку с профилем владельца.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	app, err := h.service.GetApplicationByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "get application")
		return
	}

	respond.JSON(w, http.StatusOK, "", app)
}

type uniqueIDResponse struct {
	UniqueID string `json:"uniqueId"`
}

// ApproveApplication одобряет заявку от имени текущего проверяющего.
func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	uniqueID, err := h.service.ApproveApplication(r.Context(), id, reviewerID)
	if err != nil {
		h.writeError(w, r, err, "approve application")
		return
	}

	respond.JSON(w, http.StatusOK, "Application approved", uniqueIDResponse{UniqueID: uniqueID})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectApplication отклоняет заявку. Тело запроса с причиной необязательно.
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	if err := h.service.RejectApplication(r.Context(), id, reviewerID, req.Reason); err != nil {
		h.writeError(w, r, err, "reject application")
		return
	}

	respond.JSON(w, http.StatusOK, "Application rejected", nil)
}

// Stats возвращает счётчики для панели администратора.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.writeError(w, r, err, "get stats")
		return
	}

	respond.JSON(w, http.StatusOK, "", stats)
}

type directApproveRequest struct {
	UserID int64 `json:"userId"`
}

// DirectApprove делает пользователя членом клуба без заявки.
func (h *Handler) DirectApprove(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req directApproveRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if req.UserID <= 0 {
		respond.Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	uniqueID, err := h.service.DirectApprove(r.Context(), req.UserID, reviewerID)
	if err != nil {
		h.writeError(w, r, err, "direct approve")
		return
	}

	respond.JSON(w, http.StatusOK, "User approved as member", uniqueIDResponse{UniqueID: uniqueID})
}

// IDCard отдаёт PDF членского билета текущего пользователя.
func (h *Handler) IDCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	pdf, err := h.service.IDCard(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err, "id card")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="member-card.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, http.StatusBadRequest, "Invalid application id")
		return 0, false
	}
	return id, true
}
