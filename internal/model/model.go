// Package model содержит доменные сущности сервиса членства в клубе.
package model

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role описывает уровень доступа пользователя.
type Role string

const (
	RoleVisitor   Role = "VISITOR"
	RoleMember    Role = "MEMBER"
	RoleExecutive Role = "EXECUTIVE"
	RoleAdmin     Role = "ADMIN"
)

// MemberRoles перечисляет роли, которые считаются членством в клубе.
var MemberRoles = []Role{RoleMember, RoleExecutive, RoleAdmin}

// IsMember сообщает, является ли роль членской (MEMBER и выше).
func (r Role) IsMember() bool {
	for _, m := range MemberRoles {
		if r == m {
			return true
		}
	}
	return false
}

// MembershipStatus описывает состояние оплаты и одобрения членства пользователя.
type MembershipStatus string

const (
	MembershipNone     MembershipStatus = "NONE"
	MembershipPending  MembershipStatus = "PENDING"
	MembershipActive   MembershipStatus = "ACTIVE"
	MembershipRejected MembershipStatus = "REJECTED"
)

// PaymentMethod описывает способ оплаты членского взноса.
type PaymentMethod string

const (
	PaymentBkash  PaymentMethod = "BKASH"
	PaymentNagad  PaymentMethod = "NAGAD"
	PaymentRocket PaymentMethod = "ROCKET"
)

// ParsePaymentMethod разбирает способ оплаты без учёта регистра.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch pm := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); pm {
	case PaymentBkash, PaymentNagad, PaymentRocket:
		return pm, true
	default:
		return "", false
	}
}

// ApplicationStatus описывает статус заявки на членство.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "PENDING"
	ApplicationApproved ApplicationStatus = "APPROVED"
	ApplicationRejected ApplicationStatus = "REJECTED"
)

// ParseApplicationStatus разбирает статус заявки без учёта регистра.
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	switch st := ApplicationStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case ApplicationPending, ApplicationApproved, ApplicationRejected:
		return st, true
	default:
		return "", false
	}
}

// User представляет зарегистрированного пользователя клуба.
type User struct {
	ID               int64            `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	PasswordHash     []byte           `json:"-"`
	Role             Role             `json:"role"`
	MembershipStatus MembershipStatus `json:"membershipStatus"`
	UniqueID         *string          `json:"uniqueId"`
	Department       string           `json:"department"`
	StudentID        string           `json:"studentId,omitempty"`
	Phone            string           `json:"phone,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Applicant содержит профиль владельца заявки для просмотра проверяющим.
type Applicant struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Department string  `json:"department"`
	StudentID  string  `json:"studentId,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	UniqueID   *string `json:"uniqueId"`
}

// Application описывает заявку пользователя на членство, привязанную к платёжной транзакции.
type Application struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"userId"`
	PaymentMethod   PaymentMethod     `json:"paymentMethod"`
	TransactionID   string            `json:"transactionId"`
	Amount          decimal.Decimal   `json:"amount"`
	PhoneNumber     *string           `json:"phoneNumber,omitempty"`
	Status          ApplicationStatus `json:"status"`
	RejectionReason *string           `json:"rejectionReason,omitempty"`
	ReviewedBy      *int64            `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	Applicant       *Applicant        `json:"user,omitempty"`
}

// Review описывает решение проверяющего по заявке.
type Review struct {
	ApplicationID int64
	Status        ApplicationStatus
	ReviewerID    int64
	Reason        *string
	ReviewedAt    time.Time
}

// ApplyInput содержит данные, которые пользователь передаёт при подаче заявки.
type ApplyInput struct {
	PaymentMethod string
	TransactionID string
	Amount        decimal.Decimal
	PhoneNumber   *string
}

// StatusAll отключает фильтр по статусу в выборке заявок.
const StatusAll = "ALL"

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	maxPage          = math.MaxInt / maxPageLimit
)

// ApplicationQuery описывает параметры постраничной выборки заявок.
type ApplicationQuery struct {
	Page   int
	Limit  int
	Status string
	Search string
}

// Normalize приводит параметры выборки к допустимым значениям.
func (q ApplicationQuery) Normalize() ApplicationQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > maxPage {
		q.Page = maxPage
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
	q.Status = strings.ToUpper(strings.TrimSpace(q.Status))
	if q.Status == "" {
		q.Status = StatusAll
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// Offset возвращает смещение первой записи страницы.
func (q ApplicationQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Page содержит одну страницу выборки и метаданные пагинации.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPage собирает страницу, вычисляя общее количество страниц.
func NewPage[T any](items []T, page, limit, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Page[T]{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// MembershipStats содержит агрегированные счётчики для панели администратора.
type MembershipStats struct {
	TotalApplications int `json:"totalApplications"`
	Pending           int `json:"pending"`
	Approved          int `json:"approved"`
	Rejected          int `json:"rejected"`
	TotalMembers      int `json:"totalMembers"`
}

// MyStatus описывает текущее состояние членства пользователя и историю его заявок.
type MyStatus struct {
	Role             Role             `json:"role"`
	MembershipStatus MembershipStatus `json:"membershipStatus"`
	UniqueID         *string          `json:"uniqueId"`
	Applications     []Application    `json:"applications"`
}

// Email описывает письмо, которое нужно отправить пользователю.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Топики исходящих сообщений.
const (
	TopicEmail            = "email"
	TopicMembershipEvents = "membership.events"
)

// MembershipEventType описывает тип события жизненного цикла членства.
type MembershipEventType string

const (
	EventApplied        MembershipEventType = "applied"
	EventApproved       MembershipEventType = "approved"
	EventRejected       MembershipEventType = "rejected"
	EventDirectApproved MembershipEventType = "direct_approved"
)

// MembershipEvent публикуется во внешнюю шину при каждом переходе состояния членства.
type MembershipEvent struct {
	Type          MembershipEventType `json:"type"`
	UserID        int64               `json:"userId"`
	ApplicationID *int64              `json:"applicationId,omitempty"`
	ReviewerID    *int64              `json:"reviewerId,omitempty"`
	UniqueID      *string             `json:"uniqueId,omitempty"`
	At            time.Time           `json:"at"`
}

// OutboxMessage описывает сообщение транзакционного outbox, ожидающее доставки.
type OutboxMessage struct {
	ID          uuid.UUID
	Topic       string
	Key         string
	Payload     []byte
	Attempts    int
	LastError   string
	AvailableAt time.Time
	CreatedAt   time.Time
}
