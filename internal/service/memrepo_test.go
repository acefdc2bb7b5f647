package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/clubhub/internal/model"
	"github.com/mmeshcher/clubhub/internal/repository"
)

// memRepo хранит данные в памяти и эмулирует транзакции: InTx сериализован и откатывает изменения при ошибке.
type memRepo struct {
	mu sync.Mutex

	users  map[int64]*model.User
	apps   map[int64]*model.Application
	seqs   map[string]int
	outbox []model.OutboxMessage

	nextUserID int64
	nextAppID  int64
	clock      time.Time

	enqueueErr error
	txCount    int
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		users:  map[int64]*model.User{},
		apps:   map[int64]*model.Application{},
		seqs:   map[string]int{},
		clock:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

type memSnapshot struct {
	users      map[int64]model.User
	apps       map[int64]model.Application
	seqs       map[string]int
	outbox     []model.OutboxMessage
	nextUserID int64
	nextAppID  int64
}

func (m *memRepo) snapshot() memSnapshot {
	s := memSnapshot{
		users:      map[int64]model.User{},
		apps:       map[int64]model.Application{},
		seqs:       map[string]int{},
		outbox:     append([]model.OutboxMessage(nil), m.outbox...),
		nextUserID: m.nextUserID,
		nextAppID:  m.nextAppID,
	}
	for k, v := range m.users {
		s.users[k] = *v
	}
	for k, v := range m.apps {
		s.apps[k] = *v
	}
	for k, v := range m.seqs {
		s.seqs[k] = v
	}
	return s
}

func (m *memRepo) restore(s memSnapshot) {
	m.users = map[int64]*model.User{}
	for k, v := range s.users {
		u := v
		m.users[k] = &u
	}
	m.apps = map[int64]*model.Application{}
	for k, v := range s.apps {
		a := v
		m.apps[k] = &a
	}
	m.seqs = s.seqs
	m.outbox = s.outbox
	m.nextUserID = s.nextUserID
	m.nextAppID = s.nextAppID
}

func (m *memRepo) InTx(ctx context.Context, fn func(repository.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txCount++
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memRepo) Ping(ctx context.Context) error { return nil }

func (m *memRepo) Close() error { return nil }

func (m *memRepo) addUser(u model.User) *model.User {
	if u.Role == "" {
		u.Role = model.RoleVisitor
	}
	if u.MembershipStatus == "" {
		u.MembershipStatus = model.MembershipNone
	}
	m.nextUserID++
	u.ID = m.nextUserID
	u.CreatedAt = m.tick()
	m.users[u.ID] = &u
	return &u
}

func (m *memRepo) CreateUser(ctx context.Context, u *model.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrUserExists
		}
	}
	created := m.addUser(*u)
	*u = *created
	return nil
}

func (m *memRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memRepo) UpdateMembershipStatus(ctx context.Context, userID int64, status model.MembershipStatus) error {
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.MembershipStatus = status
	return nil
}

func (m *memRepo) PromoteToMember(ctx context.Context, userID int64, uniqueID string, requireNonMember bool) (string, bool, error) {
	u, ok := m.users[userID]
	if !ok {
		return "", false, nil
	}
	if requireNonMember && u.Role.IsMember() {
		return "", false, nil
	}
	if u.Role != model.RoleExecutive && u.Role != model.RoleAdmin {
		u.Role = model.RoleMember
	}
	u.MembershipStatus = model.MembershipActive
	if u.UniqueID == nil {
		id := uniqueID
		u.UniqueID = &id
	}
	return *u.UniqueID, true, nil
}

func (m *memRepo) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	for _, a := range m.apps {
		if a.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CreateApplication(ctx context.Context, app *model.Application) error {
	for _, a := range m.apps {
		if a.TransactionID == app.TransactionID {
			return repository.ErrTransactionIDTaken
		}
		if a.UserID == app.UserID && a.Status == model.ApplicationPending {
			return repository.ErrPendingApplicationExists
		}
	}
	m.nextAppID++
	app.ID = m.nextAppID
	app.CreatedAt = m.tick()
	cp := *app
	m.apps[app.ID] = &cp
	return nil
}

func (m *memRepo) withApplicant(a model.Application) model.Application {
	if u, ok := m.users[a.UserID]; ok {
		a.Applicant = &model.Applicant{
			Name:       u.Name,
			Email:      u.Email,
			Department: u.Department,
			StudentID:  u.StudentID,
			Phone:      u.Phone,
			UniqueID:   u.UniqueID,
		}
	}
	return a
}

func (m *memRepo) GetApplication(ctx context.Context, id int64) (*model.Application, error) {
	a, ok := m.apps[id]
	if !ok {
		return nil, repository.ErrApplicationNotFound
	}
	res := m.withApplicant(*a)
	return &res, nil
}

func (m *memRepo) sorted(filter func(model.Application) bool) []model.Application {
	var res []model.Application
	for _, a := range m.apps {
		if filter(*a) {
			res = append(res, *a)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res
}

func (m *memRepo) ListApplications(ctx context.Context, q model.ApplicationQuery) ([]model.Application, int, error) {
	search := strings.ToLower(q.Search)
	matched := m.sorted(func(a model.Application) bool {
		if q.Status != model.StatusAll && string(a.Status) != q.Status {
			return false
		}
		if search == "" {
			return true
		}
		a = m.withApplicant(a)
		fields := []string{a.TransactionID, a.Applicant.Name, a.Applicant.Email}
		if a.PhoneNumber != nil {
			fields = append(fields, *a.PhoneNumber)
		}
		if a.Applicant.UniqueID != nil {
			fields = append(fields, *a.Applicant.UniqueID)
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), search) {
				return true
			}
		}
		return false
	})

	total := len(matched)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	page := make([]model.Application, 0, end-start)
	for _, a := range matched[start:end] {
		page = append(page, m.withApplicant(a))
	}
	return page, total, nil
}

func (m *memRepo) ListApplicationsByUser(ctx context.Context, userID int64) ([]model.Application, error) {
	return m.sorted(func(a model.Application) bool { return a.UserID == userID }), nil
}

func (m *memRepo) ReviewApplication(ctx context.Context, r model.Review) (bool, error) {
	a, ok := m.apps[r.ApplicationID]
	if !ok || a.Status != model.ApplicationPending {
		return false, nil
	}
	a.Status = r.Status
	a.ReviewedBy = &r.ReviewerID
	at := r.ReviewedAt
	a.ReviewedAt = &at
	a.RejectionReason = r.Reason
	return true, nil
}

func (m *memRepo) ApplicationStats(ctx context.Context) (model.MembershipStats, error) {
	var s model.MembershipStats
	for _, a := range m.apps {
		s.TotalApplications++
		switch a.Status {
		case model.ApplicationPending:
			s.Pending++
		case model.ApplicationApproved:
			s.Approved++
		case model.ApplicationRejected:
			s.Rejected++
		}
	}
	for _, u := range m.users {
		if u.Role.IsMember() {
			s.TotalMembers++
		}
	}
	return s, nil
}

func (m *memRepo) NextMemberSequence(ctx context.Context, department string, year int) (int, error) {
	key := department + "/" + time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
	m.seqs[key]++
	return m.seqs[key], nil
}

func (m *memRepo) EnqueueOutbox(ctx context.Context, msgs ...model.OutboxMessage) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.outbox = append(m.outbox, msgs...)
	return nil
}

func (m *memRepo) messages(topic string) []model.OutboxMessage {
	var res []model.OutboxMessage
	for _, msg := range m.outbox {
		if msg.Topic == topic {
			res = append(res, msg)
		}
	}
	return res
}
