package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/clubhub/internal/model"
)

// Store описывает операции с данными, доступные как вне транзакции, так и внутри неё.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateMembershipStatus(ctx context.Context, userID int64, status model.MembershipStatus) error
	PromoteToMember(ctx context.Context, userID int64, uniqueID string, requireNonMember bool) (string, bool, error)

	TransactionIDExists(ctx context.Context, transactionID string) (bool, error)
	CreateApplication(ctx context.Context, app *model.Application) error
	GetApplication(ctx context.Context, id int64) (*model.Application, error)
	ListApplications(ctx context.Context, q model.ApplicationQuery) ([]model.Application, int, error)
	ListApplicationsByUser(ctx context.Context, userID int64) ([]model.Application, error)
	ReviewApplication(ctx context.Context, r model.Review) (bool, error)
	ApplicationStats(ctx context.Context) (model.MembershipStats, error)

	NextMemberSequence(ctx context.Context, department string, year int) (int, error)
	EnqueueOutbox(ctx context.Context, msgs ...model.OutboxMessage) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Queries реализует Store поверх пула соединений или открытой транзакции.
type Queries struct {
	db dbtx
}

var _ Store = (*Queries)(nil)

const userColumns = `id, name, email, password_hash, role, membership_status, unique_id,
	department, student_id, phone, created_at, updated_at`

func scanUser(row scanner) (*model.User, error) {
	var (
		u      model.User
		role   string
		status string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &status, &u.UniqueID,
		&u.Department, &u.StudentID, &u.Phone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.MembershipStatus = model.MembershipStatus(status)
	return &u, nil
}

// CreateUser создаёт нового пользователя и заполняет его идентификатор и временные метки.
func (q *Queries) CreateUser(ctx context.Context, u *model.User) error {
	if u.Role == "" {
		u.Role = model.RoleVisitor
	}
	if u.MembershipStatus == "" {
		u.MembershipStatus = model.MembershipNone
	}

	err := q.db.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, role, membership_status, department, student_id, phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		u.Name, u.Email, u.PasswordHash, string(u.Role), string(u.MembershipStatus),
		u.Department, u.StudentID, u.Phone,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == constraintUsersEmail {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по email.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpdateMembershipStatus меняет статус членства пользователя.
func (q *Queries) UpdateMembershipStatus(ctx context.Context, userID int64, status model.MembershipStatus) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE users SET membership_status = $2, updated_at = now() WHERE id = $1`,
		userID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update membership status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// PromoteToMember делает пользователя активным членом клуба и возвращает его итоговый уникальный идентификатор.
// Если у пользователя уже есть идентификатор, он сохраняется. Роли EXECUTIVE и ADMIN не понижаются.
// При requireNonMember обновление выполняется только для пользователя без членской роли.
func (q *Queries) PromoteToMember(ctx context.Context, userID int64, uniqueID string, requireNonMember bool) (string, bool, error) {
	sql := `UPDATE users
		SET role = CASE WHEN role IN ('EXECUTIVE', 'ADMIN') THEN role ELSE 'MEMBER' END,
		    membership_status = 'ACTIVE',
		    unique_id = COALESCE(unique_id, $2),
		    updated_at = now()
		WHERE id = $1`
	args := []any{userID, uniqueID}
	if requireNonMember {
		sql += ` AND role <> ALL($3)`
		args = append(args, roleStrings(model.MemberRoles))
	}
	sql += ` RETURNING unique_id`

	var assigned string
	err := q.db.QueryRow(ctx, sql, args...).Scan(&assigned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		if constraint, ok := uniqueViolation(err); ok {
			return "", false, fmt.Errorf("promote user: unique id collision on %s: %w", constraint, err)
		}
		return "", false, fmt.Errorf("promote user: %w", err)
	}
	return assigned, true, nil
}

// TransactionIDExists проверяет, использован ли идентификатор транзакции в любой заявке.
func (q *Queries) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM applications WHERE transaction_id = $1)`,
		transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check transaction id: %w", err)
	}
	return exists, nil
}

// CreateApplication сохраняет новую заявку на членство.
func (q *Queries) CreateApplication(ctx context.Context, app *model.Application) error {
	if app.Status == "" {
		app.Status = model.ApplicationPending
	}

	err := q.db.QueryRow(ctx,
		`INSERT INTO applications (user_id, payment_method, transaction_id, amount, phone_number, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		app.UserID, string(app.PaymentMethod), app.TransactionID, app.Amount, app.PhoneNumber, string(app.Status),
	).Scan(&app.ID, &app.CreatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case constraintApplicationsTxnID:
				return fmt.Errorf("%w: %s", ErrTransactionIDTaken, app.TransactionID)
			case constraintApplicationPending:
				return ErrPendingApplicationExists
			}
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

const applicationColumns = `a.id, a.user_id, a.payment_method, a.transaction_id, a.amount, a.phone_number,
	a.status, a.rejection_reason, a.reviewed_by, a.reviewed_at, a.created_at`

const applicantColumns = `u.name, u.email, u.department, u.student_id, u.phone, u.unique_id`

func scanApplication(row scanner, withApplicant bool) (*model.Application, error) {
	var (
		a      model.Application
		method string
		status string
	)
	dest := []any{&a.ID, &a.UserID, &method, &a.TransactionID, &a.Amount, &a.PhoneNumber,
		&status, &a.RejectionReason, &a.ReviewedBy, &a.ReviewedAt, &a.CreatedAt}

	var applicant model.Applicant
	if withApplicant {
		dest = append(dest, &applicant.Name, &applicant.Email, &applicant.Department,
			&applicant.StudentID, &applicant.Phone, &applicant.UniqueID)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	a.PaymentMethod = model.PaymentMethod(method)
	a.Status = model.ApplicationStatus(status)
	if withApplicant {
		a.Applicant = &applicant
	}
	return &a, nil
}

// GetApplication возвращает заявку вместе с профилем её владельца.
func (q *Queries) GetApplication(ctx context.Context, id int64) (*model.Application, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+applicationColumns+`, `+applicantColumns+`
		 FROM applications a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.id = $1`,
		id,
	)

	app, err := scanApplication(row, true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return app, nil
}

// ListApplications возвращает страницу заявок с учётом фильтра по статусу и поисковой строки, а также общее количество.
func (q *Queries) ListApplications(ctx context.Context, query model.ApplicationQuery) ([]model.Application, int, error) {
	var (
		where []string
		args  []any
	)

	if query.Status != "" && query.Status != model.StatusAll {
		args = append(args, query.Status)
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}

	if query.Search != "" {
		args = append(args, "%"+escapeLike(query.Search)+"%")
		where = append(where, fmt.Sprintf(
			`(a.transaction_id ILIKE $%[1]d OR a.phone_number ILIKE $%[1]d OR u.name ILIKE $%[1]d
			  OR u.email ILIKE $%[1]d OR u.unique_id ILIKE $%[1]d)`, len(args)))
	}

	from := ` FROM applications a JOIN users u ON u.id = a.user_id`
	if len(where) > 0 {
		from += ` WHERE ` + strings.Join(where, " AND ")
	}

	var total int
	if err := q.db.QueryRow(ctx, `SELECT count(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	pageArgs := append(append([]any{}, args...), query.Limit, query.Offset())
	rows, err := q.db.Query(ctx,
		`SELECT `+applicationColumns+`, `+applicantColumns+from+
			fmt.Sprintf(` ORDER BY a.created_at DESC, a.id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2),
		pageArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select applications: %w", err)
	}
	defer rows.Close()

	var res []model.Application
	for rows.Next() {
		app, err := scanApplication(rows, true)
		if err != nil {
			return nil, 0, fmt.Errorf("scan application: %w", err)
		}
		res = append(res, *app)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return res, total, nil
}

// ListApplicationsByUser возвращает историю заявок пользователя, начиная с последней.
func (q *Queries) ListApplicationsByUser(ctx context.Context, userID int64) ([]model.Application, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+applicationColumns+`
		 FROM applications a
		 WHERE a.user_id = $1
		 ORDER BY a.created_at DESC, a.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select user applications: %w", err)
	}
	defer rows.Close()

	var res []model.Application
	for rows.Next() {
		app, err := scanApplication(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		res = append(res, *app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ReviewApplication атомарно переводит заявку из PENDING в итоговый статус.
// Возвращает false, если заявка уже была рассмотрена.
func (q *Queries) ReviewApplication(ctx context.Context, r model.Review) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE applications
		 SET status = $2, reviewed_by = $3, reviewed_at = $4, rejection_reason = $5
		 WHERE id = $1 AND status = $6`,
		r.ApplicationID, string(r.Status), r.ReviewerID, r.ReviewedAt, r.Reason, string(model.ApplicationPending),
	)
	if err != nil {
		return false, fmt.Errorf("review application: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplicationStats возвращает счётчики заявок по статусам и общее число членов клуба.
func (q *Queries) ApplicationStats(ctx context.Context) (model.MembershipStats, error) {
	var s model.MembershipStats
	err := q.db.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'PENDING'),
		        count(*) FILTER (WHERE status = 'APPROVED'),
		        count(*) FILTER (WHERE status = 'REJECTED')
		 FROM applications`,
	).Scan(&s.TotalApplications, &s.Pending, &s.Approved, &s.Rejected)
	if err != nil {
		return s, fmt.Errorf("count applications: %w", err)
	}

	err = q.db.QueryRow(ctx,
		`SELECT count(*) FROM users WHERE role = ANY($1)`,
		roleStrings(model.MemberRoles),
	).Scan(&s.TotalMembers)
	if err != nil {
		return s, fmt.Errorf("count members: %w", err)
	}

	return s, nil
}

// NextMemberSequence выделяет следующий порядковый номер члена для кафедры и года.
func (q *Queries) NextMemberSequence(ctx context.Context, department string, year int) (int, error) {
	var seq int
	err := q.db.QueryRow(ctx,
		`INSERT INTO member_id_sequences (department, year, last_value)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (department, year)
		 DO UPDATE SET last_value = member_id_sequences.last_value + 1
		 RETURNING last_value`,
		department, year,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next member sequence: %w", err)
	}
	return seq, nil
}

func roleStrings(roles []model.Role) []string {
	res := make([]string, 0, len(roles))
	for _, r := range roles {
		res = append(res, string(r))
	}
	return res
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
