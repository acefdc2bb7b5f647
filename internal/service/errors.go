package service

// Error описывает ошибку бизнес-логики, текст которой можно показать пользователю.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

// Ошибки жизненного цикла заявки на членство.
var (
	ErrUserNotFound         = &Error{"User not found"}
	ErrAlreadyMember        = &Error{"You are already a club member"}
	ErrPendingApplication   = &Error{"You already have a pending application"}
	ErrMembershipActive     = &Error{"Your membership is already active"}
	ErrTransactionUsed      = &Error{"This transaction ID has already been used"}
	ErrApplicationNotFound  = &Error{"Application not found"}
	ErrAlreadyReviewed      = &Error{"This application has already been reviewed"}
	ErrInvalidPaymentMethod = &Error{"Payment method must be one of BKASH, NAGAD, ROCKET"}
	ErrInvalidTransactionID = &Error{"Transaction ID must be 6 to 40 letters or digits"}
	ErrInvalidAmount        = &Error{"Amount must be greater than zero"}
	ErrInvalidPhone         = &Error{"Phone number must be a valid Bangladeshi mobile number"}
	ErrInvalidStatusFilter  = &Error{"Status must be one of ALL, PENDING, APPROVED, REJECTED"}
	ErrMembershipNotActive  = &Error{"Membership is not active"}
	ErrTargetAlreadyMember  = &Error{"User is already a club member"}
	ErrInvalidRegistration  = &Error{"Name, email, department and a password of at least 8 characters are required"}
	ErrEmailTaken           = &Error{"An account with this email already exists"}
	ErrInvalidCredentials   = &Error{"Invalid email or password"}
)
