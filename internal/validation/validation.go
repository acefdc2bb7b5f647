// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"strings"
	"unicode"
)

const (
	minTransactionIDLen = 3
	maxTransactionIDLen = 64
)

// transactionIDSeparators допускаются внутри идентификатора транзакции наряду с буквами и цифрами.
const transactionIDSeparators = "-_./"

// NormalizeTransactionID убирает пробелы по краям и приводит идентификатор транзакции к верхнему регистру.
func NormalizeTransactionID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// IsValidTransactionID проверяет длину идентификатора транзакции и то, что он состоит из латинских букв,
// цифр и разделителей. Разделитель не может стоять первым или последним.
func IsValidTransactionID(id string) bool {
	if len(id) < minTransactionIDLen || len(id) > maxTransactionIDLen {
		return false
	}

	for i, ch := range id {
		if ch > unicode.MaxASCII {
			return false
		}
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			continue
		}
		if !strings.ContainsRune(transactionIDSeparators, ch) || i == 0 || i == len(id)-1 {
			return false
		}
	}

	return true
}

// NormalizePhone приводит номер мобильного телефона к локальному формату 01XXXXXXXXX.
// Допускаются префиксы +880 и 880, пробелы и дефисы.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, ch := range phone {
		if unicode.IsDigit(ch) && ch <= unicode.MaxASCII {
			b.WriteRune(ch)
		}
	}

	digits := b.String()
	if strings.HasPrefix(digits, "880") {
		digits = digits[2:]
	}
	return digits
}

// IsValidPhone проверяет номер мобильного оператора Бангладеш в локальном формате.
func IsValidPhone(phone string) bool {
	if len(phone) != 11 || !strings.HasPrefix(phone, "01") {
		return false
	}

	// Третья цифра задаёт оператора: 3-9.
	return phone[2] >= '3' && phone[2] <= '9'
}

// NormalizeEmail убирает пробелы и приводит email к нижнему регистру.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail проверяет, что строка является одиночным адресом без отображаемого имени.
func IsValidEmail(email string) bool {
	if email == "" {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}

	return addr.Address == email && strings.Contains(email, "@")
}
