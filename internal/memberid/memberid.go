// Package memberid формирует уникальные идентификаторы членов клуба в разрезе кафедр.
package memberid

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultDepartment используется, если у пользователя не указана кафедра.
const DefaultDepartment = "GEN"

const maxDepartmentLen = 10

// Department нормализует название кафедры в код: только латинские буквы и цифры в верхнем регистре.
func Department(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
		if b.Len() == maxDepartmentLen {
			break
		}
	}
	if b.Len() == 0 {
		return DefaultDepartment
	}
	return b.String()
}

// Format собирает идентификатор вида CSE-2026-0042. Номер дополняется нулями до четырёх знаков.
func Format(department string, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%04d", Department(department), year, seq)
}
