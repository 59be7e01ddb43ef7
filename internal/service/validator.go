package service

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	FieldFirstName = "firstName"
	FieldLastName  = "lastName"
	FieldEmail     = "email"
	FieldCode      = "code"

	minNameLength  = 2
	maxNameLength  = 50
	maxEmailLength = 255

	nameCharsetMessage = " may contain only letters, spaces and hyphens"
	decoyFieldMessage  = "first name" + nameCharsetMessage

	// DefaultMinFormFillTime — минимальное правдоподобное время заполнения формы человеком
	DefaultMinFormFillTime = 3 * time.Second
)

var (
	// Нестрогая проверка: local@domain.tld без пробелов и с одним @
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

// ValidationErrors сопоставляет имени поля текст ошибки.
// Пустая карта означает, что данные корректны.
type ValidationErrors map[string]string

// FieldList возвращает имена ошибочных полей в стабильном порядке
func (v ValidationErrors) FieldList() string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// ValidateFields проверяет имя, фамилию и email. Не паникует на любом вводе.
func ValidateFields(firstName, lastName, email string) ValidationErrors {
	errs := ValidationErrors{}
	if msg := validateName(firstName, "first name"); msg != "" {
		errs[FieldFirstName] = msg
	}
	if msg := validateName(lastName, "last name"); msg != "" {
		errs[FieldLastName] = msg
	}
	if msg := ValidateEmail(email); msg != "" {
		errs[FieldEmail] = msg
	}
	return errs
}

// ValidateEmail возвращает пустую строку для корректного email
func ValidateEmail(email string) string {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return "email is required"
	case len(email) > maxEmailLength:
		return "email is too long"
	case !emailPattern.MatchString(email):
		return "enter a valid email address"
	}
	return ""
}

// ValidateCode возвращает пустую строку для шестизначного кода
func ValidateCode(code string) string {
	code = strings.TrimSpace(code)
	switch {
	case code == "":
		return "code is required"
	case !codePattern.MatchString(code):
		return "code must be 6 digits"
	}
	return ""
}

// NormalizeName обрезает пробелы и приводит имя к NFC
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func validateName(raw, label string) string {
	name := NormalizeName(raw)
	if name == "" {
		return label + " is required"
	}
	n := utf8.RuneCountInString(name)
	if n < minNameLength || n > maxNameLength {
		return label + " must be 2-50 letters"
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' {
			return label + nameCharsetMessage
		}
	}
	return ""
}

// BotVerdict — результат проверки honeypot и времени заполнения
type BotVerdict struct {
	Rejected bool
	Reason   string
}

// BotPolicy содержит пороги защиты от ботов
type BotPolicy struct {
	MinFillTime time.Duration
}

// CheckBotSignals применяет политику по умолчанию
func CheckBotSignals(honeypot string, formStartTime, now time.Time) BotVerdict {
	return BotPolicy{MinFillTime: DefaultMinFormFillTime}.Check(honeypot, formStartTime, now)
}

// Check проверяет сначала honeypot, затем время заполнения. Нулевой
// formStartTime означает, что клиент его не передал, и проверка времени пропускается.
func (p BotPolicy) Check(honeypot string, formStartTime, now time.Time) BotVerdict {
	if honeypot != "" {
		return BotVerdict{Rejected: true, Reason: ReasonHoneypot}
	}
	if !formStartTime.IsZero() && now.Sub(formStartTime) < p.MinFillTime {
		return BotVerdict{Rejected: true, Reason: ReasonTooFast}
	}
	return BotVerdict{}
}
