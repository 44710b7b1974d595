package domain

import (
	"fmt"
	"time"
)

// RawMessage представляет одну строку на странице Live SMS.
// Mobile заполняется, если у строки есть отдельная колонка с номером.
type RawMessage struct {
	Text   string
	Mobile string
}

// OTPRecord содержит извлечённый одноразовый код с метаданными.
// Запись неизменяема после создания.
type OTPRecord struct {
	OTP        string
	Service    string
	Mobile     string
	RawText    string
	ObservedAt time.Time
}

// DedupKey возвращает составной ключ события OTP. Две записи с одинаковым
// кортежем (otp, mobile, service) считаются одним и тем же событием,
// независимо от различий в исходном тексте.
func (r OTPRecord) DedupKey() string {
	return fmt.Sprintf("%s_%s_%s", r.OTP, r.Mobile, r.Service)
}

// SessionState хранит состояние авторизации на портале.
type SessionState struct {
	Authenticated   bool
	AuthenticatedAt time.Time
}
