package domain

import "context"

// PageSource абстрагирует портал с живыми SMS. Детали разметки и подбора
// селекторов скрыты за этим интерфейсом.
type PageSource interface {
	Login(ctx context.Context) error
	OpenLiveSMS(ctx context.Context) error
	Messages(ctx context.Context) ([]RawMessage, error)
	Close() error
}

// Notifier отправляет уведомления в целевой чат.
type Notifier interface {
	SendOTP(ctx context.Context, rec OTPRecord) error
	SendStatus(ctx context.Context, text string) error
}

// SeenStore хранит ключи уже отправленных OTP.
// Реализация обязана выдерживать конкурентные вызовы.
type SeenStore interface {
	Seen(key string) bool
	MarkSeen(key string)
}

// SessionTracker отвечает на вопрос, можно ли доверять текущей сессии портала.
type SessionTracker interface {
	Valid() bool
	MarkAuthenticated()
	MarkInvalid()
}
