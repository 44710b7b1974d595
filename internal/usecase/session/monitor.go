package session

import (
	"sync"
	"time"

	"github.com/nonstoperxd/Bor/internal/domain"
)

// DefaultTTL — срок жизни сессии портала с момента успешного логина.
const DefaultTTL = 24 * time.Hour

// Monitor следит за состоянием сессии портала. Сам он не делает сетевых
// вызовов: насос сверяется с ним перед каждым циклом, а сигналы о редиректе
// на логин приходят от адаптера портала через MarkInvalid.
type Monitor struct {
	mu    sync.Mutex
	state domain.SessionState
	ttl   time.Duration
	now   func() time.Time
}

// NewMonitor создаёт монитор с указанным сроком жизни сессии.
// Нулевой ttl заменяется на DefaultTTL.
func NewMonitor(ttl time.Duration) *Monitor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Monitor{ttl: ttl, now: time.Now}
}

// Valid сообщает, можно ли доверять текущей сессии. Сессия считается
// недействительной после MarkInvalid или по истечении срока жизни.
func (m *Monitor) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Authenticated {
		return false
	}
	if m.now().Sub(m.state.AuthenticatedAt) > m.ttl {
		m.state.Authenticated = false
		return false
	}
	return true
}

// MarkAuthenticated фиксирует успешный логин.
func (m *Monitor) MarkAuthenticated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = domain.SessionState{Authenticated: true, AuthenticatedAt: m.now()}
}

// MarkInvalid сбрасывает сессию.
func (m *Monitor) MarkInvalid() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Authenticated = false
}
