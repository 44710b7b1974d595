package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nonstoperxd/Bor/internal/domain"
	"github.com/nonstoperxd/Bor/internal/usecase/dedup"
)

type fakePortal struct {
	mu         sync.Mutex
	loginErrs  []error
	openErrs   []error
	msgs       [][]domain.RawMessage
	msgErrs    []error
	loginCalls int
	msgCalls   int
	onMessages func(call int)
}

func (f *fakePortal) Login(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if len(f.loginErrs) > 0 {
		err := f.loginErrs[0]
		f.loginErrs = f.loginErrs[1:]
		return err
	}
	return nil
}

func (f *fakePortal) OpenLiveSMS(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		return err
	}
	return nil
}

func (f *fakePortal) Messages(context.Context) ([]domain.RawMessage, error) {
	f.mu.Lock()
	f.msgCalls++
	call := f.msgCalls
	var msgs []domain.RawMessage
	var err error
	if len(f.msgErrs) > 0 {
		err = f.msgErrs[0]
		f.msgErrs = f.msgErrs[1:]
	}
	if err == nil && len(f.msgs) > 0 {
		msgs = f.msgs[0]
		if len(f.msgs) > 1 {
			f.msgs = f.msgs[1:]
		}
	}
	hook := f.onMessages
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return msgs, err
}

func (f *fakePortal) Close() error { return nil }

type fakeNotifier struct {
	mu   sync.Mutex
	errs []error
	sent []domain.OTPRecord
}

func (f *fakeNotifier) SendOTP(_ context.Context, rec domain.OTPRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, rec)
	return nil
}

func (f *fakeNotifier) SendStatus(context.Context, string) error { return nil }

// slowNotifier имитирует медленный Telegram и считает одновременные отправки.
type slowNotifier struct {
	mu       sync.Mutex
	delay    time.Duration
	inflight int
	peak     int
	sent     int
}

func (f *slowNotifier) SendOTP(context.Context, domain.OTPRecord) error {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inflight--
	f.sent++
	f.mu.Unlock()
	return nil
}

func (f *slowNotifier) SendStatus(context.Context, string) error { return nil }

func (f *slowNotifier) stats() (peak, sent int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak, f.sent
}

func (f *fakeNotifier) sentOTPs() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.sent))
	for _, rec := range f.sent {
		out[rec.OTP] = true
	}
	return out
}

type fakeSession struct {
	mu            sync.Mutex
	valid         bool
	invalidated   int
	authenticated int
}

func (f *fakeSession) Valid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid
}

func (f *fakeSession) MarkAuthenticated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = true
	f.authenticated++
}

func (f *fakeSession) MarkInvalid() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = false
	f.invalidated++
}

func fastConfig() Config {
	return Config{
		PollInterval:     time.Millisecond,
		LoginRetries:     2,
		LoginBaseDelay:   time.Millisecond,
		DegradedWait:     time.Millisecond,
		FailureWait:      time.Millisecond,
		FailureThreshold: 5,
		FailureCooldown:  time.Millisecond,
		DispatchWorkers:  4,
	}
}

func newTestService(portal domain.PageSource, notifier domain.Notifier, cfg Config) (*Service, *dedup.SeenSet) {
	seen := dedup.NewSeenSet()
	return NewService(portal, notifier, seen, &fakeSession{valid: true}, cfg, zerolog.Nop()), seen
}

func TestDispatchNewDelta(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _ := newTestService(&fakePortal{}, notifier, fastConfig())
	svc.lastCount = 3

	msgs := []domain.RawMessage{
		{Text: "code: 9991"},
		{Text: "code: 9992"},
		{Text: "code: 9993"},
		{Text: "code: 1111"},
		{Text: "code: 2222"},
	}
	svc.dispatchNew(context.Background(), msgs)
	svc.wg.Wait()

	if svc.lastCount != 5 {
		t.Fatalf("ожидали lastCount=5, получили %d", svc.lastCount)
	}
	sent := notifier.sentOTPs()
	if len(sent) != 2 || !sent["1111"] || !sent["2222"] {
		t.Fatalf("ожидали отправку только двух новых сообщений, получили %v", sent)
	}
}

func TestDispatchNewNoDelta(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _ := newTestService(&fakePortal{}, notifier, fastConfig())
	svc.lastCount = 5

	// Список короче запомненного: дельта отрицательная, ничего не делаем.
	svc.dispatchNew(context.Background(), []domain.RawMessage{{Text: "code: 1111"}})
	svc.wg.Wait()

	if len(notifier.sentOTPs()) != 0 {
		t.Fatalf("не ожидали отправок при дельте <= 0")
	}
	if svc.lastCount != 5 {
		t.Fatalf("счётчик не должен откатываться, получили %d", svc.lastCount)
	}
}

func TestDispatchNewBoundsConcurrentSends(t *testing.T) {
	cfg := fastConfig()
	cfg.DispatchWorkers = 4

	notifier := &slowNotifier{delay: 20 * time.Millisecond}
	svc, _ := newTestService(&fakePortal{}, notifier, cfg)

	msgs := make([]domain.RawMessage, 32)
	for i := range msgs {
		msgs[i] = domain.RawMessage{Text: fmt.Sprintf("code: %04d", 1000+i)}
	}
	svc.dispatchNew(context.Background(), msgs)
	svc.wg.Wait()

	peak, sent := notifier.stats()
	if peak > cfg.DispatchWorkers {
		t.Fatalf("одновременных отправок %d, предел %d", peak, cfg.DispatchWorkers)
	}
	if sent != len(msgs) {
		t.Fatalf("ожидали %d отправок, получили %d", len(msgs), sent)
	}
}

func TestProcessSuppressesSameKeyInFlight(t *testing.T) {
	notifier := &slowNotifier{delay: 50 * time.Millisecond}
	svc, seen := newTestService(&fakePortal{}, notifier, fastConfig())

	msg := domain.RawMessage{Text: "Your WhatsApp code: 48213"}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.process(context.Background(), msg)
		}()
	}
	wg.Wait()

	if _, sent := notifier.stats(); sent != 1 {
		t.Fatalf("одинаковый ключ должен отправляться один раз, получили %d", sent)
	}
	if !seen.Seen("48213_Unknown_Whatsapp") {
		t.Fatalf("ключ должен быть помечен после успешной отправки")
	}
}

func TestDispatchCountAdvancesDespiteSendFailure(t *testing.T) {
	notifier := &fakeNotifier{errs: []error{errors.New("телеграм недоступен")}}
	svc, seen := newTestService(&fakePortal{}, notifier, fastConfig())

	svc.dispatchNew(context.Background(), []domain.RawMessage{{Text: "code: 48213"}})
	svc.wg.Wait()

	if svc.lastCount != 1 {
		t.Fatalf("счётчик должен сдвинуться несмотря на ошибку отправки, получили %d", svc.lastCount)
	}
	if seen.Len() != 0 {
		t.Fatalf("ключ не должен помечаться при неудачной отправке")
	}
}

func TestProcessRetryAfterSendFailure(t *testing.T) {
	notifier := &fakeNotifier{errs: []error{errors.New("временная ошибка")}}
	svc, seen := newTestService(&fakePortal{}, notifier, fastConfig())

	msg := domain.RawMessage{Text: "Your WhatsApp code: 48213"}
	svc.process(context.Background(), msg)

	if seen.Len() != 0 {
		t.Fatalf("после неудачной отправки ключ должен остаться непомеченным")
	}

	// Повтор того же сообщения на следующем опросе проходит и помечает ключ.
	svc.process(context.Background(), msg)
	if !seen.Seen("48213_Unknown_Whatsapp") {
		t.Fatalf("после успешной отправки ключ должен быть помечен")
	}
	if len(notifier.sentOTPs()) != 1 {
		t.Fatalf("ожидали одну успешную отправку")
	}
}

func TestProcessSuppressesDuplicates(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, seen := newTestService(&fakePortal{}, notifier, fastConfig())
	seen.MarkSeen("48213_Unknown_Whatsapp")

	svc.process(context.Background(), domain.RawMessage{Text: "Your WhatsApp code: 48213"})

	if len(notifier.sentOTPs()) != 0 {
		t.Fatalf("дубликат не должен отправляться повторно")
	}
}

func TestProcessDropsMessagesWithoutOTP(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, seen := newTestService(&fakePortal{}, notifier, fastConfig())

	svc.process(context.Background(), domain.RawMessage{Text: "welcome to the portal"})

	if len(notifier.sentOTPs()) != 0 || seen.Len() != 0 {
		t.Fatalf("сообщение без кода должно молча отбрасываться")
	}
}

func TestRunReloginAfterSessionExpired(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	portal := &fakePortal{
		msgErrs: []error{domain.ErrSessionExpired},
		msgs:    [][]domain.RawMessage{nil},
	}
	portal.onMessages = func(call int) {
		if call >= 2 {
			cancel()
		}
	}
	session := &fakeSession{valid: true}
	notifier := &fakeNotifier{}
	svc := NewService(portal, notifier, dedup.NewSeenSet(), session, fastConfig(), zerolog.Nop())

	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("цикл не остановился")
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.invalidated == 0 {
		t.Fatalf("ожидали сброс сессии после редиректа на логин")
	}
	if session.authenticated == 0 {
		t.Fatalf("ожидали повторный логин после сброса")
	}
	if portal.loginCalls == 0 {
		t.Fatalf("ожидали вызов Login")
	}
}

func TestRunResetsFailureCounterOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	portal := &fakePortal{
		msgErrs: []error{errors.New("таймаут"), errors.New("таймаут")},
		msgs:    [][]domain.RawMessage{nil},
	}
	portal.onMessages = func(call int) {
		if call >= 3 {
			cancel()
		}
	}
	svc, _ := newTestService(portal, &fakeNotifier{}, fastConfig())

	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("цикл не остановился")
	}

	if svc.failures != 0 {
		t.Fatalf("успешный опрос должен сбрасывать счётчик ошибок, получили %d", svc.failures)
	}
}

func TestRunSurvivesCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := fastConfig()
	cfg.FailureThreshold = 2

	portal := &fakePortal{
		msgErrs: []error{errors.New("таймаут"), errors.New("таймаут")},
		msgs:    [][]domain.RawMessage{nil},
	}
	portal.onMessages = func(call int) {
		if call >= 3 {
			cancel()
		}
	}
	svc, _ := newTestService(portal, &fakeNotifier{}, cfg)

	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("цикл должен пережить длинную паузу и продолжить работу")
	}

	portal.mu.Lock()
	defer portal.mu.Unlock()
	if portal.msgCalls < 3 {
		t.Fatalf("ожидали продолжение опроса после паузы, вызовов: %d", portal.msgCalls)
	}
}

func TestReloginGivesUpAfterRetryCeiling(t *testing.T) {
	portal := &fakePortal{
		loginErrs: []error{domain.ErrLoginFailed, domain.ErrLoginFailed, domain.ErrLoginFailed},
	}
	cfg := fastConfig()
	cfg.LoginRetries = 3
	session := &fakeSession{}
	svc := NewService(portal, &fakeNotifier{}, dedup.NewSeenSet(), session, cfg, zerolog.Nop())

	if svc.relogin(context.Background()) {
		t.Fatalf("relogin должен вернуть false после исчерпания попыток")
	}
	if portal.loginCalls != 3 {
		t.Fatalf("ожидали 3 попытки логина, получили %d", portal.loginCalls)
	}
	if session.authenticated != 0 {
		t.Fatalf("сессия не должна помечаться валидной")
	}
}

func TestReloginReturnsWithoutBackoffAfterFinalAttempt(t *testing.T) {
	portal := &fakePortal{loginErrs: []error{domain.ErrLoginFailed}}
	cfg := fastConfig()
	cfg.LoginRetries = 1
	cfg.LoginBaseDelay = time.Hour
	svc := NewService(portal, &fakeNotifier{}, dedup.NewSeenSet(), &fakeSession{}, cfg, zerolog.Nop())

	done := make(chan bool, 1)
	go func() { done <- svc.relogin(context.Background()) }()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("relogin должен вернуть false при неудачном логине")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("после последней неудачной попытки не должно быть паузы")
	}
}
