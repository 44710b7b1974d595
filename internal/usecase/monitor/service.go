package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nonstoperxd/Bor/internal/domain"
	"github.com/nonstoperxd/Bor/internal/infra/metrics"
	"github.com/nonstoperxd/Bor/internal/usecase/otp"
)

// Config задаёт тайминги насоса. Нулевые поля заменяются значениями по умолчанию.
type Config struct {
	PollInterval     time.Duration // пауза между успешными циклами
	LoginRetries     int           // попыток повторного логина за один заход
	LoginBaseDelay   time.Duration // база экспоненциальной паузы: attempt × base
	DegradedWait     time.Duration // пауза после исчерпания попыток логина
	FailureWait      time.Duration // пауза после одиночной ошибки опроса
	FailureThreshold int           // подряд идущих ошибок до длинной паузы
	FailureCooldown  time.Duration // длинная пауза после серии ошибок
	DispatchWorkers  int           // предел одновременных отправок
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.LoginRetries <= 0 {
		c.LoginRetries = 3
	}
	if c.LoginBaseDelay <= 0 {
		c.LoginBaseDelay = time.Minute
	}
	if c.DegradedWait <= 0 {
		c.DegradedWait = 5 * time.Minute
	}
	if c.FailureWait <= 0 {
		c.FailureWait = 30 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.FailureCooldown <= 0 {
		c.FailureCooldown = 10 * time.Minute
	}
	if c.DispatchWorkers <= 0 {
		c.DispatchWorkers = 4
	}
	return c
}

// Service — насос сообщений: опрашивает портал, вычисляет дельту новых строк
// и прогоняет их через извлечение, дедупликацию и отправку.
type Service struct {
	portal   domain.PageSource
	notifier domain.Notifier
	seen     domain.SeenStore
	session  domain.SessionTracker
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	// lastCount принадлежит только циклу Run.
	lastCount int
	failures  int

	sem chan struct{}
	wg  sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewService создаёт насос.
func NewService(portal domain.PageSource, notifier domain.Notifier, seen domain.SeenStore, session domain.SessionTracker, cfg Config, log zerolog.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		portal:   portal,
		notifier: notifier,
		seen:     seen,
		session:  session,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sem:      make(chan struct{}, cfg.DispatchWorkers),
		inflight: make(map[string]struct{}),
	}
}

// Run крутит цикл мониторинга до отмены контекста. Обычные ошибки никогда
// не завершают цикл: единственный выход — внешний сигнал остановки.
func (s *Service) Run(ctx context.Context) {
	s.log.Info().Msg("monitor: запуск цикла мониторинга")
	defer s.wg.Wait()

	for {
		if ctx.Err() != nil {
			s.log.Info().Msg("monitor: остановка по сигналу")
			return
		}

		if !s.session.Valid() {
			if !s.relogin(ctx) {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn().Msg("monitor: попытки логина исчерпаны, продолжаем в деградированном режиме")
				if !s.sleep(ctx, s.cfg.DegradedWait) {
					return
				}
				continue
			}
		}

		msgs, err := s.portal.Messages(ctx)
		metrics.PollCycles.Inc()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, domain.ErrSessionExpired) {
				s.log.Warn().Msg("monitor: портал перенаправил на логин, сессия сброшена")
				s.session.MarkInvalid()
				continue
			}
			s.failures++
			metrics.PollErrors.Inc()
			if s.failures >= s.cfg.FailureThreshold {
				s.log.Warn().Int("failures", s.failures).Dur("cooldown", s.cfg.FailureCooldown).
					Msg("monitor: слишком много ошибок подряд, длинная пауза")
				if !s.sleep(ctx, s.cfg.FailureCooldown) {
					return
				}
				s.failures = 0
			} else {
				s.log.Error().Err(err).Int("failures", s.failures).Msg("monitor: ошибка получения сообщений")
				if !s.sleep(ctx, s.cfg.FailureWait) {
					return
				}
			}
			continue
		}

		s.failures = 0
		s.dispatchNew(ctx, msgs)

		if !s.sleep(ctx, s.cfg.PollInterval) {
			return
		}
	}
}

// dispatchNew отправляет в обработку хвост списка, появившийся после
// прошлого опроса. Счётчик двигается вперёд после перечисления дельты,
// независимо от исхода отправок.
func (s *Service) dispatchNew(ctx context.Context, msgs []domain.RawMessage) {
	delta := len(msgs) - s.lastCount
	if delta <= 0 {
		return
	}

	s.log.Info().Int("delta", delta).Int("total", len(msgs)).Msg("monitor: обнаружены новые сообщения")
	metrics.MessagesObserved.Add(float64(delta))

	for _, msg := range msgs[len(msgs)-delta:] {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			s.lastCount = len(msgs)
			return
		}
		s.wg.Add(1)
		go func(m domain.RawMessage) {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.process(ctx, m)
		}(msg)
	}

	s.lastCount = len(msgs)
}

// process прогоняет одно сообщение через конвейер. Отсутствие кода — не
// ошибка; ключ помечается отправленным только после подтверждённой доставки,
// чтобы неудачная отправка могла повториться на следующем опросе.
func (s *Service) process(ctx context.Context, msg domain.RawMessage) {
	rec, ok := otp.BuildRecord(msg, s.now())
	if !ok {
		return
	}
	metrics.OTPExtracted.Inc()

	key := rec.DedupKey()
	if s.seen.Seen(key) {
		s.log.Debug().Str("otp", rec.OTP).Msg("monitor: дубликат, пропускаем")
		metrics.DuplicatesSuppressed.Inc()
		return
	}
	if !s.claim(key) {
		s.log.Debug().Str("otp", rec.OTP).Msg("monitor: такой же ключ уже отправляется, пропускаем")
		metrics.DuplicatesSuppressed.Inc()
		return
	}
	defer s.release(key)

	if err := s.notifier.SendOTP(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("otp", rec.OTP).Msg("monitor: не удалось отправить OTP")
		metrics.SendErrors.Inc()
		return
	}

	s.seen.MarkSeen(key)
	metrics.OTPForwarded.Inc()
	s.log.Info().Str("otp", rec.OTP).Str("service", rec.Service).Msg("monitor: OTP отправлен")
}

// relogin выполняет протокол повторной авторизации: логин, переход на страницу
// Live SMS, пауза attempt × base между попытками. После последней неудачной
// попытки пауза не нужна: дальше вызывающий сам решает, сколько ждать.
func (s *Service) relogin(ctx context.Context) bool {
	for attempt := 1; attempt <= s.cfg.LoginRetries; attempt++ {
		metrics.ReloginAttempts.Inc()
		err := s.portal.Login(ctx)
		if err == nil {
			err = s.portal.OpenLiveSMS(ctx)
		}
		if err == nil {
			s.session.MarkAuthenticated()
			s.failures = 0
			s.log.Info().Int("attempt", attempt).Msg("monitor: повторный логин успешен")
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		s.log.Error().Err(err).Int("attempt", attempt).Msg("monitor: попытка логина не удалась")
		if attempt == s.cfg.LoginRetries {
			break
		}
		if !s.sleep(ctx, time.Duration(attempt)*s.cfg.LoginBaseDelay) {
			return false
		}
	}
	return false
}

// claim резервирует ключ на время отправки: второе сообщение с тем же ключом
// внутри одной дельты подавляется как дубликат, пока первое ещё в полёте.
func (s *Service) claim(key string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[key]; ok {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) release(key string) {
	s.inflightMu.Lock()
	delete(s.inflight, key)
	s.inflightMu.Unlock()
}

// sleep ждёт указанное время или отмену контекста.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
