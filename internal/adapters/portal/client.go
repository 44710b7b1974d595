package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
	"github.com/rs/zerolog"

	"github.com/nonstoperxd/Bor/internal/domain"
	"github.com/nonstoperxd/Bor/internal/infra/metrics"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Селекторы строк с сообщениями: первый набор, который даёт строки, выигрывает.
// Каскад догадок изолирован здесь, ядро от него не зависит.
var messageSelectors = []string{
	".sms-message",
	".message-item",
	".sms-row",
	"tr[data-message]",
	".live-sms-item",
	"tbody tr",
	".message",
}

var contentSelectors = []string{
	".message-content",
	".sms-content",
	".content",
	"[data-message]",
	".text-content",
}

var mobileSelectors = []string{
	".mobile-number",
	".phone-number",
	".number",
	"[data-mobile]",
}

// Маркеры того, что страница Live SMS действительно загрузилась.
var pageMarkers = []string{
	".sms-list",
	".message-list",
	".live-sms",
	"table",
	".content",
	"tbody",
}

// Config задаёт адреса и учётные данные портала.
type Config struct {
	LoginURL   string
	LiveSMSURL string
	Email      string
	Password   string
	Timeout    time.Duration
}

// Client ходит на портал обычным HTTP-клиентом с cookie-сессией
// и разбирает разметку через goquery.
type Client struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// NewClient создаёт клиент портала.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Jar: jar, Timeout: cfg.Timeout},
		log:    logger,
	}, nil
}

// Login открывает форму логина, забирает CSRF-токен и отправляет учётные
// данные. Возвращает domain.ErrLoginFailed, если портал оставил нас на
// странице логина.
func (c *Client) Login(ctx context.Context) error {
	doc, err := c.fetchDocument(ctx, c.cfg.LoginURL, "login_page")
	if err != nil {
		return fmt.Errorf("страница логина: %w", err)
	}

	form := url.Values{}
	form.Set("email", c.cfg.Email)
	form.Set("password", c.cfg.Password)
	form.Set("remember", "on")
	if token, ok := doc.Find("input[name='_token']").Attr("value"); ok {
		form.Set("_token", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveNetworkRequest("portal", "login_submit", start, err)
	if err != nil {
		return fmt.Errorf("отправка формы логина: %w", err)
	}
	defer resp.Body.Close()

	landed, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("разбор ответа логина: %w", err)
	}

	if !isLoginPage(resp.Request.URL) {
		c.log.Info().Msg("portal: логин успешен")
		return nil
	}
	// Остались на странице логина: ищем сообщение об ошибке для лога.
	if msg := strings.TrimSpace(landed.Find(".alert-danger, .error, .login-error").First().Text()); msg != "" {
		c.log.Error().Str("reason", msg).Msg("portal: портал отклонил логин")
	}
	return domain.ErrLoginFailed
}

// OpenLiveSMS переходит на страницу Live SMS и убеждается, что она загрузилась.
func (c *Client) OpenLiveSMS(ctx context.Context) error {
	doc, err := c.fetchDocument(ctx, c.cfg.LiveSMSURL, "open_live_sms")
	if err != nil {
		return err
	}
	for _, marker := range pageMarkers {
		if doc.Find(marker).Length() > 0 {
			c.log.Info().Str("marker", marker).Msg("portal: страница Live SMS загружена")
			return nil
		}
	}
	c.log.Warn().Msg("portal: на странице нет маркеров Live SMS")
	return domain.ErrSessionExpired
}

// Messages возвращает упорядоченный список строк со страницы Live SMS.
func (c *Client) Messages(ctx context.Context) ([]domain.RawMessage, error) {
	doc, err := c.fetchDocument(ctx, c.cfg.LiveSMSURL, "fetch_messages")
	if err != nil {
		return nil, err
	}

	var rows *goquery.Selection
	for _, selector := range messageSelectors {
		found := doc.Find(selector)
		if found.Length() > 0 {
			rows = found
			c.log.Debug().Str("selector", selector).Int("count", found.Length()).Msg("portal: строки найдены")
			break
		}
	}
	if rows == nil {
		return nil, nil
	}

	msgs := make([]domain.RawMessage, 0, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		msgs = append(msgs, parseRow(row))
	})
	return msgs, nil
}

// Close освобождает ресурсы клиента.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func parseRow(row *goquery.Selection) domain.RawMessage {
	var msg domain.RawMessage
	for _, selector := range contentSelectors {
		if text := strings.TrimSpace(row.Find(selector).First().Text()); text != "" {
			msg.Text = text
			break
		}
	}
	if msg.Text == "" {
		msg.Text = collapseSpaces(row.Text())
	}
	for _, selector := range mobileSelectors {
		if text := strings.TrimSpace(row.Find(selector).First().Text()); text != "" {
			msg.Mobile = text
			break
		}
	}
	return msg
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isLoginPage(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Path), "login")
}

// fetchDocument выполняет GET с повторами и разбирает HTML. Редирект на
// страницу логина — не повод для повтора: это сигнал истёкшей сессии.
func (c *Client) fetchDocument(ctx context.Context, pageURL, operation string) (*goquery.Document, error) {
	var doc *goquery.Document
	expired := false

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("User-Agent", userAgent)

			start := time.Now()
			resp, err := c.client.Do(req)
			metrics.ObserveNetworkRequest("portal", operation, start, err)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if pageURL != c.cfg.LoginURL && isLoginPage(resp.Request.URL) {
				expired = true
				return retry.Unrecoverable(domain.ErrSessionExpired)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			parsed, err := goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("разбор HTML: %w", err))
			}
			doc = parsed
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn().Err(err).Uint("attempt", n).Str("url", pageURL).Msg("portal: повтор запроса")
		}),
	)
	if expired {
		return nil, domain.ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}
