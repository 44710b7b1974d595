package bot

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/nonstoperxd/Bor/internal/domain"
	"github.com/nonstoperxd/Bor/internal/infra/metrics"
)

const messageFooter = "𝑩𝒐𝒕 𝒃𝒚 𝑫𝒆𝒗  \n𝑫𝑿𝑫 𝑾𝒐𝒓𝒌𝒛𝒐𝒏𝒆 𝒊𝒏𝒄."

const excerptLimit = 100

// Notifier отправляет уведомления в целевой чат Telegram.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

// NewNotifier создаёт отправитель.
func NewNotifier(api *tgbotapi.BotAPI, chatID int64, logger zerolog.Logger) *Notifier {
	return &Notifier{bot: api, chatID: chatID, log: logger}
}

// SendOTP отправляет форматированную карточку OTP. Ошибка возвращается
// вызывающему: от неё зависит, будет ли ключ помечен отправленным.
func (n *Notifier) SendOTP(ctx context.Context, rec domain.OTPRecord) error {
	return n.send(ctx, FormatOTPMessage(rec))
}

// SendStatus отправляет служебное уведомление о состоянии бота.
func (n *Notifier) SendStatus(ctx context.Context, text string) error {
	return n.send(ctx, "🤖 <b>Bot Status Update</b>\n\n"+html.EscapeString(text)+"\n\n"+messageFooter)
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(n.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", start, err)
		if err != nil {
			return fmt.Errorf("отправка в чат %d: %w", n.chatID, err)
		}
	}
	return nil
}

// FormatOTPMessage формирует HTML-карточку OTP: сервис, номер, код, время
// и усечённый фрагмент исходного текста.
func FormatOTPMessage(rec domain.OTPRecord) string {
	var b strings.Builder
	b.WriteString("<b>𝑵𝑬𝑾 𝑶𝑻𝑷 𝑹𝑬𝑪𝑬𝑰𝑽𝑬𝑫 🟢</b>\n\n")
	b.WriteString("<b>Live SMS - IVORY COAST</b>\n")
	b.WriteString("<b>SID</b> - " + html.EscapeString(rec.Service) + "\n")
	b.WriteString("<b>Mobile</b> - <code>" + html.EscapeString(rec.Mobile) + "</code>\n")
	b.WriteString("<b>OTP</b> - <code>" + html.EscapeString(rec.OTP) + "</code>\n")
	b.WriteString("<b>Time</b> - " + rec.ObservedAt.Format("2006-01-02 15:04:05") + "\n\n")
	b.WriteString("<i>Message:</i> " + html.EscapeString(excerpt(rec.RawText)) + "\n\n")
	b.WriteString(messageFooter)
	return b.String()
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return string(runes[:excerptLimit]) + "..."
}
