package bot

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/nonstoperxd/Bor/internal/infra/metrics"
)

const welcomeText = `🤖 <b>Telegram OTP Bot</b>

I'm monitoring live SMS for new OTPs and will forward them to this channel.

<b>Commands:</b>
/status - Check bot status
/start - Show this message

` + messageFooter

const statusText = "✅ Bot is running and monitoring for new OTPs"

// Handler обслуживает входящие команды бота через long polling.
type Handler struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

// NewHandler создаёт обработчик команд.
func NewHandler(api *tgbotapi.BotAPI, logger zerolog.Logger) *Handler {
	return &Handler{bot: api, log: logger}
}

// Run читает апдейты до отмены контекста.
func (h *Handler) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := h.bot.GetUpdatesChan(cfg)
	h.log.Info().Msg("bot: приём команд запущен")

	for {
		select {
		case <-ctx.Done():
			h.bot.StopReceivingUpdates()
			h.log.Info().Msg("bot: приём команд остановлен")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			h.handleUpdate(upd)
		}
	}
}

func (h *Handler) handleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	text := strings.TrimSpace(upd.Message.Text)
	switch {
	case strings.HasPrefix(text, "/status"):
		h.reply(upd.Message.Chat.ID, statusText, "")
	case strings.HasPrefix(text, "/start"):
		h.reply(upd.Message.Chat.ID, welcomeText, tgbotapi.ModeHTML)
	}
}

func (h *Handler) reply(chatID int64, text, parseMode string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	start := time.Now()
	_, err := h.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "reply_command", start, err)
	if err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("bot: не удалось ответить на команду")
	}
}
