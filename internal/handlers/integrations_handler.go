package handlers

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"collegenetwork/internal/services"
	"collegenetwork/internal/utils"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// telegramReplier — ответ в чат; реализован services.TelegramService.
type telegramReplier interface {
	Reply(chatID int64, text string) error
}

// IntegrationsHandler — вебхук Telegram-бота: подсказывает recipient id и выдаёт код по /code.
type IntegrationsHandler struct {
	TG     telegramReplier
	OTP    services.OTP
	Secret string
	Logger *slog.Logger
}

func NewIntegrationsHandler(tg telegramReplier, otp services.OTP, secret string, logger *slog.Logger) *IntegrationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegrationsHandler{TG: tg, OTP: otp, Secret: secret, Logger: logger}
}

type tgUpdate struct {
	Message *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Webhook всегда отвечает 200, чтобы Telegram не ретраил апдейты.
func (h *IntegrationsHandler) Webhook(c *gin.Context) {
	if h.Secret != "" {
		got := c.GetHeader(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: CodeUnauthorized, Message: "bad webhook secret"})
			return
		}
	}

	var up tgUpdate
	if err := c.ShouldBindJSON(&up); err != nil || up.Message == nil {
		if err != nil {
			h.Logger.Warn("[tg][webhook] bind json error", "err", err)
		}
		c.Status(http.StatusOK)
		return
	}

	text := strings.TrimSpace(up.Message.Text)
	chatID := up.Message.Chat.ID
	recipient := utils.TelegramPrefix + strconv.FormatInt(chatID, 10)
	h.Logger.Info("[tg][webhook] incoming", "chat_id", chatID, "command", firstWord(text))

	switch {
	case strings.HasPrefix(text, "/start"):
		h.reply(chatID, fmt.Sprintf("Hi! Your College Network recipient id is <code>%s</code>.\nSend /code to get a one-time code here.", recipient))

	case strings.HasPrefix(text, "/code"):
		_, err := h.OTP.Send(c.Request.Context(), recipient)
		var rl *services.RateLimitError
		switch {
		case err == nil:
			// код уже отправлен каналом telegram
		case errors.As(err, &rl):
			h.reply(chatID, fmt.Sprintf("Please wait %d seconds before requesting a new code.", int(rl.RetryAfter.Seconds())+1))
		default:
			h.Logger.Error("[tg][webhook] send code failed", "chat_id", chatID, "err", err)
			h.reply(chatID, "Could not send a code right now, please try later.")
		}

	default:
		h.reply(chatID, "Unknown command. Use /start or /code.")
	}

	c.Status(http.StatusOK)
}

func (h *IntegrationsHandler) reply(chatID int64, text string) {
	if err := h.TG.Reply(chatID, text); err != nil {
		h.Logger.Error("[tg][webhook] reply failed", "chat_id", chatID, "err", err)
	}
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
