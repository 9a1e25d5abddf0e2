package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"collegenetwork/internal/utils"
)

// telegramSender — подмножество *tgbotapi.BotAPI.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramService доставляет коды в чат "tg:<chat_id>".
type TelegramService struct {
	bot telegramSender
}

func NewTelegramService(botToken string) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramService{bot: bot}, nil
}

func (t *TelegramService) Deliver(ctx context.Context, msg Message) error {
	chatID, err := strconv.ParseInt(strings.TrimPrefix(msg.Recipient, utils.TelegramPrefix), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", msg.Recipient, err)
	}
	out := tgbotapi.NewMessage(chatID, fmt.Sprintf("College Network code: <b>%s</b>\nValid for %d min.", msg.Code, ttlMinutes(msg.TTL)))
	out.ParseMode = tgbotapi.ModeHTML
	out.DisableWebPagePreview = true

	return runWithContext(ctx, func() error {
		if _, err := t.bot.Send(out); err != nil {
			return fmt.Errorf("telegram sendMessage failed: %w", err)
		}
		return nil
	})
}

// Reply — произвольное сообщение в чат (ответы вебхука).
func (t *TelegramService) Reply(chatID int64, text string) error {
	out := tgbotapi.NewMessage(chatID, text)
	out.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(out); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}
