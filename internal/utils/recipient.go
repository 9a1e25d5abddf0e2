package utils

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"collegenetwork/internal/models"
)

var (
	ErrEmptyRecipient   = errors.New("recipient is required")
	ErrInvalidRecipient = errors.New("recipient must be an email, a phone number or tg:<chat_id>")

	phoneRe    = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)
	telegramRe = regexp.MustCompile(`^tg:-?[0-9]{1,20}$`)
)

const TelegramPrefix = "tg:"

// NormalizeRecipient приводит адрес к каноническому виду и определяет канал:
// email — в нижний регистр, телефон — "+" и цифры, telegram — "tg:<chat_id>".
func NormalizeRecipient(raw string) (recipient, channel string, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", "", ErrEmptyRecipient
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, TelegramPrefix) {
		if !telegramRe.MatchString(lower) {
			return "", "", ErrInvalidRecipient
		}
		return lower, models.ChannelTelegram, nil
	}

	if strings.Contains(s, "@") {
		addr, perr := mail.ParseAddress(s)
		if perr != nil || addr.Address != s || addr.Name != "" {
			return "", "", ErrInvalidRecipient
		}
		at := strings.LastIndex(addr.Address, "@")
		if !strings.Contains(addr.Address[at+1:], ".") {
			return "", "", ErrInvalidRecipient
		}
		return strings.ToLower(addr.Address), models.ChannelEmail, nil
	}

	phone := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(s)
	if !phoneRe.MatchString(phone) {
		return "", "", ErrInvalidRecipient
	}
	// один номер = один ключ: всегда в виде +<digits>
	return "+" + strings.TrimPrefix(phone, "+"), models.ChannelSMS, nil
}

// MaskRecipient — для логов: a***@x.com, +7******12.
func MaskRecipient(recipient string) string {
	if at := strings.LastIndex(recipient, "@"); at > 0 {
		return recipient[:1] + "***" + recipient[at:]
	}
	if strings.HasPrefix(recipient, TelegramPrefix) {
		return recipient
	}
	if len(recipient) <= 4 {
		return "****"
	}
	return recipient[:2] + strings.Repeat("*", len(recipient)-4) + recipient[len(recipient)-2:]
}
