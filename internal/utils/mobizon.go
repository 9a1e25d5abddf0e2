package utils

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultMobizonURL = "https://api.mobizon.kz/service/message/sendsmsmessage"

type Client struct {
	ApiKey  string
	Sender  string // опционально
	DryRun  bool   // dry-run режим
	BaseURL string

	http   *resty.Client
	logger *slog.Logger
}

type SendSMSResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

func NewClientWithOptions(apiKey, sender string, dryRun bool, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		ApiKey:  apiKey,
		Sender:  sender,
		DryRun:  dryRun,
		BaseURL: DefaultMobizonURL,
		http:    resty.New().SetTimeout(timeout),
		logger:  logger,
	}
}

// SendSMS — отправка SMS через Mobizon (или имитация в dry-run)
func (c *Client) SendSMS(ctx context.Context, to, text string) (*SendSMSResponse, error) {
	// DRY-RUN: не делаем HTTP-запрос
	if c.DryRun || c.ApiKey == "" || c.ApiKey == "dry-run" {
		c.logger.Info("[mobizon][dry-run]", "to", to, "sender", c.Sender, "text", text)
		return &SendSMSResponse{Code: 0}, nil
	}

	form := map[string]string{
		"apiKey":    c.ApiKey,
		"recipient": to,
		"text":      text,
	}
	if c.Sender != "" {
		form["from"] = c.Sender // Если нужно указать Sender ID
	}

	var result SendSMSResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		Post(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("send SMS request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("mobizon http status %d", resp.StatusCode())
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("mobizon returned error code %d: %s", result.Code, result.Message)
	}
	c.logger.Info("[mobizon][send] ok", "to", MaskRecipient(to), "message_id", result.Data.MessageID)
	return &result, nil
}
