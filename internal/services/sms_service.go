package services

import (
	"context"
	"fmt"

	"collegenetwork/internal/utils"
)

// smsSender — то, что нужно от Mobizon-клиента.
type smsSender interface {
	SendSMS(ctx context.Context, to, text string) (*utils.SendSMSResponse, error)
}

// SMSService доставляет коды по SMS через Mobizon.
type SMSService struct {
	Client smsSender
}

func NewSMSService(client *utils.Client) *SMSService {
	return &SMSService{Client: client}
}

func (s *SMSService) Deliver(ctx context.Context, msg Message) error {
	if _, err := s.Client.SendSMS(ctx, msg.Recipient, msg.Text()); err != nil {
		return fmt.Errorf("mobizon error: %w", err)
	}
	return nil
}
