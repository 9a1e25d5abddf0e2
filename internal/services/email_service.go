package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

const otpEmailSubject = "Your College Network verification code"

func otpEmailBody(msg Message) string {
	return fmt.Sprintf(`
		<h3>Verification code</h3>
		<p>Use the following code to continue: <strong>%s</strong></p>
		<p>The code expires in %d minutes and can be used once.</p>
		<p>If you did not request this code, you can ignore this email.</p>
	`, msg.Code, ttlMinutes(msg.TTL))
}

// smtpEmailService — доставка через SMTP (gomail).
type smtpEmailService struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail, fromName string) Channel {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &smtpEmailService{
		dialer: dialer,
		from:   fromEmail,
		name:   fromName,
	}
}

func (s *smtpEmailService) Deliver(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.name)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", otpEmailSubject)
	m.SetBody("text/plain", msg.Text())
	m.AddAlternative("text/html", otpEmailBody(msg))

	// gomail не умеет context — ограничиваем ожиданием
	if err := runWithContext(ctx, func() error { return s.dialer.DialAndSend(m) }); err != nil {
		return fmt.Errorf("failed to send otp email: %w", err)
	}
	return nil
}

// sendgridEmailService — доставка через SendGrid API.
type sendgridEmailService struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

func NewSendGridEmailService(apiKey, fromEmail, fromName string) Channel {
	return &sendgridEmailService{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(fromName, fromEmail),
	}
}

func (s *sendgridEmailService) Deliver(ctx context.Context, msg Message) error {
	to := sgmail.NewEmail("", msg.Recipient)
	m := sgmail.NewSingleEmail(s.from, otpEmailSubject, to, msg.Text(), otpEmailBody(msg))
	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
