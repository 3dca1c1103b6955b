package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mailjet/mailjet-apiv3-go"
)

// Message is one transactional email.
type Message struct {
	ToEmail  string
	ToName   string
	Subject  string
	Text     string
	HTML     string
	CustomID string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type MailjetConfig struct {
	APIKey    string
	SecretKey string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

type MailjetSender struct {
	client  *mailjet.Client
	from    mailjet.RecipientV31
	timeout time.Duration
	logger  *slog.Logger
}

// NewMailjetSender returns a sender that only logs when credentials are
// missing, which keeps local development free of outbound mail.
func NewMailjetSender(cfg MailjetConfig, logger *slog.Logger) *MailjetSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &MailjetSender{
		from:    mailjet.RecipientV31{Email: cfg.FromEmail, Name: cfg.FromName},
		timeout: timeout,
		logger:  logger,
	}
	if cfg.APIKey != "" && cfg.SecretKey != "" {
		s.client = mailjet.NewMailjetClient(cfg.APIKey, cfg.SecretKey)
	}
	return s
}

func (s *MailjetSender) Send(ctx context.Context, msg Message) error {
	clean := func(v string) string {
		return strings.ReplaceAll(strings.TrimSpace(v), "\r\n", " ")
	}
	msg.ToEmail = clean(msg.ToEmail)
	msg.Subject = clean(msg.Subject)

	if msg.ToEmail == "" {
		return fmt.Errorf("recipient email is required")
	}

	if s.client == nil {
		s.logger.Info("[MOCK EMAIL]",
			"to", msg.ToEmail,
			"subject", msg.Subject,
			"custom_id", msg.CustomID,
		)
		return nil
	}

	messages := &mailjet.MessagesV31{
		Info: []mailjet.InfoMessagesV31{
			{
				From: &s.from,
				To: &mailjet.RecipientsV31{
					mailjet.RecipientV31{Email: msg.ToEmail, Name: msg.ToName},
				},
				Subject:  msg.Subject,
				TextPart: msg.Text,
				HTMLPart: msg.HTML,
				CustomID: msg.CustomID,
			},
		},
	}

	// the mailjet client has no context support, so bound it here
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := s.client.SendMailV31(messages)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", msg.ToEmail, err)
		}
		s.logger.Info("Email sent", "to", msg.ToEmail, "custom_id", msg.CustomID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sending email to %s timed out: %w", msg.ToEmail, ctx.Err())
	}
}

var _ Sender = (*MailjetSender)(nil)
