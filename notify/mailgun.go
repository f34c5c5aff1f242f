package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/logging/logger"
)

type mailgunSender struct {
	mg   *mailgun.MailgunImpl
	from string
}

func newMailgun(cfg *config.Email) *mailgunSender {
	mg := mailgun.NewMailgun(cfg.Mailgun.Domain, cfg.Mailgun.Key)
	if cfg.Mailgun.APIBase != "" {
		mg.SetAPIBase(cfg.Mailgun.APIBase)
	}
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	return &mailgunSender{mg: mg, from: from}
}

func (s *mailgunSender) send(ctx context.Context, m *Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	message := s.mg.NewMessage(s.from, m.Subject, m.Text, m.To)
	message.SetHtml(m.HTML)

	_, id, err := s.mg.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("mailgun: %w", err)
	}
	logger.Info(ctx, "email queued", "provider", "mailgun", "message_id", id)
	return id, nil
}
