package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/logging/logger"
)

type sendGridSender struct {
	key      string
	host     string
	from     string
	fromName string
}

// newSendGrid returns a SendGrid sender. An empty host uses the public API.
func newSendGrid(cfg *config.Email, host string) *sendGridSender {
	return &sendGridSender{key: cfg.SendGrid.Key, host: host, from: cfg.From, fromName: cfg.FromName}
}

func (s *sendGridSender) send(ctx context.Context, m *Message) (string, error) {
	from := mail.NewEmail(s.fromName, s.from)
	to := mail.NewEmail("", m.To)
	message := mail.NewSingleEmail(from, m.Subject, to, m.Text, m.HTML)

	request := sendgrid.GetRequest(s.key, "/v3/mail/send", s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return "", fmt.Errorf("sendgrid: %w", err)
	}
	if response.StatusCode != 202 {
		return "", fmt.Errorf("sendgrid: unexpected status code %d", response.StatusCode)
	}
	var id string
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		id = ids[0]
	}
	logger.Info(ctx, "email sent", "provider", "sendgrid", "message_id", id)
	return id, nil
}
