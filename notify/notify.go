// Package notify tells users when a batch has finished.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/studio233/batchd/batch/structs"
	"github.com/studio233/batchd/config"
)

// Notifier delivers batch completion notices
type Notifier interface {
	BatchDone(ctx context.Context, s *structs.BatchSummary) error
}

// Message is a rendered notification
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// sender delivers a rendered message through a provider
type sender interface {
	send(ctx context.Context, m *Message) (string, error)
}

// Noop discards notifications
type Noop struct{}

func (Noop) BatchDone(context.Context, *structs.BatchSummary) error { return nil }

// New returns the notifier for cfg.Provider, or Noop when e-mail is not configured
func New(cfg *config.Email) (Notifier, error) {
	if cfg == nil || cfg.Provider == "" {
		return Noop{}, nil
	}
	if cfg.From == "" {
		return nil, errors.New("email.from is required")
	}
	var s sender
	switch cfg.Provider {
	case "sendgrid":
		if cfg.SendGrid.Key == "" {
			return nil, errors.New("invalid SendGrid configuration")
		}
		s = newSendGrid(cfg, "")
	case "mailgun":
		if cfg.Mailgun.Key == "" || cfg.Mailgun.Domain == "" {
			return nil, errors.New("invalid Mailgun configuration")
		}
		s = newMailgun(cfg)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
	return &Mailer{sender: s}, nil
}

// Mailer renders summaries into e-mails
type Mailer struct {
	sender sender
}

func (m *Mailer) BatchDone(ctx context.Context, s *structs.BatchSummary) error {
	if s.Email == "" {
		return nil
	}
	_, err := m.sender.send(ctx, Render(s))
	return err
}

// Render builds the completion e-mail for s
func Render(s *structs.BatchSummary) *Message {
	total := len(s.JobIDs)
	subject := fmt.Sprintf("Your batch is ready: %d of %d images processed", s.Succeeded(), total)

	var text, body strings.Builder
	fmt.Fprintf(&text, "Batch %s finished.\n\n", s.ID)
	fmt.Fprintf(&text, "Completed: %d\nFailed: %d\n", s.Succeeded(), s.Failed())
	if s.Refunded > 0 {
		fmt.Fprintf(&text, "Credits refunded: %d\n", s.Refunded)
	}
	body.WriteString("<p>Batch <code>" + html.EscapeString(s.ID) + "</code> finished.</p><ul>")
	for _, j := range s.Jobs {
		switch j.Status {
		case structs.StatusCompleted:
			fmt.Fprintf(&text, "\n%s: %s", j.Operation, j.ResultURL)
			body.WriteString(fmt.Sprintf(`<li>%s: <a href="%s">result</a></li>`, html.EscapeString(j.Operation), html.EscapeString(j.ResultURL)))
		case structs.StatusFailed:
			fmt.Fprintf(&text, "\n%s: failed (%s)", j.Operation, j.Error)
			body.WriteString(fmt.Sprintf("<li>%s: failed (%s)</li>", html.EscapeString(j.Operation), html.EscapeString(j.Error)))
		}
	}
	body.WriteString("</ul>")
	if s.Refunded > 0 {
		body.WriteString(fmt.Sprintf("<p>%d credits were refunded for failed images.</p>", s.Refunded))
	}
	return &Message{To: s.Email, Subject: subject, Text: text.String(), HTML: body.String()}
}
