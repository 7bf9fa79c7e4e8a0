// Package mail wraps SMTP delivery behind a small Transport interface so
// the pipeline can be tested without a mail server.
package mail

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Transport delivers messages. Implementations return the provider
// message ID on success.
type Transport interface {
	Deliver(ctx context.Context, msg Message) (string, error)
}

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// smtpTransport implements Transport over authenticated SMTP.
type smtpTransport struct {
	client *gomail.Client
	from   string
}

// NewSMTP creates an SMTP-backed Transport.
func NewSMTP(cfg Config) (Transport, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "mail: create smtp client")
	}

	return &smtpTransport{client: client, from: cfg.From}, nil
}

func (t *smtpTransport) Deliver(ctx context.Context, msg Message) (string, error) {
	m := gomail.NewMsg()
	if err := m.From(t.from); err != nil {
		return "", eris.Wrap(err, "mail: set from")
	}
	if err := m.To(msg.To); err != nil {
		return "", eris.Wrap(err, "mail: set to")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	m.SetMessageID()

	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return "", eris.Wrap(err, "mail: dial and send")
	}

	return m.GetMessageID(), nil
}

// logTransport records messages in the log instead of sending them. Used
// when no SMTP host is configured.
type logTransport struct{}

// NewLog creates a Transport that only logs deliveries.
func NewLog() Transport {
	return logTransport{}
}

func (logTransport) Deliver(_ context.Context, msg Message) (string, error) {
	id := uuid.New().String()
	zap.L().Info("mail not configured, logging delivery",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("message_id", id),
	)
	return id, nil
}
