package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain text mail through an SMTP relay.
type SMTPMailer struct {
	addr string
	host string
	from string
	auth smtp.Auth
	send sendFunc
}

type SMTPOption func(*SMTPMailer)

// WithSendFunc replaces smtp.SendMail, mostly for tests.
func WithSendFunc(send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) SMTPOption {
	return func(m *SMTPMailer) {
		m.send = send
	}
}

func NewSMTPMailer(host, port, user, password, from string, options ...SMTPOption) (*SMTPMailer, error) {
	if host == "" {
		return nil, errors.New("[NewSMTPMailer] host is required")
	}
	if from == "" {
		return nil, errors.New("[NewSMTPMailer] from is required")
	}
	m := &SMTPMailer{
		addr: net.JoinHostPort(host, port),
		host: host,
		from: from,
		send: smtp.SendMail,
	}
	if user != "" {
		m.auth = smtp.PlainAuth("", user, password, host)
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.send(m.addr, m.auth, m.from, []string{msg.To}, m.compose(msg)); err != nil {
		return fmt.Errorf("[SMTPMailer.Send] %s: %w", m.addr, err)
	}
	return nil
}

func (m *SMTPMailer) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogMailer only logs what it would have sent. It is used when no SMTP
// host is configured.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail sent")
	return nil
}
