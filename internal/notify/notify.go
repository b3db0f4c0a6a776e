// Package notify tells the project owner how an export ended.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

// Message is one notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages. Callers log delivery errors and carry on.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Enabled reports whether a relay is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// New returns an SMTP notifier when cfg names a relay and a log-only notifier otherwise.
func New(cfg SMTPConfig) Notifier {
	if !cfg.Enabled() {
		return LogNotifier{}
	}
	return NewSMTP(cfg)
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg Message) error {
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg(msg.Body)
	return nil
}

// SMTPNotifier sends mail with PLAIN authentication, over implicit TLS on port 465
// and mandatory STARTTLS on any other port.
type SMTPNotifier struct {
	cfg SMTPConfig
	// extra client options, applied last
	options []mail.Option
}

// NewSMTP creates an SMTPNotifier. Port defaults to 465.
func NewSMTP(cfg SMTPConfig) *SMTPNotifier {
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) Notify(ctx context.Context, msg Message) error {
	rcpts := recipients(msg.To)
	if len(rcpts) == 0 {
		return errors.New("notification has no recipient")
	}
	m, err := n.message(msg, rcpts)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(n.cfg.Host, n.clientOptions()...)
	if err != nil {
		return fmt.Errorf("invalid smtp settings: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send notification via %s: %w", n.cfg.Host, err)
	}

	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("Notification sent")
	return nil
}

// message renders msg as UTF-8 plain text.
func (n *SMTPNotifier) message(msg Message, rcpts []string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.cfg.From, err)
	}
	if err := m.To(rcpts...); err != nil {
		return nil, fmt.Errorf("invalid recipient in %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func (n *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(n.cfg.Timeout),
	}
	if n.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	return append(opts, n.options...)
}

func recipients(to string) []string {
	var out []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
