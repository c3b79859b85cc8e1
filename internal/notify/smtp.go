// Package notify emails profile lifecycle messages to submitters.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"profileflow/pkg/domain"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// ErrNoContact is returned when a notification has no address to send to.
var ErrNoContact = errors.New("notification has no contact address")

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // defaults to Username
	FromName string
}

// SMTPNotifier sends the welcome, amendment and error emails over SMTP.
type SMTPNotifier struct {
	from     string
	fromName string
	send     func(...*gomail.Message) error
	now      func() time.Time
}

// Option configures an SMTPNotifier.
type Option func(*SMTPNotifier)

// WithSender routes messages through s instead of dialling the SMTP server.
func WithSender(s gomail.Sender) Option {
	return func(n *SMTPNotifier) {
		n.send = func(m ...*gomail.Message) error { return gomail.Send(s, m...) }
	}
}

// WithClock overrides the time used for subject dates.
func WithClock(now func() time.Time) Option { return func(n *SMTPNotifier) { n.now = now } }

// NewSMTP returns a notifier that dials cfg for every message.
func NewSMTP(cfg Config, opts ...Option) (*SMTPNotifier, error) {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	if from == "" {
		return nil, fmt.Errorf("smtp: sender address required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	d := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	n := &SMTPNotifier{from: from, fromName: cfg.FromName, send: d.DialAndSend, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyNew sends the welcome email with the profile document attached.
func (s *SMTPNotifier) NotifyNew(_ context.Context, n domain.Notification) error {
	return s.deliver(n, newProfileMessage(n, s.now()), true)
}

// NotifyAmended sends the amendment confirmation with the updated document.
func (s *SMTPNotifier) NotifyAmended(_ context.Context, n domain.Notification) error {
	return s.deliver(n, amendedMessage(n, s.now()), true)
}

// NotifyError tells a claimant their Profile ID or Key did not match.
func (s *SMTPNotifier) NotifyError(_ context.Context, n domain.Notification) error {
	return s.deliver(n, errorMessage(n, s.now()), false)
}

func (s *SMTPNotifier) deliver(n domain.Notification, msg message, attach bool) error {
	to := strings.TrimSpace(n.Contact)
	if to == "" {
		return fmt.Errorf("email %s: %w", n.ProfileID, ErrNoContact)
	}
	m := gomail.NewMessage()
	if s.fromName != "" {
		m.SetAddressHeader("From", s.from, s.fromName)
	} else {
		m.SetHeader("From", s.from)
	}
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.subject)
	m.SetBody("text/plain", msg.body)
	if attach && n.Artifact != nil {
		attachArtifact(m, n.Artifact)
	}
	if err := s.send(m); err != nil {
		return fmt.Errorf("email %s: %w", n.ProfileID, err)
	}
	return nil
}

func attachArtifact(m *gomail.Message, a *domain.Artifact) {
	settings := []gomail.FileSetting{gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}})}
	if len(a.Data) > 0 {
		data := a.Data
		settings = append(settings, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
		m.Attach(a.Name, settings...)
		return
	}
	m.Attach(a.Path, append(settings, gomail.Rename(a.Name))...)
}

// LogNotifier records notifications in the log instead of sending them.
type LogNotifier struct {
	Logger *slog.Logger
}

// NotifyNew logs the welcome email.
func (l LogNotifier) NotifyNew(ctx context.Context, n domain.Notification) error {
	return l.log(ctx, "new", n)
}

// NotifyAmended logs the amendment email.
func (l LogNotifier) NotifyAmended(ctx context.Context, n domain.Notification) error {
	return l.log(ctx, "amended", n)
}

// NotifyError logs the error email.
func (l LogNotifier) NotifyError(ctx context.Context, n domain.Notification) error {
	return l.log(ctx, "error", n)
}

func (l LogNotifier) log(ctx context.Context, kind string, n domain.Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attachment := ""
	if n.Artifact != nil {
		attachment = n.Artifact.Key
	}
	logger.InfoContext(ctx, "dry run: email not sent", "kind", kind, "to", n.Contact, "profile_id", n.ProfileID, "attachment", attachment)
	return nil
}
