// Package mail sends account emails (verification, password change notices).
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

func (c SMTPConfig) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

type SMTP struct {
	cfg SMTPConfig
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg}
}

// New returns an SMTP mailer, or one that only logs when SMTP is not configured.
func New(cfg SMTPConfig) Mailer {
	if !cfg.IsConfigured() {
		return LogMailer{}
	}
	return NewSMTP(cfg)
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}

	addr := s.cfg.Host + ":" + s.cfg.Port
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, buildEmail(s.cfg.From, msg)); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func buildEmail(from string, msg Message) []byte {
	headers := []string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.Body)
}

// LogMailer drops messages after logging them.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	log.Infof("mail to %s not sent (SMTP not configured): %s\n%s", msg.To, msg.Subject, msg.Body)
	return nil
}

// Recorder keeps sent messages in memory. Meant for tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

// SendAsync delivers msg in the background; failures are logged, never returned.
func SendAsync(m Mailer, msg Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := m.Send(ctx, msg); err != nil {
			log.Errorf("mail to %s failed: %v", msg.To, err)
		}
	}()
}

func VerificationEmail(to, username, link string) Message {
	return Message{
		To:      to,
		Subject: "Verify your email - RentEase",
		Body: fmt.Sprintf(
			"Hi %s,\n\nPlease confirm your email address by opening the link below:\n\n%s\n\nThe link expires in 24 hours.\n",
			username,
			link,
		),
	}
}

func PasswordChangedEmail(to, username string) Message {
	return Message{
		To:      to,
		Subject: "Your password was changed - RentEase",
		Body: fmt.Sprintf(
			"Hi %s,\n\nThe password of your RentEase account was just changed. If this wasn't you, contact support right away.\n",
			username,
		),
	}
}
