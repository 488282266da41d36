// Package notification sends new-lead e-mails to the addresses a practice
// lists in its widget configuration.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

const (
	newLeadSubject = "New consultation request from {{first_name}} {{last_name}}"
	newLeadBody    = `A new consultation request was submitted to {{practice}}.

Name:    {{first_name}} {{last_name}}
Email:   {{email}}
Phone:   {{phone}}
Areas:   {{regions}}
Concerns: {{concerns}}
Page:    {{source_url}}

Submission ID: {{id}}
`
)

// Render replaces {{key}} placeholders in tpl. Unknown placeholders are left
// untouched.
func Render(tpl string, data map[string]string) string {
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// NewLead is the subset of a submission included in the e-mail.
type NewLead struct {
	ID        string
	Practice  string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Regions   []string
	Concerns  []string
	SourceURL string
}

func (l NewLead) templateData() map[string]string {
	orDash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	return map[string]string{
		"id":         l.ID,
		"practice":   l.Practice,
		"first_name": l.FirstName,
		"last_name":  l.LastName,
		"email":      l.Email,
		"phone":      orDash(l.Phone),
		"regions":    orDash(strings.Join(l.Regions, ", ")),
		"concerns":   orDash(strings.Join(l.Concerns, ", ")),
		"source_url": orDash(l.SourceURL),
	}
}

type Notifier struct {
	sender  EmailSender
	logger  zerolog.Logger
	timeout time.Duration
}

func NewNotifier(sender EmailSender, logger zerolog.Logger) *Notifier {
	return &Notifier{
		sender:  sender,
		logger:  logger.With().Str("component", "notification").Logger(),
		timeout: 30 * time.Second,
	}
}

// NotifyNewLead sends one message per recipient. A failure for one address
// does not stop the others; all failures are returned joined.
func (n *Notifier) NotifyNewLead(ctx context.Context, recipients []string, lead NewLead) error {
	if len(recipients) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	data := lead.templateData()
	subject := Render(newLeadSubject, data)
	body := Render(newLeadBody, data)

	var errs []error
	for _, to := range recipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		if err := n.sender.SendEmail(ctx, to, subject, body); err != nil {
			n.logger.Warn().Err(err).Str("submission_id", lead.ID).Str("to", to).Msg("new lead e-mail failed")
			errs = append(errs, fmt.Errorf("send to %s: %w", to, err))
			continue
		}
		n.logger.Debug().Str("submission_id", lead.ID).Str("to", to).Msg("new lead e-mail sent")
	}
	return errors.Join(errs...)
}

// LogSender stands in for SMTP when none is configured; messages are logged
// instead of sent.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Msg("e-mail not sent: SMTP not configured")
	return nil
}

type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender records calls for tests.
type MockEmailSender struct {
	mu      sync.Mutex
	calls   []EmailCall
	FailFor map[string]error
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if err, ok := m.FailFor[to]; ok {
		return err
	}
	return nil
}

func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
