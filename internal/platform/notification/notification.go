// Package notification renders and dispatches the messages the worker sends
// in response to booking lifecycle events.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NotificationType represents the channel used to deliver a notification.
type NotificationType string

const (
	TypeEmail NotificationType = "email"
	TypeSMS   NotificationType = "sms"
)

// Notification represents a single outbound notification.
type Notification struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	Recipient  string           `json:"recipient"`
	Subject    string           `json:"subject,omitempty"`
	Body       string           `json:"body"`
	TemplateID string           `json:"template_id,omitempty"`
	Status     string           `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	SentAt     *time.Time       `json:"sent_at,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Subject string           `json:"subject"`
	Body    string           `json:"body"`
	Type    NotificationType `json:"type"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "booking-confirmed",
			Name:    "Booking Confirmed",
			Subject: "Your session is booked",
			Body:    "Dear {{patient_name}}, your rehabilitation session on {{date}} at {{time}} with {{practitioner}} is confirmed.",
			Type:    TypeEmail,
		},
		{
			ID:      "booking-rescheduled",
			Name:    "Booking Rescheduled",
			Subject: "Your session has been rescheduled",
			Body:    "Dear {{patient_name}}, your session has been moved to {{date}} at {{time}} with {{practitioner}}.",
			Type:    TypeEmail,
		},
		{
			ID:      "booking-cancelled",
			Name:    "Booking Cancelled",
			Subject: "Your session has been cancelled",
			Body:    "Dear {{patient_name}}, your session on {{date}} at {{time}} was cancelled. Reason: {{reason}}.",
			Type:    TypeEmail,
		},
		{
			ID:      "room-open",
			Name:    "Room Open",
			Subject: "Your session room is open",
			Body:    "Dear {{patient_name}}, the video room for your session at {{time}} is now open. You can join up to 90 minutes before the start.",
			Type:    TypeSMS,
		},
		{
			ID:      "session-completed",
			Name:    "Session Completed",
			Subject: "Session complete",
			Body:    "Dear {{patient_name}}, your session on {{date}} is complete. {{remaining}} session(s) remain on your course.",
			Type:    TypeEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Manager orchestrates rendering and dispatching notifications.
type Manager struct {
	emailSender EmailSender
	smsSender   SMSSender
	templates   *TemplateEngine
}

// NewManager constructs a Manager.
func NewManager(email EmailSender, sms SMSSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		emailSender: email,
		smsSender:   sms,
		templates:   tpl,
	}
}

// Send dispatches a notification through the appropriate channel and stamps
// the outcome on the notification.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	var sendErr error
	switch n.Type {
	case TypeEmail:
		sendErr = m.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case TypeSMS:
		sendErr = m.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	default:
		sendErr = fmt.Errorf("unsupported notification type: %s", n.Type)
	}

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
		return sendErr
	}

	n.Status = "sent"
	sentAt := time.Now().UTC()
	n.SentAt = &sentAt
	return nil
}

// SendFromTemplate renders a template and sends the resulting notification.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	m.templates.mu.RLock()
	nType := m.templates.templates[templateID].Type
	m.templates.mu.RUnlock()

	n := &Notification{
		Type:       nType,
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// LogSender writes messages through a callback instead of a real provider.
// The worker uses it until a delivery provider is configured.
type LogSender struct {
	Logf func(format string, args ...interface{})
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	if s.Logf != nil {
		s.Logf("email to=%s subject=%q body=%q", to, subject, body)
	}
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	if s.Logf != nil {
		s.Logf("sms to=%s body=%q", to, body)
	}
	return nil
}
