// Package notification sends outbound email through a pluggable sender,
// renders message templates and keeps a bounded history of what was sent.
package notification

import (
	"context"
	"errors"
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
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// defaultHistorySize bounds the in-memory history kept by the manager.
const defaultHistorySize = 1000

// ErrNoRecipients is returned when a notification has nobody to go to.
var ErrNoRecipients = errors.New("notification has no recipients")

// Notification represents a single outbound notification.
type Notification struct {
	ID           string            `json:"id"`
	Type         NotificationType  `json:"type"`
	Recipients   []string          `json:"recipients"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender delivers one message to every address in to.
type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
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

// Built-in template IDs.
const (
	TemplateAppointmentReminder = "appointment-reminder"
	TemplatePasswordChanged     = "password-changed"
)

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
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
			ID:      TemplateAppointmentReminder,
			Name:    "Appointment Reminder",
			Subject: "Reminder: {{title}} on {{date}}",
			Body: "Hello {{client_name}},\n\nThis is a reminder of your appointment \"{{title}}\" on {{date}} at {{time}}" +
				" with {{staff_name}} at {{location}}.\n\n{{organization}}",
			Type: TypeEmail,
		},
		{
			ID:      TemplatePasswordChanged,
			Name:    "Password Changed",
			Subject: "Your password was changed",
			Body:    "Hello {{name}},\n\nThe password for your {{organization}} account was changed on {{changed_at}}. If this was not you, contact your administrator.",
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
// supplied data map. Keys present in the template but absent from data are left
// as-is.
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

// NotificationManager sends notifications and remembers the most recent ones.
type NotificationManager struct {
	emailSender EmailSender
	templates   *TemplateEngine

	mu            sync.RWMutex
	notifications map[string]*Notification
	order         []string
	historySize   int
}

// NewNotificationManager constructs a NotificationManager.
func NewNotificationManager(email EmailSender, tpl *TemplateEngine) *NotificationManager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &NotificationManager{
		emailSender:   email,
		templates:     tpl,
		notifications: make(map[string]*Notification),
		historySize:   defaultHistorySize,
	}
}

// Templates returns the engine used by SendFromTemplate.
func (m *NotificationManager) Templates() *TemplateEngine {
	return m.templates
}

// Send makes exactly one delivery attempt and records the outcome. The
// returned error is the sender's error, if any.
func (m *NotificationManager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Type == "" {
		n.Type = TypeEmail
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = StatusPending

	var sendErr error
	switch {
	case len(n.Recipients) == 0:
		sendErr = ErrNoRecipients
	case n.Type == TypeEmail:
		sendErr = m.emailSender.SendEmail(ctx, n.Recipients, n.Subject, n.Body)
	default:
		sendErr = fmt.Errorf("unsupported notification type: %s", n.Type)
	}

	if sendErr != nil {
		n.Status = StatusFailed
		n.Error = sendErr.Error()
	} else {
		n.Status = StatusSent
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.remember(n)
	return sendErr
}

func (m *NotificationManager) remember(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = n
	m.order = append(m.order, n.ID)
	for len(m.order) > m.historySize {
		delete(m.notifications, m.order[0])
		m.order = m.order[1:]
	}
}

// Deliver sends a plain email. It lets the manager act as the reminder
// dispatcher's delivery collaborator.
func (m *NotificationManager) Deliver(ctx context.Context, recipients []string, subject, body string) error {
	return m.Send(ctx, &Notification{
		Type:       TypeEmail,
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
	})
}

// SendFromTemplate renders a template and sends the resulting notification.
func (m *NotificationManager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipients ...string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Type:         TypeEmail,
		Recipients:   recipients,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// GetNotification retrieves a notification by ID.
func (m *NotificationManager) GetNotification(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// ListByRecipient returns the newest notifications addressed to recipient, up to limit.
func (m *NotificationManager) ListByRecipient(_ context.Context, recipient string, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Notification
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		n := m.notifications[m.order[i]]
		for _, r := range n.Recipients {
			if strings.EqualFold(r, recipient) {
				result = append(result, n)
				break
			}
		}
	}
	return result, nil
}

// NotificationStats returns counts of remembered notifications grouped by status.
func (m *NotificationManager) NotificationStats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
