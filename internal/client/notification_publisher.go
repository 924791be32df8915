package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/logger"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/service"
)

// DefaultSubjectPrefix is prepended to every event type.
const DefaultSubjectPrefix = "notifications.ap"

// EventPublisher delivers a raw message to a subject.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NotificationPublisher publishes approval workflow events for consumption
// by the notifications service.
//
// Subject convention: <prefix>.<event_type>
// Event types: invoice_approval_required, invoice_approved,
// invoice_rejected, invoice_manual_review_required.
//
// Publishing never fails the caller. Errors are logged at Warn.
type NotificationPublisher struct {
	pub    EventPublisher
	prefix string
	log    *logger.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType      string                 `json:"event_type"`
	CentreCode     string                 `json:"centre_code,omitempty"`
	ActorID        string                 `json:"actor_id,omitempty"`
	RecipientRoles []string               `json:"recipient_roles,omitempty"`
	ResourceType   string                 `json:"resource_type"`
	ResourceID     string                 `json:"resource_id"`
	IsActionable   bool                   `json:"is_actionable"`
	ActionURL      string                 `json:"action_url,omitempty"`
	Severity       string                 `json:"severity"`
	Category       string                 `json:"category"`
	OccurredAt     time.Time              `json:"occurred_at"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil pub disables publishing.
func NewNotificationPublisher(pub EventPublisher, prefix string, log *logger.Logger) *NotificationPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NotificationPublisher{pub: pub, prefix: prefix, log: log}
}

// PublishInvoiceEvent publishes an invoice approval event.
func (p *NotificationPublisher) PublishInvoiceEvent(ctx context.Context, eventType string, invoice *domain.InvoiceReceived, actorID string, payload map[string]interface{}) {
	if p.pub == nil || invoice == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		CentreCode:   invoice.CentreCode,
		ActorID:      actorID,
		ResourceType: "invoice",
		ResourceID:   invoice.ID,
		ActionURL:    "/invoices/" + invoice.ID,
		Severity:     "info",
		Category:     "ap_approval",
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	switch eventType {
	case service.EventApprovalRequired:
		event.IsActionable = true
		event.RecipientRoles = recipientRoles(payload)
	case service.EventManualReviewRequired:
		event.IsActionable = true
		event.Severity = "warning"
		event.RecipientRoles = []string{string(domain.RoleAccountant)}
	case service.EventInvoiceRejected:
		event.Severity = "warning"
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	if err := p.pub.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("invoice_id", invoice.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("invoice_id", invoice.ID).
		Msg("notification: event published")
}

// recipientRoles maps the pending approval level to the roles able to act on it.
func recipientRoles(payload map[string]interface{}) []string {
	level, _ := payload["approval_level"].(string)
	switch domain.ApprovalLevel(level) {
	case domain.LevelManager:
		return []string{string(domain.RoleManager), string(domain.RoleAdmin)}
	case domain.LevelAccounting:
		return []string{string(domain.RoleAccountant), string(domain.RoleAdmin)}
	}
	return nil
}

// ── NATS transport ───────────────────────────────────────────────────────────

// NATSPublisher publishes through JetStream so events survive a restart of
// the notifications consumer.
type NATSPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// ConnectNATS dials url and prepares a JetStream publisher.
func ConnectNATS(url, name string, log *logger.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &NATSPublisher{conn: conn, js: js}, nil
}

// Publish sends data to subject and waits for the stream acknowledgement.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.Publish(ctx, subject, data)
	return err
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
