package invoice

import (
	"context"
	"encoding/base64"

	"go.uber.org/zap"
)

// Email is the message handed to the mail worker over the email queue.
type Email struct {
	Subject     string       `json:"subject"`
	From        string       `json:"from,omitempty"`
	To          []string     `json:"to"`
	HTMLCode    string       `json:"html_code"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

type Mailer interface {
	Send(ctx context.Context, email *Email) error
}

type queuePublisher interface {
	PublishToQueue(ctx context.Context, queue string, payload any) error
}

// QueueMailer publishes emails to a durable RabbitMQ queue drained by the
// mail worker.
type QueueMailer struct {
	publisher queuePublisher
	queue     string
	from      string
}

func NewQueueMailer(publisher queuePublisher, queue, from string) *QueueMailer {
	return &QueueMailer{publisher: publisher, queue: queue, from: from}
}

func (m *QueueMailer) Send(ctx context.Context, email *Email) error {
	if email.From == "" {
		email.From = m.from
	}
	return m.publisher.PublishToQueue(ctx, m.queue, email)
}

// LogMailer writes emails to the log. It stands in for the queue when no
// broker is configured.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, email *Email) error {
	m.log.Info("email not queued (no broker configured)",
		zap.String("subject", email.Subject),
		zap.Strings("to", email.To),
		zap.Int("attachments", len(email.Attachments)),
	)
	return nil
}

func attachmentFrom(doc *Document) Attachment {
	return Attachment{
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		Content:     base64.StdEncoding.EncodeToString(doc.Body),
	}
}
