package notify

import (
	"context"
	"encoding/base64"
	"fmt"

	"storefront-service/internal/util"

	"github.com/keighl/postmark"
	"go.uber.org/zap"
)

// Attachment is a file sent along with a message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a single outgoing email
type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	Tag         string
	Attachments []Attachment
}

// Mailer delivers email messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// PostmarkMailer sends mail through the Postmark API
type PostmarkMailer struct {
	client *postmark.Client
	from   string
}

// NewPostmarkMailer creates a mailer for the given server token and sender address
func NewPostmarkMailer(serverToken, from string) *PostmarkMailer {
	return &PostmarkMailer{
		client: postmark.NewClient(serverToken, ""),
		from:   from,
	}
}

// Send delivers msg; ctx is checked before the call since the client has no context support
func (m *PostmarkMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	email := postmark.Email{
		From:     m.from,
		To:       msg.To,
		Subject:  msg.Subject,
		HtmlBody: msg.HTMLBody,
		TextBody: msg.TextBody,
		Tag:      msg.Tag,
	}
	for _, a := range msg.Attachments {
		email.Attachments = append(email.Attachments, postmark.Attachment{
			Name:        a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Data),
			ContentType: a.ContentType,
		})
	}

	res, err := m.client.SendEmail(email)
	if err != nil {
		return fmt.Errorf("postmark send failed: %w", err)
	}
	if res.ErrorCode != 0 {
		return fmt.Errorf("postmark rejected message: %d %s", res.ErrorCode, res.Message)
	}
	return nil
}

// LogMailer only logs messages; used in development when no mail provider is configured
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer that writes messages to the log
func NewLogMailer() *LogMailer {
	return &LogMailer{logger: util.GetLogger()}
}

// Send logs msg and never fails
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("Email (not sent, log mailer)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("tag", msg.Tag),
		zap.Int("attachments", len(msg.Attachments)))
	return nil
}
