package notify

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Email templates, also used as Postmark tags and metric labels
const (
	TemplateVerification    = "verification"
	TemplatePasswordReset   = "password-reset"
	TemplatePasswordChanged = "password-changed"
	TemplateReceipt         = "receipt"
)

const sendTimeout = 15 * time.Second

// Notifier sends the storefront's templated emails.
// Every method reports success as a bool and never returns an error.
type Notifier struct {
	mailer  Mailer
	baseURL string
	brand   string
	logger  *zap.Logger
}

// NewNotifier creates a notifier; baseURL is the storefront origin used in links
func NewNotifier(mailer Mailer, baseURL, brand string) *Notifier {
	return &Notifier{
		mailer:  mailer,
		baseURL: baseURL,
		brand:   brand,
		logger:  util.GetLogger(),
	}
}

// SendVerificationEmail sends the account verification link
func (n *Notifier) SendVerificationEmail(ctx context.Context, to, name, token string) bool {
	link := fmt.Sprintf("%s/verify-email?token=%s", n.baseURL, url.QueryEscape(token))
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Welcome to %s. Please verify your email address by clicking the link below. "+
			"The link is valid for 24 hours.</p><p><a href=\"%s\">Verify email</a></p>",
		html.EscapeString(name), html.EscapeString(n.brand), link)

	return n.send(ctx, TemplateVerification, Message{
		To:       to,
		Subject:  fmt.Sprintf("Verify your %s account", n.brand),
		HTMLBody: body,
		TextBody: fmt.Sprintf("Verify your email address: %s", link),
	})
}

// SendPasswordResetEmail sends the password reset link
func (n *Notifier) SendPasswordResetEmail(ctx context.Context, to, name, token string) bool {
	link := fmt.Sprintf("%s/reset-password?token=%s", n.baseURL, url.QueryEscape(token))
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>We received a request to reset your password. The link below is valid for one hour. "+
			"If you did not ask for this, you can ignore this email.</p><p><a href=\"%s\">Reset password</a></p>",
		html.EscapeString(name), link)

	return n.send(ctx, TemplatePasswordReset, Message{
		To:       to,
		Subject:  "Reset your password",
		HTMLBody: body,
		TextBody: fmt.Sprintf("Reset your password: %s", link),
	})
}

// SendPasswordChangedEmail tells the customer their password was changed
func (n *Notifier) SendPasswordChangedEmail(ctx context.Context, to, name string) bool {
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>The password of your %s account was just changed. "+
			"If this was not you, please reset your password immediately.</p>",
		html.EscapeString(name), html.EscapeString(n.brand))

	return n.send(ctx, TemplatePasswordChanged, Message{
		To:       to,
		Subject:  "Your password was changed",
		HTMLBody: body,
		TextBody: "The password of your account was just changed.",
	})
}

// SendEmailWithAttachment sends a free-form email with one attached file
func (n *Notifier) SendEmailWithAttachment(ctx context.Context, to, subject, body string, data []byte, filename string) bool {
	return n.send(ctx, TemplateReceipt, Message{
		To:       to,
		Subject:  subject,
		HTMLBody: body,
		Attachments: []Attachment{{
			Filename:    filename,
			ContentType: contentTypeFor(filename),
			Data:        data,
		}},
	})
}

func (n *Notifier) send(ctx context.Context, template string, msg Message) bool {
	msg.Tag = template

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := n.mailer.Send(ctx, msg); err != nil {
		util.EmailsFailedTotal.WithLabelValues(template).Inc()
		n.logger.Error("Failed to send email",
			zap.String("template", template),
			zap.String("to", msg.To),
			zap.Error(err))
		return false
	}
	return true
}

func contentTypeFor(filename string) string {
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return "application/pdf"
	}
	return "application/octet-stream"
}
