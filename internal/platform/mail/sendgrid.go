// Package mail sends transactional email through SendGrid.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Message is a single-recipient email.
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	Text      string
	HTML      string
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridSender delivers messages using the SendGrid v3 API.
type SendGridSender struct {
	client   sendClient
	fromAddr string
	fromName string
}

// NewSendGridSender builds a sender for apiKey. FromAddress is required.
func NewSendGridSender(apiKey, fromAddress, fromName string) (*SendGridSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("mail: sendgrid api key is required")
	}
	if strings.TrimSpace(fromAddress) == "" {
		return nil, errors.New("mail: from address is required")
	}
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		fromAddr: strings.TrimSpace(fromAddress),
		fromName: strings.TrimSpace(fromName),
	}, nil
}

// Send delivers msg. Non-2xx responses are returned as errors.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToAddress) == "" {
		return errors.New("mail: recipient is required")
	}
	email := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.fromName, s.fromAddr),
		msg.Subject,
		sgmail.NewEmail(msg.ToName, msg.ToAddress),
		msg.Text,
		msg.HTML,
	)
	resp, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail: sendgrid returned %d: %s", resp.StatusCode, truncate(resp.Body, 200))
	}
	return nil
}

// LogSender records messages instead of sending them; used when no API key is configured.
type LogSender struct {
	Logger *zap.Logger
}

// Send logs the recipient and subject.
func (l LogSender) Send(_ context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("mail delivery skipped", zap.String("to", msg.ToAddress), zap.String("subject", msg.Subject))
	return nil
}

// OrderConfirmation holds the values rendered into the buyer's confirmation email.
type OrderConfirmation struct {
	BuyerName    string
	BuyerEmail   string
	OrderID      string
	ProductTitle string
	Quantity     int
	Amount       string
}

var (
	confirmationText = texttemplate.Must(texttemplate.New("text").Parse(
		"Hi {{.BuyerName}},\n\nThank you for your order {{.OrderID}}.\n{{.Quantity}} x {{.ProductTitle}}\nTotal paid: {{.Amount}}\n\nThe artisan has been notified and will ship your item soon.\n"))
	confirmationHTML = htmltemplate.Must(htmltemplate.New("html").Parse(
		`<p>Hi {{.BuyerName}},</p><p>Thank you for your order <strong>{{.OrderID}}</strong>.</p><p>{{.Quantity}} &times; {{.ProductTitle}}<br>Total paid: {{.Amount}}</p><p>The artisan has been notified and will ship your item soon.</p>`))
)

// RenderOrderConfirmation builds the confirmation email for a paid order.
func RenderOrderConfirmation(c OrderConfirmation) (Message, error) {
	if c.BuyerName == "" {
		c.BuyerName = "there"
	}
	var text, html bytes.Buffer
	if err := confirmationText.Execute(&text, c); err != nil {
		return Message{}, fmt.Errorf("mail: render text: %w", err)
	}
	if err := confirmationHTML.Execute(&html, c); err != nil {
		return Message{}, fmt.Errorf("mail: render html: %w", err)
	}
	return Message{
		ToAddress: c.BuyerEmail,
		ToName:    c.BuyerName,
		Subject:   fmt.Sprintf("Your Kalamitra order %s is confirmed", c.OrderID),
		Text:      text.String(),
		HTML:      html.String(),
	}, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
