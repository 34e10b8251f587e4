package notify

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// sender is the part of the SendGrid client we use.
type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier emails alerts through SendGrid.
type SendGridNotifier struct {
	from   string
	client sender
	log    *zap.Logger
}

func NewSendGridNotifier(apiKey, from string, log *zap.Logger) (*SendGridNotifier, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is empty")
	}
	if from == "" {
		return nil, errors.New("from address is empty")
	}
	return &SendGridNotifier{from: from, client: sendgrid.NewSendClient(apiKey), log: log}, nil
}

func (n *SendGridNotifier) Send(ctx context.Context, alert Alert) error {
	if alert.Recipient == "" {
		return errors.New("to address is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message := mail.NewSingleEmail(
		mail.NewEmail("Inventory", n.from),
		alert.Subject(),
		mail.NewEmail("", alert.Recipient),
		alert.Body(),
		fmt.Sprintf("<pre>%s</pre>", html.EscapeString(alert.Body())),
	)

	response, err := n.client.Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= 400 {
		n.log.Error("sendgrid rejected alert",
			zap.Int("status", response.StatusCode), zap.String("body", response.Body), zap.String("alert_id", alert.ID))
		return fmt.Errorf("sendgrid send failed: status=%d", response.StatusCode)
	}

	n.log.Info("low-stock alert sent",
		zap.Int("status", response.StatusCode), zap.String("to", alert.Recipient), zap.String("alert_id", alert.ID))
	return nil
}
