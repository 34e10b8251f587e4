// Package notify delivers low-stock alerts to admins.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Alert is the payload handed to a Notifier.
type Alert struct {
	ID           string `json:"id"`
	Recipient    string `json:"recipient"`
	ProductID    uint   `json:"productId"`
	ProductName  string `json:"productName"`
	SKU          string `json:"sku"`
	Category     string `json:"category"`
	CurrentStock int    `json:"currentStock"`
	Threshold    int    `json:"threshold"`
}

// Subject is the email subject line for the alert.
func (a Alert) Subject() string {
	return fmt.Sprintf("Low stock: %s (%s)", a.ProductName, a.SKU)
}

// Body is the plain-text email body.
func (a Alert) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product:       %s\n", a.ProductName)
	fmt.Fprintf(&b, "SKU:           %s\n", a.SKU)
	if a.Category != "" {
		fmt.Fprintf(&b, "Category:      %s\n", a.Category)
	}
	fmt.Fprintf(&b, "Current stock: %d\n", a.CurrentStock)
	fmt.Fprintf(&b, "Threshold:     %d\n", a.Threshold)
	fmt.Fprintf(&b, "\nReference: %s\n", a.ID)
	return b.String()
}

// Notifier sends one alert. Implementations must not retry.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log instead of sending them. Used when
// no email provider is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	n.log.Warn("low-stock alert (email disabled)",
		zap.String("alert_id", alert.ID),
		zap.String("to", alert.Recipient),
		zap.Uint("product_id", alert.ProductID),
		zap.String("sku", alert.SKU),
		zap.Int("stock", alert.CurrentStock),
		zap.Int("threshold", alert.Threshold),
	)
	return nil
}
