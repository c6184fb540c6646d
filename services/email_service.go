package services

import (
	"fmt"
	"strings"

	"github.com/everestmart/everestmart-api/config"
	"github.com/everestmart/everestmart-api/models"
	"gopkg.in/gomail.v2"
)

// Mailer sends transactional email to customers.
type Mailer interface {
	SendOrderConfirmation(to string, order *models.Order, expiryHours int) error
}

// SMTPMailer delivers mail through the configured SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

var mailerInstance Mailer

// InitMailer initializes the SMTP mailer from configuration. Returns nil
// without error when SMTP is not configured; order placement then skips the
// confirmation email.
func InitMailer(cfg *config.Config) Mailer {
	if cfg.SMTPHost == "" {
		return nil
	}

	mailerInstance = &SMTPMailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.EmailFrom,
	}
	return mailerInstance
}

// GetMailer returns the initialized mailer instance
func GetMailer() Mailer {
	return mailerInstance
}

// SetMailer sets the mailer instance (primarily for testing)
func SetMailer(m Mailer) {
	mailerInstance = m
}

// SendOrderConfirmation emails the order summary together with a warning
// about when the stock reservation expires.
func (m *SMTPMailer) SendOrderConfirmation(to string, order *models.Order, expiryHours int) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("Order #%d confirmed", order.ID))
	msg.SetBody("text/plain", confirmationBody(order, expiryHours))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}
	return nil
}

func confirmationBody(order *models.Order, expiryHours int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Thank you for your order #%d.\n\n", order.ID)
	for _, item := range order.Items {
		name := item.Product.Name
		if item.Variant != nil {
			name = fmt.Sprintf("%s (%s)", name, item.Variant.Name)
		}
		fmt.Fprintf(&b, "  %d x %s @ NPR %.2f\n", item.Quantity, name, item.Price)
	}
	fmt.Fprintf(&b, "\nTotal: NPR %.2f\n", order.TotalPrice)
	fmt.Fprintf(&b, "Payment method: %s\n\n", order.PaymentMethod)
	fmt.Fprintf(&b, "Your items are reserved for %d hours. If payment is not confirmed by %s the order will be cancelled and the stock released.\n",
		expiryHours, order.ExpiresAt.Format("2 Jan 2006 15:04 MST"))

	return b.String()
}
