package mailer

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// InvoiceEmail carries everything needed to notify a customer that an
// invoice was issued for their approved order.
type InvoiceEmail struct {
	To           string
	CustomerName string
	InvoiceNo    string
	OrderCode    string
	Items        []InvoiceEmailItem
	TotalAmount  string
	DueDate      time.Time
}

type InvoiceEmailItem struct {
	Name     string
	Strain   string
	Quantity int
	Total    string
}

// Mailer sends transactional mail. Callers treat dispatch as best-effort:
// a send failure must never unwind committed state.
type Mailer interface {
	SendInvoiceEmail(email InvoiceEmail) error
}

// SMTPConfig holds the SMTP relay settings read from the environment.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer returns a Mailer backed by an SMTP relay.
func NewSMTPMailer(cfg SMTPConfig) Mailer {
	return &smtpMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *smtpMailer) SendInvoiceEmail(email InvoiceEmail) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", fmt.Sprintf("Invoice %s for order %s", email.InvoiceNo, email.OrderCode))
	msg.SetBody("text/html", renderInvoiceBody(email))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send invoice email to %s: %w", email.To, err)
	}
	return nil
}

func renderInvoiceBody(email InvoiceEmail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", email.CustomerName)
	fmt.Fprintf(&b, "<p>Your order <b>%s</b> has been approved. Invoice <b>%s</b> is due by %s.</p>",
		email.OrderCode, email.InvoiceNo, email.DueDate.Format("January 2, 2006"))
	b.WriteString("<ul>")
	for _, item := range email.Items {
		label := item.Name
		if item.Strain != "" {
			label = fmt.Sprintf("%s (%s)", item.Name, item.Strain)
		}
		fmt.Fprintf(&b, "<li>%s &times; %d — $%s</li>", label, item.Quantity, item.Total)
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p>Total due: <b>$%s</b></p>", email.TotalAmount)
	return b.String()
}

type logMailer struct{}

// NewLogMailer returns a Mailer that only logs. Used when SMTP is not
// configured (local development).
func NewLogMailer() Mailer {
	return &logMailer{}
}

func (m *logMailer) SendInvoiceEmail(email InvoiceEmail) error {
	log.Printf("[mailer] invoice %s -> %s (total $%s, due %s)",
		email.InvoiceNo, email.To, email.TotalAmount, email.DueDate.Format("2006-01-02"))
	return nil
}
