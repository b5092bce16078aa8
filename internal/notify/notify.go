// Package notify turns booking events into customer messages and delivers
// them by mail or, when no SMTP server is configured, to the log.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"

	"github.com/sirupsen/logrus"
	gomail "gopkg.in/gomail.v2"

	"github.com/iliyamo/court-slot-booking/internal/booking"
)

// Message is one rendered notification.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Notifier delivers a message.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

var subjects = map[booking.EventType]string{
	booking.EventCreated:   "Booking %s received",
	booking.EventConfirmed: "Booking %s confirmed",
	booking.EventCheckedIn: "Checked in for %s",
	booking.EventCancelled: "Booking %s cancelled",
}

var body = template.Must(template.New("booking").Funcs(template.FuncMap{"rupees": Rupees}).Parse(`<p>Hi {{if .User.FullName}}{{.User.FullName}}{{else}}there{{end}},</p>
{{- if eq .Type "booking.created"}}
<p>We are holding {{.CourtName}} at {{.VenueName}} for you on {{.Date}}, {{.StartTime}}-{{.EndTime}}, pending payment.</p>
{{- else if eq .Type "booking.confirmed"}}
<p>Your booking of {{.CourtName}} at {{.VenueName}} on {{.Date}}, {{.StartTime}}-{{.EndTime}} is confirmed.</p>
{{- else if eq .Type "booking.checked_in"}}
<p>You are checked in at {{.VenueName}}. Enjoy your game on {{.CourtName}}.</p>
{{- else if eq .Type "booking.cancelled"}}
<p>Your booking of {{.CourtName}} on {{.Date}}, {{.StartTime}}-{{.EndTime}} was cancelled.{{if .CancellationReason}} Reason: {{.CancellationReason}}.{{end}}</p>
{{- end}}
<p>Reference: <strong>{{.Reference}}</strong>{{if .TotalAmount}} &middot; Total: {{rupees .TotalAmount}}{{end}}</p>
{{- if .QRPayload}}
<p>Show this link at the front desk: <a href="{{.QRPayload}}">{{.QRPayload}}</a></p>
{{- end}}
<p>{{.VenueName}}{{if .VenueAddress}}, {{.VenueAddress}}{{end}}</p>
`))

// Render builds the message for ev.  Events of unknown type yield false.
func Render(ev booking.Event) (Message, bool, error) {
	subject, ok := subjects[ev.Type]
	if !ok {
		return Message{}, false, nil
	}
	var buf bytes.Buffer
	if err := body.Execute(&buf, ev); err != nil {
		return Message{}, false, fmt.Errorf("render %s: %w", ev.Type, err)
	}
	return Message{To: ev.User.Email, Subject: fmt.Sprintf(subject, ev.Reference), HTML: buf.String()}, true, nil
}

// Rupees formats minor units as a rupee amount.
func Rupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign, paise = "-", -paise
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, paise/100, paise%100)
}

// LogNotifier writes messages to the logger instead of sending them.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(_ context.Context, m Message) error {
	n.Log.WithFields(logrus.Fields{"to": m.To, "subject": m.Subject}).Info("notification")
	return nil
}

// MailConfig holds the SMTP settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// MailNotifier sends messages through an SMTP server with gomail.
type MailNotifier struct {
	cfg    MailConfig
	dialer *gomail.Dialer
	log    logrus.FieldLogger
}

func NewMailNotifier(cfg MailConfig, log logrus.FieldLogger) *MailNotifier {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &MailNotifier{cfg: cfg, dialer: d, log: log}
}

// Notify sends m.  Messages without a recipient are skipped.
func (n *MailNotifier) Notify(ctx context.Context, m Message) error {
	if m.To == "" {
		n.log.WithField("subject", m.Subject).Warn("notification has no recipient")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.cfg.From)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.HTML)
	if err := n.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", m.To, err)
	}
	n.log.WithFields(logrus.Fields{"to": m.To, "subject": m.Subject}).Info("mail sent")
	return nil
}
