// Package mail renders and delivers registration confirmation emails.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by senders that cannot deliver mail.
var ErrNotConfigured = errors.New("email service not configured")

// Confirmation is everything a confirmation email shows.
type Confirmation struct {
	To          string `json:"to"`
	Name        string `json:"name"`
	TableNumber int    `json:"table_number"`
	Tent        int    `json:"tent"`
	TableName   string `json:"table_name"`
	SeatNumber  int    `json:"seat_number"`
	Phone       string `json:"phone,omitempty"`
	Gender      string `json:"gender,omitempty"`
	QRPayload   string `json:"qr_payload"`
	EventName   string `json:"event_name"`
}

// Validate checks the fields without which the email is useless.
func (c Confirmation) Validate() error {
	if c.To == "" || c.Name == "" || c.TableNumber <= 0 || c.SeatNumber <= 0 {
		return errors.New("confirmation is missing required fields")
	}
	return nil
}

// Subject returns the subject line.
func (c Confirmation) Subject() string {
	return fmt.Sprintf("%s Registration Confirmed - Your Table Assignment", c.EventName)
}

// QRImageURL returns a URL rendering the QR payload as an image.
func (c Confirmation) QRImageURL() string {
	return "https://api.qrserver.com/v1/create-qr-code/?size=200x200&margin=0&data=" + url.QueryEscape(c.QRPayload)
}

var bodyTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.EventName}}</title></head>
<body style="font-family:Arial,sans-serif">
  <h2>You're registered for {{.EventName}}, {{.Name}}!</h2>
  <table cellpadding="4">
    <tr><td><strong>Tent</strong></td><td>{{.Tent}}</td></tr>
    <tr><td><strong>Table</strong></td><td>{{.TableNumber}} - {{.TableName}}</td></tr>
    <tr><td><strong>Seat</strong></td><td>{{.SeatNumber}}</td></tr>
    {{- if .Phone}}<tr><td><strong>Phone</strong></td><td>{{.Phone}}</td></tr>{{end}}
    {{- if .Gender}}<tr><td><strong>Gender</strong></td><td>{{.Gender}}</td></tr>{{end}}
  </table>
  <p><img src="{{.QRImageURL}}" alt="QR Code" width="180" height="180"></p>
  <p>Check-in: present this QR code or give your email at the door.</p>
</body>
</html>
`))

// RenderHTML renders the HTML body.
func RenderHTML(c Confirmation) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, c); err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return buf.String(), nil
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	FromAddress string
	FromName    string
}

// SMTPSender delivers confirmations over SMTP, upgrading to STARTTLS and
// authenticating with PLAIN when the server offers it.
type SMTPSender struct {
	cfg         SMTPConfig
	dialTimeout time.Duration
	send        func(ctx context.Context, from string, to []string, msg []byte) error
	logger      *zap.Logger
}

const (
	defaultDialTimeout = 10 * time.Second
	// sessionTimeout bounds a session whose context carries no deadline.
	sessionTimeout = time.Minute
)

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SMTPSender{cfg: cfg, dialTimeout: defaultDialTimeout, logger: logger}
	s.send = s.deliver
	return s
}

// Send delivers c and returns the generated Message-ID. The SMTP session
// is torn down when ctx ends.
func (s *SMTPSender) Send(ctx context.Context, c Confirmation) (string, error) {
	if s.cfg.Host == "" {
		return "", ErrNotConfigured
	}
	if err := c.Validate(); err != nil {
		return "", err
	}
	messageID, msg, err := s.buildMessage(c, time.Now())
	if err != nil {
		return "", err
	}

	if err := s.send(ctx, s.cfg.FromAddress, []string{c.To}, msg); err != nil {
		return "", fmt.Errorf("send confirmation to %s: %w", c.To, contextError(ctx, err))
	}
	s.logger.Info("confirmation email sent", zap.String("to", c.To), zap.String("message_id", messageID))
	return messageID, nil
}

// deliver runs one SMTP session on a connection whose lifetime is bounded
// by ctx.
func (s *SMTPSender) deliver(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(sessionTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return err
		}
	}
	if s.cfg.User != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// contextError reports ctx's error in place of the connection error it
// caused. The socket deadline can fire just before ctx's own timer does.
func contextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

func (s *SMTPSender) buildMessage(c Confirmation, now time.Time) (string, []byte, error) {
	body, err := RenderHTML(c)
	if err != nil {
		return "", nil, err
	}
	domain := s.cfg.Host
	if at := strings.LastIndex(s.cfg.FromAddress, "@"); at >= 0 {
		domain = s.cfg.FromAddress[at+1:]
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", s.cfg.FromName), s.cfg.FromAddress)
	fmt.Fprintf(&b, "To: %s\r\n", c.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", c.Subject()))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return messageID, []byte(b.String()), nil
}

// LogSender only logs confirmations. Used when SMTP is not configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs c and reports ErrNotConfigured so callers count it as undelivered.
func (s *LogSender) Send(_ context.Context, c Confirmation) (string, error) {
	s.logger.Warn("email not configured, confirmation not delivered",
		zap.String("to", c.To),
		zap.Int("table", c.TableNumber),
		zap.Int("tent", c.Tent),
		zap.Int("seat", c.SeatNumber),
	)
	return "", ErrNotConfigured
}
