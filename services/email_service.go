package services

import (
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// ErrEmailNotConfigured is returned when SMTP credentials are missing
var ErrEmailNotConfigured = errors.New("SMTP not configured")

// Mailer sends a single email with an HTML body and optional plain-text alternative
type Mailer interface {
	Send(to, subject, htmlBody, textBody string) error
}

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	AppURL   string
}

// EmailService handles sending emails via SMTP
type EmailService struct {
	cfg EmailConfig
}

// NewEmailService creates a new email service instance
func NewEmailService(cfg EmailConfig) *EmailService {
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	if cfg.From == "" {
		cfg.From = "noreply@unilink.app"
	}
	if cfg.AppURL == "" {
		cfg.AppURL = "http://localhost:3000"
	}
	return &EmailService{cfg: cfg}
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.cfg.Host != "" && e.cfg.Username != "" && e.cfg.Password != ""
}

var passwordResetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Reset your UniLink password</title></head>
<body style="font-family:-apple-system,'Segoe UI',Roboto,sans-serif;color:#333;max-width:600px;margin:0 auto;padding:20px">
  <h2 style="color:#1e3a8a">Reset your password</h2>
  <p>Hello {{.Name}},</p>
  <p>We received a request to reset the password for your UniLink account.</p>
  <p style="text-align:center"><a href="{{.Link}}" style="background:#1e3a8a;color:#fff;padding:12px 24px;border-radius:6px;text-decoration:none">Reset Password</a></p>
  <p>If the button doesn't work, copy this link into your browser:</p>
  <p style="word-break:break-all;font-size:12px;color:#666">{{.Link}}</p>
  <p style="font-size:13px">This link expires in 1 hour. If you didn't request a reset, ignore this email.</p>
</body>
</html>`))

// SendPasswordResetEmail sends a password reset email to the user
func (e *EmailService) SendPasswordResetEmail(toEmail, resetToken, userName string) error {
	if !e.IsConfigured() {
		log.Printf("[EMAIL] SMTP not configured, skipping password reset email to %s", toEmail)
		return ErrEmailNotConfigured
	}

	if userName == "" {
		userName = "there"
	}
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", e.cfg.AppURL, resetToken)

	var body strings.Builder
	if err := passwordResetTemplate.Execute(&body, map[string]string{"Name": userName, "Link": resetLink}); err != nil {
		return fmt.Errorf("failed to render reset email: %w", err)
	}

	return e.Send(toEmail, "Reset your UniLink password", body.String(), "Reset your password: "+resetLink)
}

// Send delivers one message using STARTTLS and PLAIN auth
func (e *EmailService) Send(to, subject, htmlBody, textBody string) error {
	if !e.IsConfigured() {
		return ErrEmailNotConfigured
	}

	message := buildMessage(e.cfg.From, to, subject, htmlBody, textBody)
	addr := e.cfg.Host + ":" + e.cfg.Port

	conn, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	if err := conn.StartTLS(&tls.Config{ServerName: e.cfg.Host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if err := conn.Auth(smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := conn.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := conn.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return conn.Quit()
}

// buildMessage renders RFC 5322 headers and a multipart/alternative body
// when a plain-text part is given
func buildMessage(from, to, subject, htmlBody, textBody string) string {
	var b strings.Builder
	b.WriteString("From: UniLink <" + from + ">\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	if textBody == "" {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(htmlBody)
		return b.String()
	}

	boundary := "unilink-" + uuid.NewString()
	b.WriteString("Content-Type: multipart/alternative; boundary=\"" + boundary + "\"\r\n\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(textBody + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(htmlBody + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return b.String()
}
