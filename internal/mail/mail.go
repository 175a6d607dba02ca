// Package mail sends transactional notification email. Delivery is a
// collaborator concern: the Notifier contract is a message in, an opaque
// message id (or error) out.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"

	"formgate.dev/internal/obs"
)

// Message is one outbound email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Notifier delivers a message and returns an opaque message id.
type Notifier interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTP delivers via a plain SMTP relay with optional AUTH.
type SMTP struct {
	addr     string // host:port
	host     string
	username string
	password string
	from     string
}

// NewSMTP configures an SMTP notifier. Host and from address are required.
func NewSMTP(host string, port int, username, password, from string) (*SMTP, error) {
	host = strings.TrimSpace(host)
	from = strings.TrimSpace(from)
	if host == "" || from == "" {
		return nil, errors.New("mail: smtp host and from address are required")
	}
	if port <= 0 {
		port = 587
	}
	return &SMTP{
		addr:     fmt.Sprintf("%s:%d", host, port),
		host:     host,
		username: username,
		password: password,
		from:     from,
	}, nil
}

// Send delivers the message and returns the generated Message-ID.
func (s *SMTP) Send(_ context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", errors.New("mail: at least one recipient is required")
	}
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.host)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	if err := smtp.SendMail(s.addr, auth, s.from, msg.To, []byte(b.String())); err != nil {
		return "", fmt.Errorf("mail: send: %w", err)
	}
	return messageID, nil
}

// sanitizeHeader strips CR/LF so user-supplied text cannot inject headers.
func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}

// Logger is a Notifier for deployments without SMTP configured: it records
// the message in the structured log and reports success.
type Logger struct{}

// Send logs the message instead of delivering it.
func (Logger) Send(_ context.Context, msg Message) (string, error) {
	messageID := fmt.Sprintf("<%s@log.local>", uuid.NewString())
	obs.LogRequest(map[string]any{
		"level":      "info",
		"msg":        "mail_logged",
		"message_id": messageID,
		"to":         strings.Join(msg.To, ", "),
		"subject":    msg.Subject,
	})
	return messageID, nil
}
