package channels

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/NordCoder/Herald/internal/domain/notification"
	"go.uber.org/zap"
)

// MailSender moves an already composed message.
type MailSender interface {
	SendMail(ctx context.Context, from, to string, msg []byte) error
}

type EmailAdapter struct {
	mail       MailSender
	from       string
	subjPrefix string
	log        *zap.Logger
}

func NewEmailAdapter(mail MailSender, cfg SMTPConfig, log *zap.Logger) *EmailAdapter {
	return &EmailAdapter{
		mail:       mail,
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		log:        log.With(zap.String("component", "channels.email")),
	}
}

func (a *EmailAdapter) Send(ctx context.Context, n notification.Notification) error {
	e, ok := n.(*notification.Email)
	if !ok {
		return fmt.Errorf("%w: email adapter got %s", notification.ErrUnknownChannel, n.Channel())
	}
	msg, err := a.compose(e)
	if err != nil {
		return err
	}
	if err := a.mail.SendMail(ctx, a.from, e.To, msg); err != nil {
		a.log.Warn("email not sent", zap.String("notification_id", e.ID), zap.Error(err))
		return err
	}
	a.log.Debug("email sent", zap.String("notification_id", e.ID))
	return nil
}

func (a *EmailAdapter) subject(e *notification.Email) string {
	s := e.Subject
	if s == "" {
		s = e.Title
	}
	return strings.TrimSpace(a.subjPrefix + " " + s)
}

// compose renders a plain message, or multipart/alternative when HTML is present.
// Attachments are referenced by URL in the text part.
func (a *EmailAdapter) compose(e *notification.Email) ([]byte, error) {
	text := e.Message
	if len(e.Attachments) > 0 {
		var sb strings.Builder
		sb.WriteString(text)
		sb.WriteString("\r\n\r\nAttachments:\r\n")
		for _, at := range e.Attachments {
			fmt.Fprintf(&sb, "- %s: %s\r\n", at.Filename, at.URL)
		}
		text = sb.String()
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", a.from)
	fmt.Fprintf(&buf, "To: %s\r\n", e.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", a.subject(e)))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if e.HTML == "" {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(text)
		buf.WriteString("\r\n")
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=utf-8", text},
		{"text/html; charset=utf-8", e.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.ctype}})
		if err != nil {
			return nil, fmt.Errorf("compose email: %w", err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("compose email: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("compose email: %w", err)
	}
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// Mailer speaks SMTP, optionally over implicit TLS.
type Mailer struct {
	addr    string
	auth    smtp.Auth
	useTLS  bool
	timeout time.Duration
	log     *zap.Logger
}

func NewMailer(cfg SMTPConfig, log *zap.Logger) *Mailer {
	var auth smtp.Auth
	if cfg.User != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, host(cfg.Addr))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Mailer{
		addr:    cfg.Addr,
		auth:    auth,
		useTLS:  cfg.UseTLS,
		timeout: timeout,
		log:     log.With(zap.String("component", "channels.smtp"), zap.String("smtp_addr", cfg.Addr)),
	}
}

func (m *Mailer) SendMail(ctx context.Context, from, to string, msg []byte) error {
	start := time.Now()
	dialer := net.Dialer{Timeout: m.timeout}

	var (
		conn net.Conn
		err  error
	)
	if m.useTLS {
		td := tls.Dialer{NetDialer: &dialer, Config: &tls.Config{ServerName: host(m.addr), MinVersion: tls.VersionTLS12}}
		conn, err = td.DialContext(ctx, "tcp", m.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", m.addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(m.timeout))
	}

	c, err := smtp.NewClient(conn, host(m.addr))
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if !m.useTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host(m.addr), MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	if err := c.Quit(); err != nil {
		m.log.Debug("smtp quit", zap.Error(err))
	}
	m.log.Debug("email handed off", zap.String("to", to), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func host(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
