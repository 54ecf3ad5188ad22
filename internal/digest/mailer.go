package digest

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
)

// Message is one digest email: a text/html alternative pair plus an optional
// CSV attachment.
type Message struct {
	Subject        string
	TextBody       string
	HTMLBody       string
	AttachmentName string
	AttachmentCSV  []byte
}

// Sender delivers digest messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends digests over implicit-TLS SMTP (port 465 style).
type SMTPMailer struct {
	host   string
	port   int
	user   string
	pass   string
	from   string
	to     string
	logger arbor.ILogger
}

// NewSMTPMailer creates an SMTP digest sender. to may list multiple
// recipients separated by commas.
func NewSMTPMailer(host string, port int, user, pass, from, to string, logger arbor.ILogger) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: user, pass: pass, from: from, to: to, logger: logger}
}

// Send composes the MIME message and delivers it.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	raw, err := m.compose(msg)
	if err != nil {
		return err
	}
	return m.deliver(ctx, raw)
}

func (m *SMTPMailer) compose(msg Message) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: m.from}})
	toAddrs := make([]*mail.Address, 0, 1)
	for _, rcpt := range m.recipients() {
		toAddrs = append(toAddrs, &mail.Address{Address: rcpt})
	}
	h.SetAddressList("To", toAddrs)
	h.SetSubject(msg.Subject)

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline part: %w", err)
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	io.WriteString(pw, msg.TextBody)
	pw.Close()

	var hh mail.InlineHeader
	hh.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	pw, err = iw.CreatePart(hh)
	if err != nil {
		return nil, fmt.Errorf("failed to create html part: %w", err)
	}
	io.WriteString(pw, msg.HTMLBody)
	pw.Close()
	iw.Close()

	if len(msg.AttachmentCSV) > 0 {
		var ah mail.AttachmentHeader
		ah.SetContentType("text/csv", nil)
		ah.SetFilename(msg.AttachmentName)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment: %w", err)
		}
		aw.Write(msg.AttachmentCSV)
		aw.Close()
	}

	mw.Close()
	return buf.Bytes(), nil
}

func (m *SMTPMailer) deliver(ctx context.Context, raw []byte) error {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open SMTP session: %w", err)
	}
	defer client.Close()

	if err := client.Auth(smtp.PlainAuth("", m.user, m.pass, m.host)); err != nil {
		return fmt.Errorf("SMTP auth failed: %w", err)
	}
	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range m.recipients() {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s rejected: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message body: %w", err)
	}

	if err := client.Quit(); err != nil {
		m.logger.Warn().Err(err).Msg("SMTP quit failed after successful send")
	}
	return nil
}

func (m *SMTPMailer) recipients() []string {
	var out []string
	for _, part := range strings.Split(m.to, ",") {
		if rcpt := strings.TrimSpace(part); rcpt != "" {
			out = append(out, rcpt)
		}
	}
	return out
}
