package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	from, err := netmail.ParseAddress(msg.From)
	if err != nil {
		return "", fmt.Errorf("%w: invalid from address: %v", ErrInvalidMessage, err)
	}

	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		addr, err := netmail.ParseAddress(to)
		if err != nil {
			return "", fmt.Errorf("%w: invalid recipient %q: %v", ErrInvalidMessage, to, err)
		}
		recipients = append(recipients, addr.Address)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from.Address))
	body := s.buildMessage(msg, messageID)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.sendMail(addr, auth, from.Address, recipients, body); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}
	return messageID, nil
}

func (s *SMTPSender) buildMessage(msg Message, messageID string) []byte {
	var buf bytes.Buffer
	header := func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	}

	header("From", msg.From)
	header("To", strings.Join(msg.To, ", "))
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", s.now().Format(time.RFC1123Z))
	header("Message-ID", messageID)
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	buf.WriteString("\r\n")
	buf.WriteString(msg.HTML)
	return buf.Bytes()
}

func domainOf(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}
