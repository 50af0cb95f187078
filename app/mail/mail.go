package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidMessage = errors.New("invalid email message")

type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return fmt.Errorf("%w: from is required", ErrInvalidMessage)
	}
	if len(m.To) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	return nil
}

// Sender delivers one message and returns the transport's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type Identity struct {
	FromName  string
	FromEmail string
	ReplyTo   string
}

func (i Identity) From() string {
	if i.FromName == "" {
		return i.FromEmail
	}
	return fmt.Sprintf("%s <%s>", i.FromName, i.FromEmail)
}

// Identities maps sending domains to sender identities. Unknown or empty
// domain ids fall back to Default.
type Identities struct {
	Default Identity
	Domains map[string]Identity
}

func (i Identities) ForDomain(domainID string) Identity {
	if domainID != "" {
		if identity, ok := i.Domains[domainID]; ok && identity.FromEmail != "" {
			return identity
		}
	}
	return i.Default
}
