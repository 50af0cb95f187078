package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
)

var ErrLeadListNotFound = errors.New("lead list not found")

// Source reads and writes lead lists stored as JSON arrays.
type Source interface {
	Load(ctx context.Context, path string) ([]entity.Lead, error)
	Store(ctx context.Context, path string, leads []entity.Lead) error
}

var validate = validator.New()

// Decode parses a JSON lead array. Common alternative key spellings are
// accepted and unknown string fields land in Extra.
func Decode(data []byte) ([]entity.Lead, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid lead list: %w", err)
	}

	leads := make([]entity.Lead, 0, len(raw))
	for _, item := range raw {
		lead := entity.Lead{
			Email:    pick(item, "email", "e-mail", "Email", "EMAIL"),
			Nome:     pick(item, "nome", "name", "Nome", "NOME"),
			CPF:      pick(item, "cpf", "CPF", "documento", "document"),
			Telefone: pick(item, "telefone", "phone", "celular", "Telefone"),
		}
		for key, value := range item {
			if isKnownKey(key) {
				continue
			}
			if s, ok := value.(string); ok && s != "" {
				if lead.Extra == nil {
					lead.Extra = map[string]string{}
				}
				lead.Extra[key] = s
			}
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func Encode(leads []entity.Lead) ([]byte, error) {
	return json.Marshal(leads)
}

// ValidEmail reports whether email is a syntactically valid address.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && validate.Var(email, "email") == nil
}

// Clean drops leads without a valid email and keeps the first lead per
// lowercase address.
func Clean(leads []entity.Lead) []entity.Lead {
	seen := make(map[string]struct{}, len(leads))
	out := make([]entity.Lead, 0, len(leads))
	for _, lead := range leads {
		lead.Email = strings.TrimSpace(lead.Email)
		if !ValidEmail(lead.Email) {
			continue
		}
		key := strings.ToLower(lead.Email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, lead)
	}
	return out
}

var knownKeys = map[string]struct{}{
	"email": {}, "e-mail": {}, "nome": {}, "name": {}, "cpf": {}, "documento": {}, "document": {},
	"telefone": {}, "phone": {}, "celular": {},
}

func isKnownKey(key string) bool {
	_, ok := knownKeys[strings.ToLower(key)]
	return ok
}

func pick(item map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := item[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
