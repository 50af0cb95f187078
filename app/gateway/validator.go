package gateway

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FieldValidator returns an empty string when value is acceptable.
type FieldValidator func(value any) string

type Schema struct {
	Required   []string
	Optional   []string
	Validators map[string]FieldValidator
}

type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// TypedConfig pairs a gateway type with a raw configuration.
type TypedConfig struct {
	Type   string
	Config map[string]any
}

var basicSchema = Schema{Required: []string{"clientId", "gatewayId"}}

var apiVersionPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type ConfigValidator struct {
	mu       sync.RWMutex
	schemas  map[string]Schema
	validate *validator.Validate
}

func NewConfigValidator() *ConfigValidator {
	v := &ConfigValidator{
		schemas:  make(map[string]Schema),
		validate: validator.New(),
	}
	v.schemas["asset"] = Schema{
		Required: []string{"apiKey", "apiUrl", "webhookSecret", "clientId", "gatewayId"},
		Optional: []string{"sandbox"},
		Validators: map[string]FieldValidator{
			"apiKey":        minLength("apiKey", 10),
			"apiUrl":        v.urlField("apiUrl"),
			"webhookSecret": minLength("webhookSecret", 8),
			"sandbox":       boolField("sandbox"),
		},
	}
	v.schemas["mercadopago"] = Schema{
		Required: []string{"accessToken", "publicKey", "webhookSecret", "clientId", "gatewayId"},
		Optional: []string{"sandboxMode"},
		Validators: map[string]FieldValidator{
			"accessToken": prefixField("accessToken", "APP_USR-"),
			"publicKey":   prefixField("publicKey", "APP_USR-"),
			"sandboxMode": boolField("sandboxMode"),
		},
	}
	v.schemas["stripe"] = Schema{
		Required: []string{"secretKey", "publishableKey", "webhookSecret", "clientId", "gatewayId"},
		Optional: []string{"apiVersion"},
		Validators: map[string]FieldValidator{
			"secretKey":      prefixField("secretKey", "sk_"),
			"publishableKey": prefixField("publishableKey", "pk_"),
			"apiVersion": func(value any) string {
				s, ok := value.(string)
				if !ok {
					return "apiVersion must be a string"
				}
				if !apiVersionPattern.MatchString(s) {
					return "apiVersion must use the YYYY-MM-DD format"
				}
				return ""
			},
		},
	}
	v.schemas["shopify"] = Schema{
		Required: []string{"webhookSecret", "clientId", "gatewayId"},
		Optional: []string{"apiKey", "apiUrl", "shopDomain", "accessToken", "autoFulfill"},
		Validators: map[string]FieldValidator{
			"apiUrl":      v.urlField("apiUrl"),
			"autoFulfill": boolField("autoFulfill"),
		},
	}
	return v
}

// Register adds or replaces the schema for gatewayType.
func (v *ConfigValidator) Register(gatewayType string, schema Schema) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[normalizeType(gatewayType)] = schema
}

func (v *ConfigValidator) Schema(gatewayType string) (Schema, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	schema, ok := v.schemas[normalizeType(gatewayType)]
	return schema, ok
}

func (v *ConfigValidator) SupportedTypes() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	types := make([]string, 0, len(v.schemas))
	for t := range v.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (v *ConfigValidator) Validate(gatewayType string, config map[string]any) ValidationResult {
	result := ValidationResult{Errors: []string{}, Warnings: []string{}}
	if config == nil {
		result.Errors = append(result.Errors, "configuration must be an object")
		return result
	}

	schema, ok := v.Schema(gatewayType)
	if !ok {
		result.Warnings = append(result.Warnings, fmt.Sprintf("no validation schema for gateway %q", gatewayType))
		result.Errors = append(result.Errors, missingRequired(basicSchema.Required, config)...)
		result.IsValid = len(result.Errors) == 0
		return result
	}

	result.Errors = append(result.Errors, missingRequired(schema.Required, config)...)

	fields := make([]string, 0, len(schema.Validators))
	for field := range schema.Validators {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		value, present := config[field]
		if !present {
			continue
		}
		if msg := schema.Validators[field](value); msg != "" {
			result.Errors = append(result.Errors, msg)
		}
	}

	known := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for _, f := range schema.Required {
		known[f] = struct{}{}
	}
	for _, f := range schema.Optional {
		known[f] = struct{}{}
	}
	unknown := make([]string, 0)
	for field := range config {
		if _, ok := known[field]; !ok {
			unknown = append(unknown, field)
		}
	}
	sort.Strings(unknown)
	for _, field := range unknown {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unknown field %q in configuration", field))
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

func (v *ConfigValidator) ValidateMultiple(configs map[string]TypedConfig) map[string]ValidationResult {
	results := make(map[string]ValidationResult, len(configs))
	for name, item := range configs {
		results[name] = v.Validate(item.Type, item.Config)
	}
	return results
}

// GenerateReport renders a plain-text summary of one validation run.
func (v *ConfigValidator) GenerateReport(gatewayType string, config map[string]any) string {
	result := v.Validate(gatewayType, config)

	var b strings.Builder
	fmt.Fprintf(&b, "=== Validation report - gateway %s ===\n\n", gatewayType)
	if result.IsValid {
		b.WriteString("configuration is valid\n")
	} else {
		b.WriteString("configuration is invalid\n")
	}
	if len(result.Errors) > 0 {
		b.WriteString("\nerrors:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
	}
	if len(result.Warnings) > 0 {
		b.WriteString("\nwarnings:\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}

func missingRequired(required []string, config map[string]any) []string {
	errs := make([]string, 0)
	for _, field := range required {
		value, ok := config[field]
		if !ok || value == nil {
			errs = append(errs, fmt.Sprintf("required field %q is missing", field))
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Sprintf("required field %q is empty", field))
		}
	}
	return errs
}

func minLength(field string, n int) FieldValidator {
	return func(value any) string {
		s, ok := value.(string)
		if !ok {
			return field + " must be a string"
		}
		if len(s) < n {
			return fmt.Sprintf("%s must have at least %d characters", field, n)
		}
		return ""
	}
}

func prefixField(field, prefix string) FieldValidator {
	return func(value any) string {
		s, ok := value.(string)
		if !ok {
			return field + " must be a string"
		}
		if !strings.HasPrefix(s, prefix) {
			return fmt.Sprintf("%s must start with %s", field, prefix)
		}
		return ""
	}
}

func boolField(field string) FieldValidator {
	return func(value any) string {
		if _, ok := value.(bool); !ok {
			return field + " must be a boolean"
		}
		return ""
	}
}

func (v *ConfigValidator) urlField(field string) FieldValidator {
	return func(value any) string {
		s, ok := value.(string)
		if !ok {
			return field + " must be a string"
		}
		if err := v.validate.Var(s, "required,url"); err != nil {
			return field + " must be a valid URL"
		}
		return ""
	}
}

func normalizeType(gatewayType string) string {
	return strings.ToLower(strings.TrimSpace(gatewayType))
}
