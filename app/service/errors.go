package service

import (
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
)

var (
	ErrInvalidRequest             = errors.New("invalid request")
	ErrInvalidWebhookPayload      = errors.New("invalid webhook payload")
	ErrProviderUnsupported        = errors.New("provider is not supported")
	ErrGatewayConfigNotFound      = gateway.ErrConfigNotFound
	ErrGatewayConfigInvalid       = errors.New("gateway configuration is invalid")
	ErrGatewayConfigAlreadyExists = errors.New("gateway configuration already exists")
	ErrSignatureRejected          = errors.New("webhook signature rejected")
	ErrOrderNotFound              = errors.New("order not found")
	ErrPaymentAlreadyRequested    = errors.New("order already has a payment")
	ErrCampaignNotFound           = errors.New("campaign not found")
	ErrInvalidCampaignState       = errors.New("campaign cannot change to the requested state")
	ErrJobNotFound                = errors.New("job not found")
)

// ConfigValidationError lists every schema failure of a gateway config.
type ConfigValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ConfigValidationError) Error() string {
	return ErrGatewayConfigInvalid.Error() + ": " + strings.Join(e.Errors, "; ")
}

func (e *ConfigValidationError) Unwrap() error {
	return ErrGatewayConfigInvalid
}
