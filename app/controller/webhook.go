package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/mapper"
	"github.com/vibast-solutions/ms-go-logistics/app/service"
	"github.com/vibast-solutions/ms-go-logistics/app/types"
)

type WebhookController struct {
	webhookService *service.WebhookService
	maxBodyBytes   int64
	logger         logrus.FieldLogger
}

func NewWebhookController(webhookService *service.WebhookService, maxBodyBytes int64) *WebhookController {
	return &WebhookController{
		webhookService: webhookService,
		maxBodyBytes:   maxBodyBytes,
		logger:         factory.NewModuleLogger("webhook-controller"),
	}
}

func (c *WebhookController) Receive(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx, c.maxBodyBytes)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	outcome, err := c.webhookService.Handle(ctx.Request().Context(), service.WebhookRequest{
		Provider: req.Provider,
		ClientID: req.ClientID,
		RawBody:  req.RawBody,
		Headers:  req.Headers,
	})
	if err != nil {
		logger := factory.LoggerWithContext(c.logger, ctx).WithField("provider", req.Provider)
		switch {
		case errors.Is(err, service.ErrProviderUnsupported),
			errors.Is(err, service.ErrInvalidRequest),
			errors.Is(err, service.ErrInvalidWebhookPayload):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrSignatureRejected):
			logger.WithField("security_event", true).WithField("remote_ip", ctx.RealIP()).Warn("webhook_signature_rejected")
			return writeError(ctx, http.StatusForbidden, "invalid signature")
		case errors.Is(err, service.ErrGatewayConfigNotFound):
			return writeError(ctx, http.StatusNotFound, "gateway configuration not found")
		default:
			logger.WithError(err).Error("Handle webhook failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.WebhookOutcomeToResponse(outcome))
}
