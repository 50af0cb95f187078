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

type GatewayConfigController struct {
	configService *service.GatewayConfigService
	logger        logrus.FieldLogger
}

func NewGatewayConfigController(configService *service.GatewayConfigService) *GatewayConfigController {
	return &GatewayConfigController{
		configService: configService,
		logger:        factory.NewModuleLogger("gateway-config-controller"),
	}
}

func (c *GatewayConfigController) Create(ctx echo.Context) error {
	req, err := types.NewCreateGatewayConfigRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.configService.Create(ctx.Request().Context(), mapper.GatewayConfigInputFromRequest(req))
	if err != nil {
		return c.handleError(ctx, err, "Create gateway config failed")
	}
	return ctx.JSON(http.StatusCreated, &types.GatewayConfigEnvelopeResponse{GatewayConfig: mapper.GatewayConfigToResponse(item)})
}

func (c *GatewayConfigController) Update(ctx echo.Context) error {
	req, err := types.NewUpdateGatewayConfigRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.configService.Update(ctx.Request().Context(), mapper.GatewayConfigInputFromRequest(req))
	if err != nil {
		return c.handleError(ctx, err, "Update gateway config failed")
	}
	return ctx.JSON(http.StatusOK, &types.GatewayConfigEnvelopeResponse{GatewayConfig: mapper.GatewayConfigToResponse(item)})
}

func (c *GatewayConfigController) Get(ctx echo.Context) error {
	req := types.NewGatewayConfigKeyRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.configService.Get(ctx.Request().Context(), req.ClientID, req.Provider)
	if err != nil {
		return c.handleError(ctx, err, "Get gateway config failed")
	}
	return ctx.JSON(http.StatusOK, &types.GatewayConfigEnvelopeResponse{GatewayConfig: mapper.GatewayConfigToResponse(item)})
}

func (c *GatewayConfigController) List(ctx echo.Context) error {
	req := types.NewListGatewayConfigsRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.configService.List(ctx.Request().Context(), req.ClientID)
	if err != nil {
		return c.handleError(ctx, err, "List gateway configs failed")
	}
	return ctx.JSON(http.StatusOK, &types.ListGatewayConfigsResponse{GatewayConfigs: mapper.GatewayConfigsToResponse(items)})
}

func (c *GatewayConfigController) Delete(ctx echo.Context) error {
	req := types.NewGatewayConfigKeyRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	if err := c.configService.Delete(ctx.Request().Context(), req.ClientID, req.Provider); err != nil {
		return c.handleError(ctx, err, "Delete gateway config failed")
	}
	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Gateway config deleted"})
}

func (c *GatewayConfigController) Validate(ctx echo.Context) error {
	req, err := types.NewCreateGatewayConfigRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result := c.configService.Validate(mapper.GatewayConfigInputFromRequest(req))
	return ctx.JSON(http.StatusOK, mapper.ValidationResultToResponse(result))
}

func (c *GatewayConfigController) Gateways(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.ListGatewaysResponse{Gateways: mapper.GatewayTypesToResponse(c.configService.Gateways())})
}

func (c *GatewayConfigController) handleError(ctx echo.Context, err error, action string) error {
	var verr *service.ConfigValidationError
	switch {
	case errors.As(err, &verr):
		return ctx.JSON(http.StatusBadRequest, &types.ValidationResultResponse{
			IsValid:  false,
			Errors:   verr.Errors,
			Warnings: verr.Warnings,
		})
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrGatewayConfigNotFound):
		return writeError(ctx, http.StatusNotFound, "gateway config not found")
	case errors.Is(err, service.ErrGatewayConfigAlreadyExists):
		return writeError(ctx, http.StatusConflict, err.Error())
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(action)
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}
