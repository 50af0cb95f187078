package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/mapper"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
	"github.com/vibast-solutions/ms-go-logistics/app/service"
	"github.com/vibast-solutions/ms-go-logistics/app/types"
)

type OrderController struct {
	orderService *service.OrderService
	leadService  *service.LeadOfferService
	logger       logrus.FieldLogger
}

func NewOrderController(orderService *service.OrderService, leadService *service.LeadOfferService) *OrderController {
	return &OrderController{
		orderService: orderService,
		leadService:  leadService,
		logger:       factory.NewModuleLogger("order-controller"),
	}
}

func (c *OrderController) Get(ctx echo.Context) error {
	req, err := types.NewGetOrderRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	order, items, err := c.orderService.Get(ctx.Request().Context(), req.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrOrderNotFound):
			return writeError(ctx, http.StatusNotFound, "order not found")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get order failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}
	return ctx.JSON(http.StatusOK, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(order, items)})
}

func (c *OrderController) List(ctx echo.Context) error {
	req, err := types.NewListOrdersRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	orders, err := c.orderService.List(ctx.Request().Context(), repository.OrderFilter{
		ClientID:      req.ClientID,
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		Limit:         req.Limit,
		Offset:        req.Offset,
	})
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List orders failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
	return ctx.JSON(http.StatusOK, &types.ListOrdersResponse{Orders: mapper.OrdersToResponse(orders)})
}

func (c *OrderController) RequestPayment(ctx echo.Context) error {
	req, err := types.NewRequestPaymentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	jobID, err := c.orderService.RequestPayment(ctx.Request().Context(), service.RequestPaymentInput{
		OrderID:     req.OrderID,
		GatewayType: req.GatewayType,
		DueDate:     req.DueDate,
		Description: req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported):
			return writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrOrderNotFound):
			return writeError(ctx, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrPaymentAlreadyRequested):
			return writeError(ctx, http.StatusConflict, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Request order payment failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}
	return ctx.JSON(http.StatusAccepted, &types.JobAcceptedResponse{JobID: jobID})
}

func (c *OrderController) SubmitLeadOffer(ctx echo.Context) error {
	req, err := types.NewLeadOfferRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	in, err := mapper.LeadOfferInputFromRequest(req)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	jobID, valid, err := c.leadService.Submit(ctx.Request().Context(), in)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Submit lead offer failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
	return ctx.JSON(http.StatusAccepted, &types.LeadOfferAcceptedResponse{JobID: jobID, ValidLeads: valid})
}
