package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
	"github.com/vibast-solutions/ms-go-logistics/app/worker"
)

type orderReader interface {
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	List(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error)
}

type orderItemReader interface {
	ListByOrder(ctx context.Context, orderID string) ([]entity.OrderItem, error)
}

type RequestPaymentInput struct {
	OrderID     string
	GatewayType string
	DueDate     string
	Description string
}

type OrderService struct {
	orders   orderReader
	items    orderItemReader
	registry *gateway.Registry
	queue    jobEnqueuer
}

func NewOrderService(orders orderReader, items orderItemReader, registry *gateway.Registry, enqueuer jobEnqueuer) *OrderService {
	return &OrderService{orders: orders, items: items, registry: registry, queue: enqueuer}
}

// Get returns the order with its line items.
func (s *OrderService) Get(ctx context.Context, orderID string) (*entity.Order, []entity.OrderItem, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, nil, ErrInvalidRequest
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, ErrOrderNotFound
	}
	items, err := s.items.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list items of order %s: %w", order.ID, err)
	}
	return order, items, nil
}

func (s *OrderService) List(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.orders.List(ctx, filter)
}

// RequestPayment enqueues the remote payment creation for an order. Repeated
// requests for the same order collapse onto one job.
func (s *OrderService) RequestPayment(ctx context.Context, in RequestPaymentInput) (string, error) {
	orderID := strings.TrimSpace(in.OrderID)
	gatewayType := strings.ToLower(strings.TrimSpace(in.GatewayType))
	if orderID == "" || gatewayType == "" {
		return "", ErrInvalidRequest
	}
	if !s.registry.IsRegistered(gatewayType) {
		return "", fmt.Errorf("%w: %q (available: %s)", ErrProviderUnsupported, gatewayType, strings.Join(s.registry.AvailableTypes(), ", "))
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order == nil {
		return "", ErrOrderNotFound
	}
	if order.PaymentID != nil && *order.PaymentID != "" {
		return "", ErrPaymentAlreadyRequested
	}
	if order.AmountCents <= 0 {
		return "", fmt.Errorf("%w: order has no amount", ErrInvalidRequest)
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = "Pedido " + order.ID
	}

	return s.queue.Enqueue(ctx, queue.PaymentCreationQueue, worker.PaymentCreationPayload{
		OrderID:     order.ID,
		ClientID:    order.ClientID,
		GatewayType: gatewayType,
		Amount:      gateway.ConvertAmount(float64(order.AmountCents), gateway.UnitCents, gateway.UnitReals),
		DueDate:     strings.TrimSpace(in.DueDate),
		Customer: worker.CustomerPayload{
			Name:  order.CustomerName,
			Email: order.CustomerEmail,
			Phone: order.CustomerPhone,
		},
		Description: description,
	}, queue.WithJobID("payment-creation:"+order.ID))
}
