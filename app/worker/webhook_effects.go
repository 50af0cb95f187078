package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
)

type webhookOrderStore interface {
	Create(ctx context.Context, order *entity.Order) error
	Update(ctx context.Context, order *entity.Order) error
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*entity.Order, error)
}

// trackingEmailDelay gives the tracking job a head start over the email that
// needs its code.
const (
	trackingEmailDelay       = 5 * time.Second
	trackingEmailMaxAttempts = 5
)

type orderItemStore interface {
	ReplaceForOrder(ctx context.Context, orderID string, items []entity.OrderItem) error
}

// WebhookEffectsWorker applies a normalized payment webhook to the order it
// belongs to and enqueues the follow-up tracking and email jobs.
type WebhookEffectsWorker struct {
	orders webhookOrderStore
	items  orderItemStore
	queue  Enqueuer
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewWebhookEffectsWorker(orders webhookOrderStore, items orderItemStore, enqueuer Enqueuer) *WebhookEffectsWorker {
	return &WebhookEffectsWorker{
		orders: orders,
		items:  items,
		queue:  enqueuer,
		logger: factory.NewModuleLogger("webhook-effects-worker"),
		now:    time.Now,
	}
}

func (w *WebhookEffectsWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p WebhookEffectsPayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(invalidPayload(err))
	}
	result := p.Result
	if err := result.Validate(); err != nil {
		return queue.Permanent(invalidPayload(err))
	}
	if !result.Processed {
		return nil
	}

	status := gateway.NormalizePaymentStatus(p.Provider, result.NewStatus)
	paid := status == gateway.StatusPaid
	logger := w.logger.WithFields(logrus.Fields{
		"provider":   p.Provider,
		"payment_id": result.PaymentID,
		"status":     status,
	})

	order, err := w.findOrder(ctx, result)
	if err != nil {
		return err
	}

	now := w.now()
	switch {
	case order != nil:
		applyPayment(order, result, status, now)
		if err := w.orders.Update(ctx, order); err != nil {
			return err
		}
	case paid:
		order = newOrderFromWebhook(result, status, now)
		if err := w.orders.Create(ctx, order); err != nil {
			if !errors.Is(err, repository.ErrOrderAlreadyExists) {
				return err
			}
			if order, err = w.orders.FindByID(ctx, order.ID); err != nil || order == nil {
				return errors.Join(repository.ErrOrderAlreadyExists, err)
			}
		}
	default:
		logger.Info("webhook_order_not_found")
		return nil
	}

	if len(result.Items) > 0 {
		if err := w.items.ReplaceForOrder(ctx, order.ID, orderItems(order.ID, result.Items, now)); err != nil {
			return err
		}
	}

	if !paid {
		logger.WithField("order_id", order.ID).Info("order_payment_status_updated")
		return nil
	}

	if order.TrackingCode == nil || *order.TrackingCode == "" {
		if _, err := w.queue.Enqueue(ctx, queue.TrackingQueue,
			TrackingPayload{OrderID: order.ID, ClientID: order.ClientID},
			queue.WithJobID("tracking:"+order.ID),
		); err != nil {
			return err
		}
		logger.WithField("order_id", order.ID).Info("tracking_code_enqueued")
	}

	if !shouldSendTrackingEmail(p.Provider, order, result) {
		logger.WithFields(logrus.Fields{
			"order_id":         order.ID,
			"fulfillment_note": stringValue(order.FulfillmentNote),
		}).Info("tracking_email_skipped")
		return nil
	}

	if _, err := w.queue.Enqueue(ctx, queue.TrackingEmailQueue,
		TrackingEmailPayload{OrderID: order.ID},
		queue.WithJobID("tracking-email:"+order.ID),
		queue.WithDelay(trackingEmailDelay),
		queue.WithMaxAttempts(trackingEmailMaxAttempts),
	); err != nil {
		return err
	}
	logger.WithField("order_id", order.ID).Info("tracking_email_enqueued")
	return nil
}

func (w *WebhookEffectsWorker) findOrder(ctx context.Context, result gateway.WebhookResult) (*entity.Order, error) {
	if result.OrderID != "" {
		order, err := w.orders.FindByID(ctx, result.OrderID)
		if err != nil || order != nil {
			return order, err
		}
	}
	return w.orders.FindByPaymentID(ctx, result.PaymentID)
}

func applyPayment(order *entity.Order, result gateway.WebhookResult, status gateway.Status, now time.Time) {
	paymentID := result.PaymentID
	order.PaymentID = &paymentID
	order.PaymentStatus = string(status)
	switch status {
	case gateway.StatusPaid:
		if order.Status == "" || order.Status == entity.OrderStatusPending {
			order.Status = entity.OrderStatusPaid
		}
	case gateway.StatusCancelled, gateway.StatusExpired, gateway.StatusRefunded:
		order.Status = entity.OrderStatusCancelled
	}
	if result.Shipping.IsComplete() && !order.HasShippingAddress {
		address := result.Shipping.String()
		order.ShippingAddress = &address
		order.City = result.Shipping.City
		order.HasShippingAddress = true
		order.FulfillmentNote = nil
	}
	order.UpdatedAt = now
}

func newOrderFromWebhook(result gateway.WebhookResult, status gateway.Status, now time.Time) *entity.Order {
	id := result.OrderID
	if id == "" {
		id = uuid.NewString()
	}
	paymentID := result.PaymentID
	order := &entity.Order{
		ID:            id,
		ClientID:      result.ClientID,
		GatewayID:     result.GatewayID,
		CreatedBy:     result.SellerID,
		AmountCents:   result.Amount,
		PaymentID:     &paymentID,
		PaymentStatus: string(status),
		CustomerName:  entity.DefaultCustomerName,
		Status:        entity.OrderStatusPaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if c := result.Customer; c != nil {
		if strings.TrimSpace(c.Name) != "" {
			order.CustomerName = c.Name
		}
		order.CustomerEmail = c.Email
		order.CustomerPhone = c.Phone
		order.CustomerDocument = c.Document
	}
	if result.Shipping.IsComplete() {
		address := result.Shipping.String()
		order.ShippingAddress = &address
		order.City = result.Shipping.City
		order.HasShippingAddress = true
	} else {
		note := result.FulfillmentNote
		if note == "" {
			note = gateway.NotApplicableForEmail
		}
		order.FulfillmentNote = &note
	}
	if order.AmountCents == 0 {
		order.AmountCents = gateway.ItemsTotal(result.Items)
	}
	return order
}

func orderItems(orderID string, items []gateway.Item, now time.Time) []entity.OrderItem {
	out := make([]entity.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, entity.OrderItem{
			OrderID:     orderID,
			Name:        item.Name,
			Description: item.Description,
			SKU:         item.SKU,
			Brand:       item.Brand,
			Category:    item.Category,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			WeightGrams: item.WeightGrams,
			CreatedAt:   now,
		})
	}
	return out
}

// shouldSendTrackingEmail requires a deliverable physical order with a named
// recipient and a confirmed payment event.
func shouldSendTrackingEmail(provider string, order *entity.Order, result gateway.WebhookResult) bool {
	if order.EmailSent || !order.HasShippingAddress {
		return false
	}
	if strings.TrimSpace(order.CustomerEmail) == "" || strings.TrimSpace(order.CustomerName) == "" {
		return false
	}
	if len(result.Items) > 0 && !hasPhysicalItem(result.Items) {
		return false
	}
	switch gateway.NormalizeWebhookEventType(provider, result.EventType) {
	case gateway.EventPaymentConfirmed, gateway.EventPaymentPaid, gateway.EventTransactionPaid:
		return true
	}
	return gateway.IsPaidLike(provider, result.NewStatus)
}

func hasPhysicalItem(items []gateway.Item) bool {
	for _, item := range items {
		if item.IsPhysical() {
			return true
		}
	}
	return false
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
