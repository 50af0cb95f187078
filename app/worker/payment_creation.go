package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
)

const (
	localUpdateSuffix = ":local-update"
	defaultDueDays    = 3
)

type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload any, opts ...queue.EnqueueOption) (string, error)
}

type gatewayResolver interface {
	Resolve(ctx context.Context, clientID, gatewayType string) (gateway.PaymentGateway, *entity.GatewayConfig, error)
}

type orderPaymentStore interface {
	UpdatePayment(ctx context.Context, orderID, paymentID, paymentStatus string, now time.Time) error
}

type PaymentCreationWorker struct {
	resolver gatewayResolver
	orders   orderPaymentStore
	queue    Enqueuer
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewPaymentCreationWorker(resolver gatewayResolver, orders orderPaymentStore, enqueuer Enqueuer) *PaymentCreationWorker {
	return &PaymentCreationWorker{
		resolver: resolver,
		orders:   orders,
		queue:    enqueuer,
		logger:   factory.NewModuleLogger("payment-creation-worker"),
		now:      time.Now,
	}
}

func (w *PaymentCreationWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p PaymentCreationPayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(invalidPayload(err))
	}
	if strings.TrimSpace(p.OrderID) == "" {
		return queue.Permanent(invalidPayload(errors.New("order_id is required")))
	}

	if p.RemotePaymentID != "" {
		return w.updateLocal(ctx, p.OrderID, p.RemotePaymentID, p.RemotePaymentStatus)
	}

	if strings.TrimSpace(p.ClientID) == "" || strings.TrimSpace(p.GatewayType) == "" || p.Amount <= 0 {
		return queue.Permanent(invalidPayload(errors.New("client_id, gateway_type and a positive amount are required")))
	}

	g, _, err := w.resolver.Resolve(ctx, p.ClientID, p.GatewayType)
	if err != nil {
		if gateway.IsConfigurationError(err) {
			return queue.Permanent(err)
		}
		return err
	}

	customer, err := g.CreateCustomer(ctx, gateway.CustomerInput{
		Name:  p.Customer.Name,
		Email: p.Customer.Email,
		Phone: p.Customer.Phone,
	})
	if err != nil {
		return w.remoteError("create customer", err)
	}

	description := p.Description
	if description == "" {
		description = "Pedido " + p.OrderID
	}
	dueDate := p.DueDate
	if dueDate == "" {
		dueDate = w.now().AddDate(0, 0, defaultDueDays).Format("2006-01-02")
	}

	payment, err := g.CreatePayment(ctx, gateway.PaymentInput{
		CustomerID:  customer.ID,
		Value:       p.Amount,
		DueDate:     dueDate,
		Description: description,
	})
	if err != nil {
		return w.remoteError("create payment", err)
	}

	status := string(gateway.NormalizePaymentStatus(g.Type(), payment.Status))
	if err := w.orders.UpdatePayment(ctx, p.OrderID, payment.ID, status, w.now()); err != nil {
		return w.scheduleLocalUpdate(ctx, job, p, payment.ID, status, err)
	}
	return nil
}

func (w *PaymentCreationWorker) remoteError(step string, err error) error {
	if gateway.IsConfigurationError(err) {
		return queue.Permanent(fmt.Errorf("%s: %w", step, err))
	}
	return fmt.Errorf("%s: %w", step, err)
}

func (w *PaymentCreationWorker) updateLocal(ctx context.Context, orderID, paymentID, status string) error {
	err := w.orders.UpdatePayment(ctx, orderID, paymentID, status, w.now())
	if err == nil {
		return nil
	}
	consistency := &DataConsistencyError{OrderID: orderID, RemotePaymentID: paymentID, Err: err}
	w.logger.WithError(err).WithFields(logrus.Fields{
		"alarm":             true,
		"order_id":          orderID,
		"remote_payment_id": paymentID,
	}).Error("payment_local_update_failed")
	if errors.Is(err, repository.ErrOrderNotFound) {
		return queue.Permanent(consistency)
	}
	return consistency
}

// scheduleLocalUpdate hands the local step to a follow-up job so retries
// never create a second remote payment.
func (w *PaymentCreationWorker) scheduleLocalUpdate(ctx context.Context, job *queue.Job, p PaymentCreationPayload, paymentID, status string, cause error) error {
	consistency := &DataConsistencyError{OrderID: p.OrderID, RemotePaymentID: paymentID, Err: cause}
	logger := w.logger.WithError(cause).WithFields(logrus.Fields{
		"alarm":             true,
		"order_id":          p.OrderID,
		"remote_payment_id": paymentID,
	})

	p.RemotePaymentID = paymentID
	p.RemotePaymentStatus = status
	if _, err := w.queue.Enqueue(ctx, queue.PaymentCreationQueue, p, queue.WithJobID(job.ID+localUpdateSuffix)); err != nil {
		logger.WithField("enqueue_error", err.Error()).Error("payment_local_update_not_scheduled")
		return queue.Permanent(consistency)
	}

	logger.Error("payment_local_update_failed")
	return queue.Permanent(consistency)
}
