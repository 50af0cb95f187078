package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/mail"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
)

type trackingEmailOrderStore interface {
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	MarkEmailSent(ctx context.Context, orderID string, at time.Time) (bool, error)
}

type TrackingEmailWorker struct {
	orders   trackingEmailOrderStore
	sender   mail.Sender
	identity mail.Identity
	appURL   string
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewTrackingEmailWorker sends tracking notifications from the default
// identity.
func NewTrackingEmailWorker(orders trackingEmailOrderStore, sender mail.Sender, identity mail.Identity, appURL string) *TrackingEmailWorker {
	return &TrackingEmailWorker{
		orders:   orders,
		sender:   sender,
		identity: identity,
		appURL:   strings.TrimRight(appURL, "/"),
		logger:   factory.NewModuleLogger("tracking-email-worker"),
		now:      time.Now,
	}
}

func TrackingURL(appURL, code string) string {
	return strings.TrimRight(appURL, "/") + "/tracking/" + code
}

func (w *TrackingEmailWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p TrackingEmailPayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(invalidPayload(err))
	}

	order, err := w.orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return queue.Permanent(ErrOrderNotFound)
	}
	if order.EmailSent {
		return nil
	}
	if order.TrackingCode == nil || *order.TrackingCode == "" {
		return errors.New("order has no tracking code yet")
	}
	if strings.TrimSpace(order.CustomerEmail) == "" {
		return queue.Permanent(errors.New("order has no customer email"))
	}

	code := *order.TrackingCode
	subject, html, err := mail.RenderTrackingEmail(mail.TrackingEmailData{
		CustomerName: order.CustomerName,
		TrackingCode: code,
		OrderID:      order.ID,
		TrackingURL:  TrackingURL(w.appURL, code),
		BrandName:    w.identity.FromName,
	})
	if err != nil {
		return queue.Permanent(err)
	}

	messageID, err := w.sender.Send(ctx, mail.Message{
		From:    w.identity.From(),
		To:      []string{order.CustomerEmail},
		ReplyTo: w.identity.ReplyTo,
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		if errors.Is(err, mail.ErrInvalidMessage) {
			return queue.Permanent(err)
		}
		return err
	}

	if _, err := w.orders.MarkEmailSent(ctx, order.ID, w.now()); err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{"order_id": order.ID, "alarm": true}).Error("email_sent_flag_not_saved")
		return queue.Permanent(err)
	}
	w.logger.WithFields(logrus.Fields{"order_id": order.ID, "message_id": messageID}).Info("tracking_email_sent")
	return nil
}
