package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
)

const (
	trackingAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	TrackingCodeLength   = 6
	DefaultCollisionRate = 0.01
)

type trackingCodeLookup interface {
	TrackingCodeExists(ctx context.Context, code string) (bool, error)
}

// TrackingCodes issues order tracking codes. A code is rejected when the
// simulated collision check fires or when it is already stored.
type TrackingCodes struct {
	lookup        trackingCodeLookup
	collisionRate float64
	intN          func(n int) int
	float         func() float64
}

func NewTrackingCodes(lookup trackingCodeLookup, collisionRate float64) *TrackingCodes {
	return &TrackingCodes{
		lookup:        lookup,
		collisionRate: collisionRate,
		intN:          rand.IntN,
		float:         rand.Float64,
	}
}

func (c *TrackingCodes) Generate() string {
	var b strings.Builder
	b.Grow(TrackingCodeLength)
	for i := 0; i < TrackingCodeLength; i++ {
		b.WriteByte(trackingAlphabet[c.intN(len(trackingAlphabet))])
	}
	return b.String()
}

// Next returns an unused code or ErrTrackingCodeCollision.
func (c *TrackingCodes) Next(ctx context.Context) (string, error) {
	code := c.Generate()
	if c.float() < c.collisionRate {
		return "", ErrTrackingCodeCollision
	}
	exists, err := c.lookup.TrackingCodeExists(ctx, code)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrTrackingCodeCollision
	}
	return code, nil
}

type trackingOrderStore interface {
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	SetTrackingCode(ctx context.Context, orderID, code string, now time.Time) error
}

type TrackingWorker struct {
	orders trackingOrderStore
	codes  *TrackingCodes
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewTrackingWorker(orders trackingOrderStore, codes *TrackingCodes) *TrackingWorker {
	return &TrackingWorker{
		orders: orders,
		codes:  codes,
		logger: factory.NewModuleLogger("tracking-worker"),
		now:    time.Now,
	}
}

func (w *TrackingWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p TrackingPayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(invalidPayload(err))
	}
	if strings.TrimSpace(p.OrderID) == "" {
		return queue.Permanent(invalidPayload(errors.New("order_id is required")))
	}

	order, err := w.orders.FindByID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return queue.Permanent(ErrOrderNotFound)
	}
	if order.TrackingCode != nil && *order.TrackingCode != "" {
		return nil
	}

	code, err := assignTrackingCode(ctx, w.codes, w.orders, order.ID, w.now())
	if err != nil {
		return err
	}
	w.logger.WithFields(logrus.Fields{"order_id": order.ID, "tracking_code": code}).Info("tracking_code_assigned")
	return nil
}

type trackingCodeSetter interface {
	SetTrackingCode(ctx context.Context, orderID, code string, now time.Time) error
}

// assignTrackingCode stores a fresh code on the order. A collision fails the
// job so the broker retries with a new code.
func assignTrackingCode(ctx context.Context, codes *TrackingCodes, orders trackingCodeSetter, orderID string, now time.Time) (string, error) {
	code, err := codes.Next(ctx)
	if err != nil {
		return "", err
	}
	if err := orders.SetTrackingCode(ctx, orderID, code, now); err != nil {
		if errors.Is(err, repository.ErrTrackingCodeTaken) {
			return "", ErrTrackingCodeCollision
		}
		if errors.Is(err, repository.ErrOrderNotFound) {
			return "", queue.Permanent(ErrOrderNotFound)
		}
		return "", err
	}
	return code, nil
}
