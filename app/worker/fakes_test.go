package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
	"github.com/vibast-solutions/ms-go-logistics/app/mail"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
)

func newJob(t *testing.T, queueName string, payload any) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Queue: queueName, Payload: raw, Attempt: 1, MaxAttempts: 3}
}

// drain returns every job of a queue, delayed ones included, in run order.
func drain(t *testing.T, broker *queue.MemoryBroker, queueName string) []*queue.Job {
	t.Helper()
	broker.SetClock(func() time.Time { return time.Now().Add(24 * time.Hour) })
	defer broker.SetClock(time.Now)

	var jobs []*queue.Job
	for {
		job, err := broker.Dequeue(context.Background(), queueName, 0)
		require.NoError(t, err)
		if job == nil {
			return jobs
		}
		jobs = append(jobs, job)
	}
}

type fakeOrders struct {
	mu              sync.Mutex
	orders          map[string]*entity.Order
	takenCodes      map[string]bool
	updatePaymentFn func(orderID, paymentID, status string) error
}

func newFakeOrders(orders ...*entity.Order) *fakeOrders {
	f := &fakeOrders{orders: map[string]*entity.Order{}, takenCodes: map[string]bool{}}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrders) get(id string) *entity.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeOrders) Create(_ context.Context, order *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[order.ID]; ok {
		return repository.ErrOrderAlreadyExists
	}
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeOrders) Update(_ context.Context, order *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeOrders) UpdatePayment(_ context.Context, orderID, paymentID, status string, _ time.Time) error {
	if f.updatePaymentFn != nil {
		if err := f.updatePaymentFn(orderID, paymentID, status); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.PaymentID = &paymentID
	order.PaymentStatus = status
	return nil
}

func (f *fakeOrders) FindByID(_ context.Context, id string) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrders) FindByPaymentID(_ context.Context, paymentID string) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.PaymentID != nil && *order.PaymentID == paymentID {
			copied := *order
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeOrders) SetTrackingCode(_ context.Context, orderID, code string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takenCodes[code] {
		return repository.ErrTrackingCodeTaken
	}
	order, ok := f.orders[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.TrackingCode = &code
	f.takenCodes[code] = true
	return nil
}

func (f *fakeOrders) TrackingCodeExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.takenCodes[code], nil
}

func (f *fakeOrders) MarkEmailSent(_ context.Context, orderID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok || order.EmailSent {
		return false, nil
	}
	order.EmailSent = true
	order.EmailSentAt = &at
	return true, nil
}

type fakeItems struct {
	mu    sync.Mutex
	items map[string][]entity.OrderItem
}

func (f *fakeItems) ReplaceForOrder(_ context.Context, orderID string, items []entity.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[string][]entity.OrderItem{}
	}
	f.items[orderID] = items
	return nil
}

type fakeSender struct {
	mu       sync.Mutex
	messages []mail.Message
	failFor  map[string]error
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, to := range msg.To {
		if err, ok := f.failFor[to]; ok {
			return "", err
		}
	}
	f.messages = append(f.messages, msg)
	return "msg-" + msg.To[0], nil
}

func (f *fakeSender) sent() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail.Message(nil), f.messages...)
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (l *countingLimiter) Wait(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.waits++
	return nil
}

type fakeGateway struct {
	customers int
	payments  int
	status    string
	err       error
}

func (g *fakeGateway) Type() string { return "asset" }

func (g *fakeGateway) CreateCustomer(context.Context, gateway.CustomerInput) (*gateway.Customer, error) {
	g.customers++
	return &gateway.Customer{ID: "cus_1"}, nil
}

func (g *fakeGateway) CreatePayment(_ context.Context, in gateway.PaymentInput) (*gateway.Payment, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.payments++
	return &gateway.Payment{ID: "pay_1", Status: g.status, Value: in.Value}, nil
}

func (g *fakeGateway) ProcessWebhook([]byte, http.Header) *gateway.WebhookResult {
	return &gateway.WebhookResult{Error: "unused"}
}

type fakeResolver struct {
	gateway *fakeGateway
	err     error
}

func (r *fakeResolver) Resolve(context.Context, string, string) (gateway.PaymentGateway, *entity.GatewayConfig, error) {
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.gateway, &entity.GatewayConfig{ClientID: "client-1", Provider: "asset"}, nil
}

// fakeProgress mirrors the clamped campaign_progress UPDATE.
type fakeProgress struct {
	mu   sync.Mutex
	rows map[string]*entity.CampaignProgress
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{rows: map[string]*entity.CampaignProgress{}}
}

func (s *fakeProgress) Initialize(_ context.Context, p *entity.CampaignProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.rows[p.CampaignID] = &copied
	return nil
}

func (s *fakeProgress) Increment(_ context.Context, id string, sent, failed, batch int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return errors.New("campaign progress not found")
	}
	p.SentCount = min(p.SentCount+sent, p.TotalLeads-p.FailedCount)
	p.FailedCount = min(p.FailedCount+failed, p.TotalLeads-p.SentCount)
	p.CurrentBatch = min(max(p.CurrentBatch, batch), p.TotalBatches)
	if p.Status == entity.CampaignStatusProcessing && p.SentCount+p.FailedCount >= p.TotalLeads {
		p.Status = entity.CampaignStatusCompleted
		p.CompletedAt = &now
	}
	return nil
}

func (s *fakeProgress) UpdateStatus(_ context.Context, id, status string, msg *string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok || p.IsTerminal() {
		return errors.New("campaign progress not found")
	}
	p.Status = status
	p.ErrorMessage = msg
	return nil
}

func (s *fakeProgress) SetCurrentBatch(_ context.Context, id string, batch int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.rows[id]
	p.CurrentBatch = min(max(p.CurrentBatch, batch), p.TotalBatches)
	return nil
}

func (s *fakeProgress) FindByID(_ context.Context, id string) (*entity.CampaignProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (s *fakeProgress) Status(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return "", errors.New("campaign progress not found")
	}
	return p.Status, nil
}

func (s *fakeProgress) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id].Status = status
}

type fakeCampaigns map[string]*entity.LeadCampaign

func (f fakeCampaigns) FindByID(_ context.Context, id string) (*entity.LeadCampaign, error) {
	return f[id], nil
}

type memorySource map[string][]entity.Lead

func (m memorySource) Load(_ context.Context, path string) ([]entity.Lead, error) {
	list, ok := m[path]
	if !ok {
		return nil, errors.New("lead list not found")
	}
	return list, nil
}

func (m memorySource) Store(_ context.Context, path string, list []entity.Lead) error {
	m[path] = list
	return nil
}
