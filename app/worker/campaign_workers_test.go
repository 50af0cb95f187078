package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibast-solutions/ms-go-logistics/app/campaign"
	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/mail"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
)

func makeLeads(n int) []entity.Lead {
	list := make([]entity.Lead, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, entity.Lead{Email: fmt.Sprintf("lead%03d@example.com", i), Nome: fmt.Sprintf("Lead %d", i)})
	}
	return list
}

type campaignFixture struct {
	progress *fakeProgress
	tracker  *campaign.Tracker
	broker   *queue.MemoryBroker
	worker   *MassEmailCampaignWorker
}

func newCampaignFixture(t *testing.T, leadCount int) campaignFixture {
	t.Helper()
	progress := newFakeProgress()
	tracker := campaign.NewTracker(progress, nil)
	broker := queue.NewMemoryBroker(queue.DefaultRetryPolicy(), nil)
	campaigns := fakeCampaigns{"camp-1": {ID: "camp-1", FilePath: "leads/camp-1.json", TotalLeads: leadCount}}
	source := memorySource{"leads/camp-1.json": makeLeads(leadCount)}
	return campaignFixture{
		progress: progress,
		tracker:  tracker,
		broker:   broker,
		worker:   NewMassEmailCampaignWorker(tracker, campaigns, source, broker, 3),
	}
}

func TestBatchDelay(t *testing.T) {
	assert.Equal(t, 11*time.Millisecond, BatchDelay(90, 1))
	assert.Equal(t, 33*time.Millisecond, BatchDelay(90, 3))
	assert.Equal(t, 2*time.Millisecond, BatchDelay(500, 1))
}

func TestCampaignWorkerEnqueuesBatchesInOrder(t *testing.T) {
	f := newCampaignFixture(t, 120)

	err := f.worker.Handle(context.Background(), newJob(t, queue.MassEmailCampaignQueue, MassEmailCampaignJob{
		CampaignID: "camp-1",
		UserID:     "user-1",
		BatchSize:  50,
	}))
	require.NoError(t, err)

	snapshot, err := f.tracker.Snapshot(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, entity.CampaignStatusProcessing, snapshot.Status)
	assert.Equal(t, 120, snapshot.TotalLeads)
	assert.Equal(t, 3, snapshot.TotalBatches)
	require.NotNil(t, snapshot.EstimatedCompletion)

	jobs := drain(t, f.broker, queue.MassEmailBatchQueue)
	require.Len(t, jobs, 3)
	sizes := []int{50, 50, 20}
	for i, job := range jobs {
		var batch MassEmailBatchJob
		require.NoError(t, job.Decode(&batch))
		assert.Equal(t, i+1, batch.BatchNumber)
		assert.Equal(t, fmt.Sprintf("camp-1-batch-%d", i+1), batch.BatchID)
		assert.Equal(t, batch.BatchID, job.ID)
		assert.Equal(t, 3, batch.TotalBatches)
		assert.Equal(t, DefaultRatePerSecond, batch.RateLimit)
		assert.Len(t, batch.Leads, sizes[i])
		assert.Equal(t, 3, job.MaxAttempts)
	}
}

type pausingTracker struct {
	*campaign.Tracker
	progress *fakeProgress
	calls    int
	pauseAt  int
}

func (p *pausingTracker) Status(ctx context.Context, id string) (string, error) {
	p.calls++
	if p.calls == p.pauseAt {
		p.progress.setStatus(id, entity.CampaignStatusPaused)
	}
	return p.Tracker.Status(ctx, id)
}

func TestCampaignWorkerStopsWhenPausedAndResumes(t *testing.T) {
	f := newCampaignFixture(t, 200)
	tracker := &pausingTracker{Tracker: f.tracker, progress: f.progress, pauseAt: 3}
	w := NewMassEmailCampaignWorker(tracker, f.worker.campaigns, f.worker.source, f.broker, 3)

	job := MassEmailCampaignJob{CampaignID: "camp-1", BatchSize: 50}
	require.NoError(t, w.Handle(context.Background(), newJob(t, queue.MassEmailCampaignQueue, job)))

	first := drain(t, f.broker, queue.MassEmailBatchQueue)
	require.Len(t, first, 2)

	snapshot, err := f.tracker.Snapshot(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, entity.CampaignStatusPaused, snapshot.Status)
	assert.Equal(t, 2, snapshot.CurrentBatch)

	f.progress.setStatus("camp-1", entity.CampaignStatusProcessing)
	job.ResumeFrom = snapshot.CurrentBatch
	tracker.pauseAt = 0
	require.NoError(t, w.Handle(context.Background(), newJob(t, queue.MassEmailCampaignQueue, job)))

	resumed := drain(t, f.broker, queue.MassEmailBatchQueue)
	require.Len(t, resumed, 2)
	assert.Equal(t, "camp-1-batch-3", resumed[0].ID)
	assert.Equal(t, "camp-1-batch-4", resumed[1].ID)

	after, err := f.tracker.Snapshot(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, after.SentCount, "resume must not reset progress")
}

func TestCampaignWorkerMissingCampaignFails(t *testing.T) {
	progress := newFakeProgress()
	tracker := campaign.NewTracker(progress, nil)
	_, err := tracker.Start(context.Background(), campaign.StartInput{CampaignID: "ghost", TotalLeads: 1, BatchSize: 1})
	require.NoError(t, err)

	w := NewMassEmailCampaignWorker(tracker, fakeCampaigns{}, memorySource{}, queue.NewMemoryBroker(queue.DefaultRetryPolicy(), nil), 3)
	err = w.Handle(context.Background(), newJob(t, queue.MassEmailCampaignQueue, MassEmailCampaignJob{CampaignID: "ghost"}))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))

	status, err := tracker.Status(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, entity.CampaignStatusFailed, status)
}

func TestCampaignWorkerEmptyListCompletes(t *testing.T) {
	f := newCampaignFixture(t, 0)
	require.NoError(t, f.worker.Handle(context.Background(), newJob(t, queue.MassEmailCampaignQueue, MassEmailCampaignJob{CampaignID: "camp-1"})))

	status, err := f.tracker.Status(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, entity.CampaignStatusCompleted, status)
}

func TestBatchWorkerPersonalizesAndCounts(t *testing.T) {
	progress := newFakeProgress()
	tracker := campaign.NewTracker(progress, nil)
	_, err := tracker.Start(context.Background(), campaign.StartInput{CampaignID: "camp-1", TotalLeads: 3, BatchSize: 3})
	require.NoError(t, err)

	sender := &fakeSender{failFor: map[string]error{"bad@example.com": errors.New("bounced")}}
	limiter := &countingLimiter{}
	identities := mail.Identities{
		Default: mail.Identity{FromName: "Default", FromEmail: "default@example.com"},
		Domains: map[string]mail.Identity{"dom-1": {FromName: "Loja", FromEmail: "ofertas@loja.com"}},
	}
	w := NewMassEmailBatchWorker(tracker, sender, limiter, identities)

	batch := MassEmailBatchJob{
		CampaignID:  "camp-1",
		BatchNumber: 1,
		Leads: []entity.Lead{
			{Email: "ana@example.com", Nome: "Ana", CPF: "123"},
			{Email: "sem-nome@example.com"},
			{Email: "bad@example.com", Nome: "Bad"},
		},
		CampaignConfig: CampaignConfig{
			SubjectTemplate: "{{nome}}, {{oferta}}",
			HTMLTemplate:    "<p>{{nome}} {{cpf}} {{desconto}} {{link}} {{descricao}} {{email}}</p>",
			OfferName:       "Kit",
			Discount:        "49,90",
			OfferLink:       "https://loja.com/kit",
			Description:     "Frete grátis",
			DomainID:        "dom-1",
		},
	}
	require.NoError(t, w.Handle(context.Background(), newJob(t, queue.MassEmailBatchQueue, batch)))

	sent := sender.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Ana, Kit", sent[0].Subject)
	assert.Equal(t, "<p>Ana 123 49,90 https://loja.com/kit Frete grátis ana@example.com</p>", sent[0].HTML)
	assert.Equal(t, "Loja <ofertas@loja.com>", sent[0].From)
	assert.Equal(t, "Cliente, Kit", sent[1].Subject)
	assert.Equal(t, 3, limiter.waits)

	snapshot, err := tracker.Snapshot(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.SentCount)
	assert.Equal(t, 1, snapshot.FailedCount)
	assert.Equal(t, entity.CampaignStatusCompleted, snapshot.Status)
}

func TestBatchWorkerLimiterErrorCountsRemainingAsFailed(t *testing.T) {
	progress := newFakeProgress()
	tracker := campaign.NewTracker(progress, nil)
	_, err := tracker.Start(context.Background(), campaign.StartInput{CampaignID: "camp-1", TotalLeads: 4, BatchSize: 4})
	require.NoError(t, err)

	limiter := &countingLimiter{err: context.DeadlineExceeded}
	w := NewMassEmailBatchWorker(tracker, &fakeSender{}, limiter, mail.Identities{Default: mail.Identity{FromEmail: "a@example.com"}})

	err = w.Handle(context.Background(), newJob(t, queue.MassEmailBatchQueue, MassEmailBatchJob{
		CampaignID: "camp-1", BatchNumber: 1, Leads: makeLeads(4),
	}))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	snapshot, err := tracker.Snapshot(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.SentCount)
	assert.Equal(t, 4, snapshot.FailedCount)
}

// A redelivered batch sends its leads again; only the counters are clamped.
func TestRedeliveredBatchesResendButKeepCampaignSumInvariant(t *testing.T) {
	progress := newFakeProgress()
	tracker := campaign.NewTracker(progress, nil)
	_, err := tracker.Start(context.Background(), campaign.StartInput{CampaignID: "camp-1", TotalLeads: 10, BatchSize: 5})
	require.NoError(t, err)

	sender := &fakeSender{}
	w := NewMassEmailBatchWorker(tracker, sender, &countingLimiter{}, mail.Identities{Default: mail.Identity{FromEmail: "a@example.com"}})
	list := makeLeads(10)
	for attempt := 0; attempt < 3; attempt++ {
		for n := 1; n <= 2; n++ {
			job := newJob(t, queue.MassEmailBatchQueue, MassEmailBatchJob{
				CampaignID: "camp-1", BatchNumber: n, Leads: list[(n-1)*5 : n*5],
			})
			require.NoError(t, w.Handle(context.Background(), job))

			snapshot, err := tracker.Snapshot(context.Background(), "camp-1")
			require.NoError(t, err)
			assert.LessOrEqual(t, snapshot.SentCount+snapshot.FailedCount, snapshot.TotalLeads)
			assert.LessOrEqual(t, snapshot.CurrentBatch, snapshot.TotalBatches)
		}
	}

	assert.Len(t, sender.sent(), 30)
	snapshot, err := tracker.Snapshot(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 10, snapshot.SentCount)
}

func TestBatchWorkerSkipsCancelledCampaign(t *testing.T) {
	progress := newFakeProgress()
	tracker := campaign.NewTracker(progress, nil)
	_, err := tracker.Start(context.Background(), campaign.StartInput{CampaignID: "camp-1", TotalLeads: 2, BatchSize: 2})
	require.NoError(t, err)
	progress.setStatus("camp-1", entity.CampaignStatusCancelled)

	sender := &fakeSender{}
	w := NewMassEmailBatchWorker(tracker, sender, &countingLimiter{}, mail.Identities{})
	require.NoError(t, w.Handle(context.Background(), newJob(t, queue.MassEmailBatchQueue, MassEmailBatchJob{
		CampaignID: "camp-1", BatchNumber: 1, Leads: makeLeads(2),
	})))
	assert.Empty(t, sender.sent())
}

func TestLeadProcessingDedupesAndIsIdempotent(t *testing.T) {
	broker := queue.NewMemoryBroker(queue.DefaultRetryPolicy(), nil)
	w := NewLeadProcessingWorker(broker)

	payload := LeadProcessingPayload{
		ClientID: "client-1",
		Leads: []entity.Lead{
			{Email: "ana@example.com"},
			{Email: "ANA@example.com"},
			{Email: "not-an-email"},
			{Email: "bia@example.com"},
		},
		OfferConfig: OfferConfig{OfferName: "Kit"},
	}
	require.NoError(t, w.Handle(context.Background(), newJob(t, queue.LeadProcessingQueue, payload)))
	require.NoError(t, w.Handle(context.Background(), newJob(t, queue.LeadProcessingQueue, payload)))

	jobs := drain(t, broker, queue.LeadEmailQueue)
	require.Len(t, jobs, 2)
	assert.Equal(t, "lead-email:client-1:ana@example.com", jobs[0].ID)
	assert.Equal(t, "lead-email:client-1:bia@example.com", jobs[1].ID)
}

func TestLeadEmailUsesLimiterAndDefaultTemplate(t *testing.T) {
	sender := &fakeSender{}
	limiter := &countingLimiter{}
	w := NewLeadEmailWorker(sender, limiter, mail.Identities{Default: mail.Identity{FromName: "Loja", FromEmail: "loja@example.com"}})

	require.NoError(t, w.Handle(context.Background(), newJob(t, queue.LeadEmailQueue, LeadEmailPayload{
		ClientID:    "client-1",
		Lead:        entity.Lead{Email: "ana@example.com"},
		OfferConfig: OfferConfig{OfferName: "Kit", OfferLink: "https://loja.com"},
	})))

	sent := sender.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].HTML, "Cliente")
	assert.Contains(t, sent[0].Subject, "Kit")
	assert.Equal(t, 1, limiter.waits)
}
