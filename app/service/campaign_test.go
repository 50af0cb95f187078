package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-logistics/app/campaign"
	"github.com/vibast-solutions/ms-go-logistics/app/entity"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
	"github.com/vibast-solutions/ms-go-logistics/app/worker"
	"github.com/vibast-solutions/ms-go-logistics/config"
)

type trackerStub struct {
	snapshots   map[string]*campaign.Snapshot
	started     []campaign.StartInput
	setStatusFn func(campaignID, status string) error
}

func newTrackerStub() *trackerStub {
	return &trackerStub{snapshots: map[string]*campaign.Snapshot{}}
}

func (s *trackerStub) Start(_ context.Context, in campaign.StartInput) (*campaign.Snapshot, error) {
	s.started = append(s.started, in)
	snap := &campaign.Snapshot{
		CampaignID:   in.CampaignID,
		Status:       in.Status,
		TotalLeads:   in.TotalLeads,
		TotalBatches: campaign.TotalBatches(in.TotalLeads, in.BatchSize),
	}
	s.snapshots[in.CampaignID] = snap
	return snap, nil
}

func (s *trackerStub) SetStatus(_ context.Context, campaignID, status string, errorMessage *string) (*campaign.Snapshot, error) {
	if s.setStatusFn != nil {
		if err := s.setStatusFn(campaignID, status); err != nil {
			return nil, err
		}
	}
	snap, ok := s.snapshots[campaignID]
	if !ok {
		return nil, campaign.ErrCampaignNotFound
	}
	snap.Status = status
	if errorMessage != nil {
		snap.ErrorMessage = *errorMessage
	}
	copied := *snap
	return &copied, nil
}

func (s *trackerStub) Snapshot(_ context.Context, campaignID string) (*campaign.Snapshot, error) {
	snap, ok := s.snapshots[campaignID]
	if !ok {
		return nil, nil
	}
	copied := *snap
	return &copied, nil
}

type leadCampaignRepoStub struct {
	items map[string]*entity.LeadCampaign
}

func (r *leadCampaignRepoStub) Create(_ context.Context, c *entity.LeadCampaign) error {
	if _, ok := r.items[c.ID]; ok {
		return repository.ErrLeadCampaignAlreadyExists
	}
	copied := *c
	r.items[c.ID] = &copied
	return nil
}

func (r *leadCampaignRepoStub) FindByID(_ context.Context, id string) (*entity.LeadCampaign, error) {
	return r.items[id], nil
}

type leadSourceStub struct {
	stored map[string][]entity.Lead
}

func (s *leadSourceStub) Load(_ context.Context, path string) ([]entity.Lead, error) {
	list, ok := s.stored[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return list, nil
}

func (s *leadSourceStub) Store(_ context.Context, path string, list []entity.Lead) error {
	s.stored[path] = list
	return nil
}

type campaignFixture struct {
	svc       *CampaignService
	tracker   *trackerStub
	campaigns *leadCampaignRepoStub
	source    *leadSourceStub
	enqueuer  *enqueuerStub
}

func newCampaignFixture() *campaignFixture {
	f := &campaignFixture{
		tracker:   newTrackerStub(),
		campaigns: &leadCampaignRepoStub{items: map[string]*entity.LeadCampaign{}},
		source:    &leadSourceStub{stored: map[string][]entity.Lead{}},
		enqueuer:  &enqueuerStub{},
	}
	f.svc = NewCampaignService(f.tracker, f.campaigns, f.source, f.enqueuer, config.CampaignsConfig{DefaultBatchSize: 50, DefaultRatePerSecond: 90})
	f.svc.newID = func() string { return "cmp-1" }
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func startInput() StartCampaignInput {
	return StartCampaignInput{
		UserID: "user-1",
		Leads: []entity.Lead{
			{Email: "a@example.com", Nome: "Ana"},
			{Email: "A@example.com"},
			{Email: "broken"},
			{Email: "b@example.com"},
		},
		Config: worker.CampaignConfig{
			Name:            "Black Friday",
			SubjectTemplate: "Oi {{nome}}",
			HTMLTemplate:    "<p>{{oferta}}</p>",
			OfferName:       "Kit",
		},
	}
}

func TestCampaignStartQueuesJob(t *testing.T) {
	f := newCampaignFixture()

	started, err := f.svc.Start(context.Background(), startInput())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.CampaignID != "cmp-1" || started.TotalLeads != 2 || started.TotalBatches != 1 {
		t.Fatalf("unexpected result: %+v", started)
	}
	if started.EstimatedDuration != time.Second {
		t.Fatalf("expected 1s estimate, got %s", started.EstimatedDuration)
	}

	if got := f.source.stored["campaigns/cmp-1/leads.json"]; len(got) != 2 {
		t.Fatalf("expected cleaned leads stored, got %+v", got)
	}
	lc := f.campaigns.items["cmp-1"]
	if lc == nil || lc.BatchSize != 50 || lc.RatePerSecond != 90 || lc.ConfigJSON == "" {
		t.Fatalf("unexpected lead campaign: %+v", lc)
	}
	if len(f.tracker.started) != 1 || f.tracker.started[0].Status != entity.CampaignStatusQueued {
		t.Fatalf("expected queued progress, got %+v", f.tracker.started)
	}
	if len(f.enqueuer.jobs) != 1 || f.enqueuer.jobs[0].queue != queue.MassEmailCampaignQueue {
		t.Fatalf("expected one campaign job, got %+v", f.enqueuer.jobs)
	}
	job := f.enqueuer.jobs[0].payload.(worker.MassEmailCampaignJob)
	if job.BatchSize != 50 || job.RateLimitPerSecond != 90 || job.ResumeFrom != 0 {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestCampaignStartValidation(t *testing.T) {
	f := newCampaignFixture()

	in := startInput()
	in.UserID = ""
	if _, err := f.svc.Start(context.Background(), in); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for user, got %v", err)
	}

	in = startInput()
	in.Leads = []entity.Lead{{Email: "nope"}}
	if _, err := f.svc.Start(context.Background(), in); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for leads, got %v", err)
	}

	in = startInput()
	in.Config.HTMLTemplate = ""
	if _, err := f.svc.Start(context.Background(), in); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for template, got %v", err)
	}
}

func TestCampaignStartMarksFailedWhenEnqueueFails(t *testing.T) {
	f := newCampaignFixture()
	f.enqueuer.enqueueFn = func(string, any) (string, error) { return "", errors.New("redis down") }

	if _, err := f.svc.Start(context.Background(), startInput()); err == nil {
		t.Fatalf("expected enqueue error")
	}
	if snap := f.tracker.snapshots["cmp-1"]; snap.Status != entity.CampaignStatusFailed || snap.ErrorMessage == "" {
		t.Fatalf("expected failed campaign, got %+v", snap)
	}
}

func TestCampaignPauseResumeCancel(t *testing.T) {
	f := newCampaignFixture()
	if _, err := f.svc.Start(context.Background(), startInput()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := f.svc.Resume(context.Background(), "cmp-1"); !errors.Is(err, ErrInvalidCampaignState) {
		t.Fatalf("resume of a queued campaign must fail, got %v", err)
	}

	paused, err := f.svc.Pause(context.Background(), "cmp-1")
	if err != nil || paused.Status != entity.CampaignStatusPaused {
		t.Fatalf("Pause() = %+v, %v", paused, err)
	}
	f.tracker.snapshots["cmp-1"].CurrentBatch = 3

	resumed, err := f.svc.Resume(context.Background(), "cmp-1")
	if err != nil || resumed.Status != entity.CampaignStatusProcessing {
		t.Fatalf("Resume() = %+v, %v", resumed, err)
	}
	if len(f.enqueuer.jobs) != 2 {
		t.Fatalf("expected a resume job, got %d jobs", len(f.enqueuer.jobs))
	}
	job := f.enqueuer.jobs[1].payload.(worker.MassEmailCampaignJob)
	if job.ResumeFrom != 3 || job.CampaignConfig.OfferName != "Kit" || job.BatchSize != 50 {
		t.Fatalf("unexpected resume job: %+v", job)
	}

	if _, err := f.svc.Cancel(context.Background(), "cmp-1"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), "cmp-1"); !errors.Is(err, ErrInvalidCampaignState) {
		t.Fatalf("second cancel must fail, got %v", err)
	}
	if _, err := f.svc.Pause(context.Background(), "cmp-1"); !errors.Is(err, ErrInvalidCampaignState) {
		t.Fatalf("pause after cancel must fail, got %v", err)
	}
}

func TestCampaignResumeUsesStoredConfig(t *testing.T) {
	f := newCampaignFixture()
	cfg, _ := json.Marshal(worker.CampaignConfig{SubjectTemplate: "s", HTMLTemplate: "h", DomainID: "loja.com"})
	f.campaigns.items["cmp-9"] = &entity.LeadCampaign{ID: "cmp-9", UserID: "u", TotalLeads: 10, BatchSize: 5, RatePerSecond: 10, ConfigJSON: string(cfg)}
	f.tracker.snapshots["cmp-9"] = &campaign.Snapshot{CampaignID: "cmp-9", Status: entity.CampaignStatusPaused, CurrentBatch: 1}

	if _, err := f.svc.Resume(context.Background(), "cmp-9"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	job := f.enqueuer.jobs[0].payload.(worker.MassEmailCampaignJob)
	if job.CampaignConfig.DomainID != "loja.com" || job.RateLimitPerSecond != 10 || job.ResumeFrom != 1 {
		t.Fatalf("unexpected resume job: %+v", job)
	}
}

func TestCampaignProgressNotFound(t *testing.T) {
	f := newCampaignFixture()
	if _, err := f.svc.Progress(context.Background(), "missing"); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
	if _, err := f.svc.Pause(context.Background(), "missing"); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestCampaignETA(t *testing.T) {
	f := newCampaignFixture()

	got, err := f.svc.ETA(900, 0, 0)
	if err != nil || got != 10*time.Second {
		t.Fatalf("ETA(900) = %s, %v", got, err)
	}
	if _, err := f.svc.ETA(-1, 0, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
