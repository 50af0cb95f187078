package campaign

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/factory"
)

// Publisher delivers progress snapshots to interested parties.
type Publisher interface {
	Publish(ctx context.Context, snapshot Snapshot) error
}

// SnapshotLoader returns the current snapshot of a campaign, or nil when the
// campaign is unknown.
type SnapshotLoader interface {
	Snapshot(ctx context.Context, campaignID string) (*Snapshot, error)
}

const subscriberBuffer = 16

type subscriber struct {
	ch   chan Snapshot
	once sync.Once

	mu      sync.Mutex
	primed  bool
	pending *Snapshot
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// offer sends without blocking and reports whether the update fit.
func (s *subscriber) offer(snapshot Snapshot) bool {
	select {
	case s.ch <- snapshot:
		return true
	default:
		return false
	}
}

// deliver holds back updates until the initial snapshot went out, keeping
// only the newest.
func (s *subscriber) deliver(snapshot Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.primed {
		if s.pending == nil || snapshot.Supersedes(*s.pending) {
			s.pending = &snapshot
		}
		return true
	}
	return s.offer(snapshot)
}

// prime sends the initial snapshot followed by any newer update published
// while it was loading.
func (s *subscriber) prime(initial *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if initial != nil {
		s.offer(*initial)
	}
	if s.pending != nil && (initial == nil || s.pending.Supersedes(*initial)) {
		s.offer(*s.pending)
	}
	s.pending = nil
	s.primed = true
}

// Broadcaster is an in-process topic hub keyed by campaign id. Publish never
// blocks: a subscriber whose buffer is full misses that update.
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	loader SnapshotLoader
	logger logrus.FieldLogger
}

func NewBroadcaster(loader SnapshotLoader) *Broadcaster {
	return &Broadcaster{
		topics: make(map[string]map[*subscriber]struct{}),
		loader: loader,
		logger: factory.NewModuleLogger("campaign-broadcaster"),
	}
}

// Subscribe registers for updates of one campaign. The current snapshot, when
// a loader is configured and the campaign exists, is delivered first; an
// update published while it loads follows only if it supersedes it. The
// channel is closed when ctx ends or the returned cancel func is called.
func (b *Broadcaster) Subscribe(ctx context.Context, campaignID string) (<-chan Snapshot, func()) {
	sub := &subscriber{ch: make(chan Snapshot, subscriberBuffer)}

	b.mu.Lock()
	subs, ok := b.topics[campaignID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.topics[campaignID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.topics[campaignID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.topics, campaignID)
			}
		}
		b.mu.Unlock()
		sub.close()
	}

	var initial *Snapshot
	if b.loader != nil {
		snapshot, err := b.loader.Snapshot(ctx, campaignID)
		if err != nil {
			b.logger.WithError(err).WithField("campaign_id", campaignID).Warn("initial_snapshot_failed")
		}
		initial = snapshot
	}
	sub.prime(initial)

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return sub.ch, cancel
}

func (b *Broadcaster) Publish(_ context.Context, snapshot Snapshot) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[snapshot.CampaignID] {
		if !sub.deliver(snapshot) {
			b.logger.WithField("campaign_id", snapshot.CampaignID).Debug("slow_subscriber_update_dropped")
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for a campaign.
func (b *Broadcaster) Subscribers(campaignID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[campaignID])
}

// MultiPublisher publishes to every wrapped publisher and returns the first
// error after trying all of them.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, snapshot Snapshot) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, snapshot); err != nil && first == nil {
			first = err
		}
	}
	return first
}
