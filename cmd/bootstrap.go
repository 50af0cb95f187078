package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-logistics/app/campaign"
	"github.com/vibast-solutions/ms-go-logistics/app/factory"
	"github.com/vibast-solutions/ms-go-logistics/app/gateway"
	"github.com/vibast-solutions/ms-go-logistics/app/leads"
	"github.com/vibast-solutions/ms-go-logistics/app/mail"
	"github.com/vibast-solutions/ms-go-logistics/app/queue"
	"github.com/vibast-solutions/ms-go-logistics/app/ratelimit"
	"github.com/vibast-solutions/ms-go-logistics/app/repository"
	"github.com/vibast-solutions/ms-go-logistics/app/service"
	"github.com/vibast-solutions/ms-go-logistics/app/worker"
	"github.com/vibast-solutions/ms-go-logistics/config"
)

const (
	queueDriverRedis  = "redis"
	queueDriverMemory = "memory"
)

// application holds everything the commands share. Fields are built once in
// mustBootstrap and torn down by the returned cleanup func.
type application struct {
	cfg *config.Config
	db  *sql.DB

	redis       redis.UniversalClient
	broker      queue.Broker
	admin       queue.Admin
	deadLetters *repository.DeadLetterRepository

	registry       *gateway.Registry
	gatewayConfigs *repository.GatewayConfigRepository
	orders         *repository.OrderRepository
	orderItems     *repository.OrderItemRepository
	leadCampaigns  *repository.LeadCampaignRepository
	dispatches     *repository.WebhookDispatchRepository
	leadSource     leads.Source

	tracker        *campaign.Tracker
	broadcaster    *campaign.Broadcaster
	redisPublisher *campaign.RedisPublisher
}

func configureLogging(cfg *config.Config) error {
	return factory.ConfigureLogging(cfg.Log.Level, cfg.Log.Format)
}

func mustBootstrap() (*application, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	deadLetters, err := repository.OpenDeadLetterRepository(db)
	if err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to open dead-letter archive")
	}
	if err := deadLetters.Migrate(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to migrate dead-letter archive")
	}

	a := &application{
		cfg:         cfg,
		db:          db,
		deadLetters: deadLetters,
		registry: gateway.NewDefaultRegistry(gateway.NewConfigValidator(), gateway.HTTPOptions{
			Timeout:                  cfg.Gateways.HTTPTimeout,
			StripeSignatureTolerance: cfg.Gateways.StripeSignatureTolerance,
		}),
		gatewayConfigs: repository.NewGatewayConfigRepository(db),
		orders:         repository.NewOrderRepository(db),
		orderItems:     repository.NewOrderItemRepository(db),
		leadCampaigns:  repository.NewLeadCampaignRepository(db),
		dispatches:     repository.NewWebhookDispatchRepository(db),
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Queue.Driver))
	if driver == queueDriverRedis || cfg.Campaigns.DistributedLimiter {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(context.Background()).Err(); err != nil {
			_ = db.Close()
			logrus.WithError(err).Fatal("Failed to ping redis")
		}
	}

	retry := queue.RetryPolicy{BaseDelay: cfg.Queue.BaseBackoff, MaxDelay: cfg.Queue.MaxBackoff}
	switch driver {
	case queueDriverRedis:
		broker := queue.NewRedisBroker(a.redis, queue.RedisBrokerOptions{Retry: retry, JobTTL: cfg.Queue.JobTTL, Sink: deadLetters})
		a.broker, a.admin = broker, broker
	case queueDriverMemory:
		broker := queue.NewMemoryBroker(retry, deadLetters)
		broker.SetCompletedTTL(cfg.Queue.JobTTL)
		a.broker, a.admin = broker, broker
	default:
		_ = db.Close()
		logrus.WithField("driver", cfg.Queue.Driver).Fatal("Unknown queue driver")
	}

	a.leadSource = mustCreateLeadSource(cfg.Leads)

	store := repository.NewCampaignProgressRepository(db)
	// The broadcaster loads initial snapshots through a tracker that does
	// not publish, so publishing never loops back into it.
	a.broadcaster = campaign.NewBroadcaster(campaign.NewTracker(store, nil))
	var publisher campaign.Publisher = a.broadcaster
	if a.redis != nil {
		a.redisPublisher = campaign.NewRedisPublisher(a.redis)
		publisher = a.redisPublisher
	}
	a.tracker = campaign.NewTracker(store, publisher)

	cleanup := func() {
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return a, cleanup
}

func mustCreateLeadSource(cfg config.LeadsConfig) leads.Source {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "local", "file":
		return leads.NewFileSource(cfg.LocalDir)
	default:
		source, err := leads.NewS3Source(context.Background(), leads.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize lead storage")
		}
		return source
	}
}

func mustCreateMailSender(cfg config.MailConfig) mail.Sender {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "smtp":
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	default:
		if strings.TrimSpace(cfg.ResendAPIKey) == "" {
			logrus.Fatal("RESEND_API_KEY is required for the resend mail driver")
		}
		return mail.NewResendSender(cfg.ResendAPIKey)
	}
}

// limiter returns the send limiter shared by every email worker of this
// process; with the distributed limiter all processes share one bucket.
func (a *application) limiter() ratelimit.Limiter {
	rate := a.cfg.Campaigns.DefaultRatePerSecond
	if a.cfg.Campaigns.DistributedLimiter && a.redis != nil {
		return ratelimit.NewRedisTokenBucket(a.redis, "", rate)
	}
	return ratelimit.NewTokenBucket(rate)
}

func (a *application) workers() worker.Set {
	sender := mustCreateMailSender(a.cfg.Mail)
	limiter := a.limiter()
	identity := mail.Identity{
		FromName:  a.cfg.Mail.FromName,
		FromEmail: a.cfg.Mail.FromEmail,
		ReplyTo:   a.cfg.Mail.ReplyTo,
	}
	identities := mail.Identities{Default: identity}
	codes := worker.NewTrackingCodes(a.orders, worker.DefaultCollisionRate)

	return worker.Set{
		PaymentCreation:   worker.NewPaymentCreationWorker(gateway.NewResolver(a.gatewayConfigs, a.registry), a.orders, a.broker),
		Tracking:          worker.NewTrackingWorker(a.orders, codes),
		WebhookEffects:    worker.NewWebhookEffectsWorker(a.orders, a.orderItems, a.broker),
		TrackingEmail:     worker.NewTrackingEmailWorker(a.orders, sender, identity, a.cfg.App.PublicURL),
		LeadProcessing:    worker.NewLeadProcessingWorker(a.broker),
		LeadEmail:         worker.NewLeadEmailWorker(sender, limiter, identities),
		MassEmailCampaign: worker.NewMassEmailCampaignWorker(a.tracker, a.leadCampaigns, a.leadSource, a.broker, a.cfg.Queue.MaxAttempts),
		MassEmailBatch:    worker.NewMassEmailBatchWorker(a.tracker, sender, limiter, identities),
	}
}

// pool registers the selected queues; an empty selection means all of them.
func (a *application) pool(selected []string) (*queue.Pool, error) {
	handlers := a.workers().Handlers()
	names := selected
	if len(names) == 0 {
		names = queue.Queues
	}

	pool := queue.NewPool(a.broker, queue.PoolOptions{
		PollWait:      a.cfg.Queue.PollInterval,
		StuckAfter:    a.cfg.Queue.StuckAfter,
		SweepInterval: a.cfg.Jobs.SweepInterval,
	})
	for _, name := range names {
		name = strings.TrimSpace(name)
		handler, ok := handlers[name]
		if !ok {
			return nil, fmt.Errorf("unknown queue %q", name)
		}
		concurrency := worker.Concurrency[name]
		if concurrency == 0 {
			concurrency = a.cfg.Queue.Concurrency
		}
		if name == queue.MassEmailBatchQueue && a.cfg.Campaigns.BatchConcurrency > 0 {
			concurrency = a.cfg.Campaigns.BatchConcurrency
		}
		pool.Register(name, concurrency, handler)
	}
	return pool, nil
}

func (a *application) queueService() *service.QueueService {
	return service.NewQueueService(a.broker, a.admin, a.deadLetters)
}
