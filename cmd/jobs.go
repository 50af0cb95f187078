package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

var repeatEvery bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&repeatEvery, "worker", false, "Keep running and repeat on the configured interval")
}

// runMaintenance executes task once, or on every interval tick until
// SIGINT/SIGTERM when --worker is set.
func runMaintenance(name string, interval time.Duration, task func(ctx context.Context) error) {
	log := logrus.WithField("job", name)
	if !repeatEvery {
		timeTask(context.Background(), log, task)
		return
	}
	if interval <= 0 {
		log.Fatal("invalid worker interval")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		timeTask(ctx, log, task)
		select {
		case <-ctx.Done():
			log.Info("Worker shutdown requested")
			return
		case <-ticker.C:
		}
	}
}

func timeTask(ctx context.Context, log *logrus.Entry, task func(ctx context.Context) error) {
	start := time.Now()
	err := task(ctx)
	log = log.WithField("latency", time.Since(start).String())
	if err != nil {
		log.WithError(err).Error("job_failed")
		return
	}
	log.Info("job_completed")
}
