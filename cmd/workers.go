package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerQueues []string

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Consume job queues",
	Long:  "Run queue workers for the selected queues, or for every queue when none is given.",
	Run:   runWorkers,
}

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.Flags().StringSliceVar(&workerQueues, "queues", nil, "Comma separated queue names to consume")
}

func runWorkers(_ *cobra.Command, _ []string) {
	app, cleanup := mustBootstrap()
	defer cleanup()

	if strings.EqualFold(app.cfg.Queue.Driver, queueDriverMemory) {
		logrus.Fatal("The memory queue driver only works inside serve; use QUEUE_DRIVER=redis for standalone workers")
	}

	pool, err := app.pool(workerQueues)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build worker pool")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		logrus.WithField("queues", workerQueues).Info("Starting workers")
		done <- pool.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logrus.Info("Worker shutdown requested")
	case err := <-done:
		if err != nil {
			logrus.WithError(err).Error("Worker pool stopped")
		}
		return
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("Worker pool stopped")
		}
	case <-time.After(30 * time.Second):
		logrus.Warn("Workers did not stop before the shutdown timeout")
	}
	logrus.Info("Workers stopped")
}
