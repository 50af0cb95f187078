package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-logistics/app/service"
)

var (
	deadLimit    int
	deadArchived bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain job queues",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats [queue...]",
	Short: "Print queue counters",
	Run: func(_ *cobra.Command, args []string) {
		withQueueService(func(s *service.QueueService) {
			stats, err := s.Stats(context.Background(), args...)
			if err != nil {
				logrus.WithError(err).Fatal("Failed to read queue stats")
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tWAITING\tACTIVE\tDELAYED\tDEAD\tCOMPLETED\tFAILED\tRETRIED")
			for _, st := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
					st.Queue, st.Waiting, st.Active, st.Delayed, st.Dead, st.Completed, st.Failed, st.Retried)
			}
			_ = w.Flush()
		})
	},
}

var queueDeadCmd = &cobra.Command{
	Use:   "dead <queue>",
	Short: "List dead-lettered jobs",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		withQueueService(func(s *service.QueueService) {
			ctx := context.Background()
			var (
				out any
				err error
			)
			if deadArchived {
				out, err = s.Archived(ctx, args[0], deadLimit)
			} else {
				out, err = s.Dead(ctx, args[0], deadLimit)
			}
			if err != nil {
				logrus.WithError(err).Fatal("Failed to list dead jobs")
			}
			printJSON(out)
		})
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue <queue> <job-id>",
	Short: "Move a dead job back to waiting",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		withQueueService(func(s *service.QueueService) {
			if err := s.Requeue(context.Background(), args[0], args[1]); err != nil {
				logrus.WithError(err).WithField("job_id", args[1]).Fatal("Failed to requeue job")
			}
			logrus.WithField("queue", args[0]).WithField("job_id", args[1]).Info("Job requeued")
		})
	},
}

var queueSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Return jobs stuck in active back to waiting",
	Run: func(_ *cobra.Command, _ []string) {
		app, cleanup := mustBootstrap()
		defer cleanup()

		queueService := app.queueService()
		runMaintenance("queue_sweep", app.cfg.Jobs.SweepInterval, func(ctx context.Context) error {
			recovered, err := queueService.Sweep(ctx, app.cfg.Queue.StuckAfter)
			for name, n := range recovered {
				if n > 0 {
					logrus.WithField("queue", name).WithField("recovered", n).Info("Recovered stuck jobs")
				}
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueDeadCmd)
	queueCmd.AddCommand(queueRequeueCmd)
	queueCmd.AddCommand(queueSweepCmd)

	queueDeadCmd.Flags().IntVar(&deadLimit, "limit", 50, "Maximum number of jobs to list")
	queueDeadCmd.Flags().BoolVar(&deadArchived, "archived", false, "List rows from the durable dead-letter archive")
}

func withQueueService(fn func(s *service.QueueService)) {
	app, cleanup := mustBootstrap()
	defer cleanup()
	fn(app.queueService())
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logrus.WithError(err).Fatal("Failed to write output")
	}
}
