package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-logistics/app/service"
	"github.com/vibast-solutions/ms-go-logistics/config"
)

var (
	etaTotalLeads int
	etaRate       int
	etaBatchSize  int
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "Email campaign commands",
}

var campaignsETACmd = &cobra.Command{
	Use:   "eta",
	Short: "Estimate how long a campaign would take to send",
	Run: func(_ *cobra.Command, _ []string) {
		var defaults config.CampaignsConfig
		if cfg, err := config.Load(); err == nil {
			defaults = cfg.Campaigns
		} else {
			logrus.WithError(err).Debug("Using built-in campaign defaults")
		}

		// ETA reads only the defaults.
		campaignService := service.NewCampaignService(nil, nil, nil, nil, defaults)
		eta, err := campaignService.ETA(etaTotalLeads, etaRate, etaBatchSize)
		if err != nil {
			logrus.WithError(err).Fatal("Invalid campaign parameters")
		}
		fmt.Printf("%d leads: %s (%d seconds)\n", etaTotalLeads, eta, int64(eta.Seconds()))
	},
}

func init() {
	rootCmd.AddCommand(campaignsCmd)
	campaignsCmd.AddCommand(campaignsETACmd)

	campaignsETACmd.Flags().IntVar(&etaTotalLeads, "total-leads", 0, "Number of leads in the campaign")
	campaignsETACmd.Flags().IntVar(&etaRate, "rate", 0, "Sends per second (defaults to CAMPAIGN_RATE_LIMIT_PER_SECOND)")
	campaignsETACmd.Flags().IntVar(&etaBatchSize, "batch-size", 0, "Leads per batch (defaults to CAMPAIGN_BATCH_SIZE)")
	_ = campaignsETACmd.MarkFlagRequired("total-leads")
}
