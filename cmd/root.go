package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "logistics",
	Short: "Logistics microservice",
	Long:  "A logistics microservice for payment gateway webhooks, order fulfilment jobs, and email campaigns.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
