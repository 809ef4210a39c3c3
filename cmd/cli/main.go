package main

import (
	"os"

	"github.com/spf13/cobra"

	"canisdk/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "canisdk"}
	rootCmd.PersistentFlags().String("env", "", "environment overlay to merge on top of the default config")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		env, _ := cmd.Flags().GetString("env")
		_, err := config.Load(env)
		return err
	}

	rootCmd.AddCommand(AllocatorCmd)
	rootCmd.AddCommand(SchedulerCmd)
	rootCmd.AddCommand(PaymentsCmd)
	rootCmd.AddCommand(LoggerCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
