package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "courier",
		Short:        "Courier device agent: reports this device's GPS position to the courierloc server",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newIntentCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
