package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "reportctl",
		Short:        "Operate the medical report pipeline",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(kbCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(listenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
