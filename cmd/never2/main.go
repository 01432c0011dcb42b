package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:          "never2",
		Short:        "Editing service for sequential neural networks and their properties",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/never2.yaml", "path to the YAML config (empty for defaults)")
	rootCmd.AddCommand(serveCmd, inspectCmd, blocksCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
