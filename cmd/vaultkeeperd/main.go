package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vaultkeeperd",
	Short:   "vaultkeeperd manages disk-snapshot storage chains and reclamation",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("vaultkeeperd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("config", "", "path to the daemon's YAML configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reclaimCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(storageCmd)
}
