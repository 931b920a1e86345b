package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snapvault/vaultkeeper/internal/config"
	"github.com/snapvault/vaultkeeper/internal/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storage engine and its periodic reclamation loop",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	e.RunReclaim()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	return e.Stop()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
