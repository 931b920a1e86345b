package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapvault/vaultkeeper/internal/engine"
)

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Run reclamation commands",
}

var reclaimRunCmd = &cobra.Command{
	Use:   "run <root-id>",
	Short: "Run a single collect pass for one root and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runReclaimRun,
}

func init() {
	reclaimCmd.AddCommand(reclaimRunCmd)
}

func runReclaimRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	e, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer e.Stop()

	didWork, err := e.CollectRoot(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("collect pass for %s: work performed = %v\n", args[0], didWork)
	return nil
}
