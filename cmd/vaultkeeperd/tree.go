package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapvault/vaultkeeper/internal/store"
	"github.com/snapvault/vaultkeeper/internal/tree"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Inspect the storage tree",
}

var treeShowCmd = &cobra.Command{
	Use:   "show <root-id>",
	Short: "Print the storage tree for a root in BFS order",
	Args:  cobra.ExactArgs(1),
	RunE:  runTreeShow,
}

func init() {
	treeCmd.AddCommand(treeShowCmd)
}

func runTreeShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer s.Close()

	rootID := args[0]
	storages, err := s.ListNonRecycledStorages(rootID)
	if err != nil {
		return err
	}

	t, err := tree.Build(rootID, storages, nil)
	if err != nil {
		return err
	}

	for _, n := range t.BFS() {
		if n.Virtual() {
			continue
		}
		fmt.Printf("%s  parent=%s  kind=%s  status=%s  path=%s\n",
			n.Ident, n.ParentIdent, n.Storage.Kind, n.Storage.Status, n.Storage.ImagePath)
	}
	return nil
}
