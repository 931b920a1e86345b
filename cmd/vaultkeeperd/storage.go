package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/snapvault/vaultkeeper/internal/store"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect storage rows",
}

var storageLsCmd = &cobra.Command{
	Use:   "ls <root-id>",
	Short: "List non-recycled storages for a root",
	Args:  cobra.ExactArgs(1),
	RunE:  runStorageLs,
}

func init() {
	storageCmd.AddCommand(storageLsCmd)
}

func runStorageLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer s.Close()

	storages, err := s.ListNonRecycledStorages(args[0])
	if err != nil {
		return err
	}
	for _, st := range storages {
		fmt.Printf("%s  kind=%s  status=%s  bytes=%d  path=%s\n", st.Ident, st.Kind, st.Status, st.DiskBytes, st.ImagePath)
	}
	return nil
}
