/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/storefront/apiserver/config"
	"github.com/storefront/apiserver/internal/storage"
)

// archiveCmd groups access to archived order snapshots.
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Read archived snapshots of deleted orders",
}

var archiveGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print an archived order, e.g. orders/deleted/12-20260504T103000Z.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		objects, err := storage.Open(cmd.Context(), cfg.Storage)
		if err != nil {
			return err
		}
		if objects == nil {
			return errors.New("STORAGE_BACKEND is not configured")
		}

		order, err := storage.NewOrderArchive(objects).Fetch(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return fmt.Errorf("no archived order at %s", args[0])
			}
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(order)
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveGetCmd)
}
