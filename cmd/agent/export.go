package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/survival-agent/internal/assoc"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "write a compressed snapshot of the current graph",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "snapshot path (default: config storage.snapshot)")
}

func runExport(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cfg.Seed, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	path := exportOut
	if path == "" {
		path = cfg.Storage.Snapshot
	}
	if err := eng.WriteSnapshot(path); err != nil {
		return err
	}

	header, err := assoc.InspectSnapshot(path)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot written to %s: %d nodes, %d links, registry v%d\n",
		path, header.Nodes, header.Links, header.RegistryVersion)
	return nil
}
