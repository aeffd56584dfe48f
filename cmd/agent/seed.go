package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/survival-agent/internal/assoc"
	"github.com/danielpatrickdp/survival-agent/internal/bootstrap"
)

var seedReset bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "bootstrap the engine registry and instinct links",
	RunE:  runSeedCmd,
}

func init() {
	seedCmd.Flags().BoolVar(&seedReset, "reset", false, "wipe graph storage first")
}

func runSeedCmd(cmd *cobra.Command, args []string) error {
	boot := bootstrap.Load(logger)

	if seedReset || bootstrap.ResetRequested() {
		for _, path := range []string{cfg.Storage.GraphDB, cfg.Storage.Snapshot} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("reset storage %s: %w", path, err)
			}
		}
	}

	engCfg := assoc.DefaultConfig()
	engCfg.RegistryVersion = boot.RegistryVersion
	eng := assoc.New(engCfg, rand.New(rand.NewSource(cfg.Seed)), logger)

	store, err := assoc.OpenStore(cfg.Storage.GraphDB)
	if err != nil {
		return err
	}
	if err := eng.AttachStore(store); err != nil {
		store.Close()
		return err
	}
	defer eng.Close()

	report, err := bootstrap.Seed(eng, boot, logger)
	if err != nil {
		return err
	}

	fmt.Printf("registry: %s\n", report.Registry)
	fmt.Printf("seed links: %d of %d written, %d merged into long-term storage\n",
		report.LinksSeeded, report.LinksWanted, report.Merged)
	return nil
}
