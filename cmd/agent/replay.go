package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/survival-agent/internal/replay"
)

var replayFixture string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "replay a fixture episode and diff it against expectations",
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFixture, "fixture", "", "fixture JSON file (required)")
	_ = replayCmd.MarkFlagRequired("fixture")
}

func runReplay(cmd *cobra.Command, args []string) error {
	fixture, err := replay.LoadFixture(replayFixture)
	if err != nil {
		return err
	}

	result, err := replay.Replay(fixture)
	if err != nil {
		return err
	}

	if result.Description != "" {
		fmt.Printf("replay: %s\n", result.Description)
	}
	for _, check := range result.Checks {
		if check.OK {
			fmt.Printf("  OK   %s\n", check.Name)
			continue
		}
		fmt.Printf("  DIFF %s\n", check.Name)
		if check.Diff != "" {
			fmt.Println(indent(check.Diff))
		}
	}

	if !result.Passed {
		return fmt.Errorf("replay of %s did not match expectations", replayFixture)
	}
	fmt.Printf("replay passed: %d steps, died=%t\n", result.Report.Steps, result.Report.Died)
	return nil
}

func indent(s string) string {
	out := "       "
	for _, r := range s {
		out += string(r)
		if r == '\n' {
			out += "       "
		}
	}
	return out
}
