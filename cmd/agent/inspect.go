package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/survival-agent/internal/episode"
	"github.com/danielpatrickdp/survival-agent/internal/nodes"
)

var (
	inspectJSON bool
	inspectRuns int
	inspectNode int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "show engine status, learned links, and run history",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "machine-readable output")
	inspectCmd.Flags().IntVar(&inspectRuns, "runs", 5, "recent runs to list")
	inspectCmd.Flags().IntVar(&inspectNode, "node", 0, "also list this node's outgoing links")
}

type inspection struct {
	Status      string                    `json:"status"`
	Links       []inspectionLink          `json:"links,omitempty"`
	Runs        []episode.RunRecord       `json:"runs,omitempty"`
	BestActions map[string]inspectionBest `json:"best_actions,omitempty"`
}

type inspectionLink struct {
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

type inspectionBest struct {
	Action  string  `json:"action"`
	Score   float64 `json:"score"`
	Samples int     `json:"samples"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	eng, err := openEngine(cfg.Seed, false)
	if err != nil {
		return err
	}
	defer eng.Close()

	out := inspection{Status: eng.Status()}

	if inspectNode != 0 {
		links, err := eng.Connections(inspectNode)
		if err != nil {
			return err
		}
		for _, l := range links {
			out.Links = append(out.Links, inspectionLink{To: nodes.Translate(l.Node), Weight: l.Weight})
		}
	}

	store, err := episode.Open(cfg.Storage.EpisodeDB)
	if err != nil {
		return err
	}
	defer store.Close()

	out.Runs, err = store.RecentRuns(inspectRuns)
	if err != nil {
		return err
	}

	out.BestActions = make(map[string]inspectionBest)
	for _, stimulus := range nodes.Priority {
		best, ok, err := store.BestAction(stimulus)
		if err != nil {
			return err
		}
		if ok {
			out.BestActions[nodes.Translate(stimulus)] = inspectionBest{
				Action:  nodes.Translate(best.Action),
				Score:   best.Score,
				Samples: best.Samples,
			}
		}
	}

	if inspectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Println(out.Status)
	if len(out.Links) > 0 {
		fmt.Printf("links of %s:\n", nodes.Translate(inspectNode))
		for _, l := range out.Links {
			fmt.Printf("  -> %-12s %.3f\n", l.To, l.Weight)
		}
	}
	if len(out.Runs) > 0 {
		fmt.Println("recent runs:")
		for _, r := range out.Runs {
			outcome := "survived"
			if r.Died {
				outcome = "died"
			}
			fmt.Printf("  %s  seed=%-6d steps=%-4d %s health=%.3f\n",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Seed, r.Steps, outcome, r.FinalHealth)
		}
	}
	if len(out.BestActions) > 0 {
		fmt.Println("best actions from history:")
		for _, stimulus := range nodes.Priority {
			if best, ok := out.BestActions[nodes.Translate(stimulus)]; ok {
				fmt.Printf("  %-8s -> %-8s score=%.4f samples=%d\n",
					nodes.Translate(stimulus), best.Action, best.Score, best.Samples)
			}
		}
	}
	return nil
}
