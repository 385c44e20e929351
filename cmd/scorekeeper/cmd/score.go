package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/types"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a problem and explain the result",
	Long: `Score builds a network over a stored or generated problem and prints the
score. With match policy score_only or full it breaks the score down per
constraint; with full it also lists the most indicted objects.`,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().String("problem", "", "stored problem id (generated from config when empty)")
	scoreCmd.Flags().String("match-policy", "", "match policy (disabled, score_only, full)")
	scoreCmd.Flags().Int("top", 10, "number of indicted objects to list")
	scoreCmd.Flags().Bool("save", false, "store a score snapshot (stored problems only)")
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd, map[string]string{"network.match_policy": "match-policy"})
	if err != nil {
		return err
	}
	problemID, _ := cmd.Flags().GetString("problem")
	top, _ := cmd.Flags().GetInt("top")
	save, _ := cmd.Flags().GetBool("save")

	src, err := loadProblem(cmd.Context(), cfg, problemID, log)
	if err != nil {
		return err
	}
	defer src.close()

	session, err := cloudbalance.NewSession(src.problem, cloudbalance.Constraints{}, cfg.NetworkOptions())
	if err != nil {
		return err
	}
	n := session.Network()
	stats := n.Stats()
	log.Debug("network built", "network_id", n.ID(), "nodes", stats.Nodes, "shared_streams", stats.SharedStreams, "constraints", stats.Constraints)

	out := cmd.OutOrStdout()
	sc, err := n.Score()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "score: %s (feasible: %t)\n", sc, sc.IsFeasible())

	if n.Policy() >= network.MatchScoreOnly {
		analysis, err := n.Analyze()
		if err != nil {
			return err
		}
		if err := printAnalysis(out, analysis); err != nil {
			return err
		}
	}
	if n.Policy() == network.MatchFull {
		indictments, err := n.Indictments()
		if err != nil {
			return err
		}
		if err := printIndictments(out, indictments, top); err != nil {
			return err
		}
	}

	if save {
		if src.store == nil {
			return fmt.Errorf("--save requires --problem")
		}
		snap, err := db.NewSnapshot(types.NewRunID(), src.id, 0, n)
		if err != nil {
			return err
		}
		if err := src.store.SaveSnapshot(cmd.Context(), snap); err != nil {
			return err
		}
		log.Info("snapshot stored", "run_id", snap.RunID, "snapshot_id", snap.ID)
	}
	return nil
}

func printAnalysis(out io.Writer, a network.Analysis) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nCONSTRAINT\tTYPE\tWEIGHT\tSCORE\tMATCHES")
	for _, ct := range a.Constraints {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", ct.Constraint, ct.ImpactType, ct.Weight, ct.Score, ct.Count)
	}
	return w.Flush()
}

func printIndictments(out io.Writer, indictments []network.Indictment, top int) error {
	sorted := append([]network.Indictment(nil), indictments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score.Compare(sorted[j].Score) < 0
	})
	if top >= 0 && len(sorted) > top {
		sorted = sorted[:top]
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nOBJECT\tSCORE\tMATCHES")
	for _, ind := range sorted {
		fmt.Fprintf(w, "%v\t%s\t%d\n", ind.Object, ind.Score, ind.Count)
	}
	return w.Flush()
}
