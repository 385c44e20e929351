package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
)

var problemCmd = &cobra.Command{
	Use:   "problem",
	Short: "Manage stored cloud balance problems",
}

var problemGenerateCmd = &cobra.Command{
	Use:   "generate NAME",
	Short: "Generate a random problem and store it",
	Args:  cobra.ExactArgs(1),
	RunE:  runProblemGenerate,
}

var problemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored problems",
	RunE:  runProblemList,
}

func init() {
	rootCmd.AddCommand(problemCmd)
	problemCmd.AddCommand(problemGenerateCmd, problemListCmd)

	problemGenerateCmd.Flags().Int("computers", 0, "number of computers")
	problemGenerateCmd.Flags().Int("processes", 0, "number of processes")
	problemGenerateCmd.Flags().Int("services", 0, "number of distinct services")
	problemGenerateCmd.Flags().Float64("assigned", 0, "fraction of processes initially assigned")
	problemGenerateCmd.Flags().Int64("seed", 0, "generator seed")
}

func runProblemGenerate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd, map[string]string{
		"problem.computers": "computers",
		"problem.processes": "processes",
		"problem.services":  "services",
		"problem.assigned":  "assigned",
		"runner.seed":       "seed",
	})
	if err != nil {
		return err
	}

	store, closeDB, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	p := cloudbalance.Generate(cloudbalance.GeneratorConfig{
		Computers: cfg.Problem.Computers,
		Processes: cfg.Problem.Processes,
		Services:  cfg.Problem.Services,
		Assigned:  cfg.Problem.Assigned,
	}, cfg.Runner.Seed)

	id, err := store.SaveProblem(cmd.Context(), args[0], p)
	if err != nil {
		return err
	}
	log.Info("problem stored", "problem_id", id, "computers", len(p.Computers), "processes", len(p.Processes))
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runProblemList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	store, closeDB, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	infos, err := store.ListProblems(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.ID, info.Name, info.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
