package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/davarch/ci-runner/internal/domain"
	"github.com/davarch/ci-runner/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	planBranch string
	planTag    string
	planJSON   bool
)

type planEntry struct {
	Stage  string `json:"stage"`
	Run    bool   `json:"run"`
	Reason string `json:"reason"`
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which stages would run for a given branch/tag, without executing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		stages, err := cfg.DomainStages()
		if err != nil {
			return err
		}

		rc := domain.RunContext{Branch: planBranch, Tag: planTag}
		entries := make([]planEntry, 0, len(stages))
		for _, s := range stages {
			ok, reason := s.When.Allows(rc)
			entries = append(entries, planEntry{Stage: s.Name, Run: ok, Reason: reason})
		}

		if planJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "STAGE\tRUN\tREASON")
		for _, e := range entries {
			run := "no"
			if e.Run {
				run = "yes"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Stage, run, e.Reason)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planBranch, "branch", "", "branch to evaluate gates against")
	planCmd.Flags().StringVar(&planTag, "tag", "", "tag to evaluate gates against")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print JSON")

	rootCmd.AddCommand(planCmd)
}
