package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/davarch/ci-runner/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var (
	stagesOnlyGated   bool
	stagesOnlyUngated bool
	stagesJSON        bool
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List configured stages from pipeline.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		items := make([]config.StageConfig, 0, len(cfg.Stages))
		for _, s := range cfg.Stages {
			gated := s.When.Branch != "" || s.When.Tag != ""
			if stagesOnlyGated && !gated {
				continue
			}
			if stagesOnlyUngated && gated {
				continue
			}
			items = append(items, s)
		}

		if stagesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tCOMMANDS\tGATE\tPOLICY\tALWAYS")
		for _, s := range items {
			gate := "-"
			switch {
			case s.When.Branch != "" && s.When.Tag != "":
				gate = fmt.Sprintf("branch=%s|tag=%s", s.When.Branch, s.When.Tag)
			case s.When.Branch != "":
				gate = "branch=" + s.When.Branch
			case s.When.Tag != "":
				gate = "tag=" + s.When.Tag
			}
			policy := string(s.Tolerate)
			if policy == "" {
				policy = "fail"
			}
			always := "false"
			if s.Always {
				always = "true"
			}
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", s.Name, len(s.Run), gate, policy, always)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	stagesCmd.Flags().BoolVar(&stagesOnlyGated, "gated", false, "show only gated stages")
	stagesCmd.Flags().BoolVar(&stagesOnlyUngated, "ungated", false, "show only ungated stages")
	stagesCmd.Flags().BoolVar(&stagesJSON, "json", false, "print JSON")

	stagesCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if stagesOnlyGated && stagesOnlyUngated {
			return fmt.Errorf("flags --gated and --ungated are mutually exclusive")
		}
		return nil
	}

	stagesCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		out := make([]string, 0, len(cfg.Stages))
		for _, s := range cfg.Stages {
			if toComplete == "" || strings.HasPrefix(s.Name, toComplete) {
				out = append(out, s.Name)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}

	rootCmd.AddCommand(stagesCmd)
}
