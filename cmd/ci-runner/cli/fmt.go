package cli

import (
	"fmt"

	"github.com/davarch/ci-runner/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt",
	Short: "Validate pipeline.yaml and rewrite it in canonical form",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		// Save never writes credentials; they only live in the environment.
		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
		fmt.Printf("formatted: %s\n", cfgPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fmtCmd)
}
