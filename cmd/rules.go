package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/router"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with routing rules",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <rules-file>",
	Short: "Parse a rules file and print the normalized list",
	Long: `Validate reads a YAML sequence of rule strings, parses each one, and
prints the normalized form. The exit status is non-zero when any rule
fails to parse.

Example file:
  - "17-10.0.0.0/8-2152"
  - "*-192.0.2.0/24-*"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("%w: read rules file: %v", core.ErrIO, err)
		}
		var lines []string
		if err := yaml.Unmarshal(data, &lines); err != nil {
			return fmt.Errorf("%w: parse rules file %s: %v", core.ErrConfigInvalid, args[0], err)
		}

		var failed bool
		for i, line := range lines {
			rule, err := router.ParseRule(line)
			if err != nil {
				failed = true
				fmt.Fprintf(cmd.ErrOrStderr(), "rule %d: %v\n", i, err)
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), rule.String())
		}
		if failed {
			return fmt.Errorf("%w: rules file %s contains invalid rules", core.ErrInvalidRule, args[0])
		}
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}
