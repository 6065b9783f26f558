package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X github.com/ekaya-inc/ekaya-askdb/pkg/cli.version=..."
var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "askdb",
		Short:         "Ask questions about a PostgreSQL database in plain language",
		Long:          "ekaya-askdb turns natural-language questions into guarded, read-only SQL and runs them against PostgreSQL.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				return os.Setenv("ASKDB_CONFIG", configPath)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default config.yaml, or $ASKDB_CONFIG)")
	rootCmd.PersistentFlags().StringP("output", "o", outputText, "Output format (text, json)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newGuardCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
