package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
	"github.com/ekaya-inc/ekaya-askdb/pkg/services"
)

func newSchemaCmd() *cobra.Command {
	var question string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the introspected schema, or the tables shortlisted for a question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, err := getOutputFormat(cmd)
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.chat.GetSchema(cmd.Context())
			if err != nil {
				return errors.New(services.PublicMessage(err))
			}

			tables := summary.Tables
			if question != "" {
				tables = services.Shortlist(summary, question, shortlistOptions(cfg.Schema))
			}

			if output == outputJSON {
				return printJSON(cmd.OutOrStdout(), &models.SchemaSummary{Tables: tables})
			}
			printSchema(cmd.OutOrStdout(), tables)
			return nil
		},
	}

	cmd.Flags().StringVarP(&question, "question", "q", "", "Only show tables shortlisted for this question")
	return cmd
}

// printSchema writes one line per table in the same "table(col type, ...)"
// shape the model prompt uses.
func printSchema(w io.Writer, tables []models.Table) {
	for _, table := range tables {
		cols := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			cols[i] = col.Name + " " + col.Type
		}
		_, _ = fmt.Fprintf(w, "%s(%s)\n", table.Name, strings.Join(cols, ", "))
	}
	_, _ = fmt.Fprintf(w, "(%d tables)\n", len(tables))
}
