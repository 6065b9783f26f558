package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
	sqlguard "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

// guardResult is the JSON shape printed by `askdb guard -o json`.
type guardResult struct {
	OK     bool   `json:"ok"`
	SQL    string `json:"sql,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newGuardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guard <sql>",
		Short: "Check a statement with the SQL guard without running it",
		Long: "Runs the same checks applied to model-generated SQL and prints the statement " +
			"that would be executed, including the enforced LIMIT. No database connection is made.",
		Example: `  askdb guard "SELECT id, name FROM reps"
  askdb guard "DELETE FROM reps" -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := getOutputFormat(cmd)
			if err != nil {
				return err
			}

			cfg, err := config.Load(version)
			if err != nil {
				return err
			}

			res := checkSQL(sqlguard.NewGuard(guardOptions(cfg.Guard)), strings.Join(args, " "))
			if output == outputJSON {
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printGuardResult(cmd.OutOrStdout(), res)
			}
			if !res.OK {
				return errors.New("statement rejected")
			}
			return nil
		},
	}
}

func checkSQL(guard *sqlguard.Guard, statement string) guardResult {
	validated, err := guard.Check(statement)
	if err != nil {
		res := guardResult{OK: false, Error: err.Error()}
		if reason, ok := sqlguard.ReasonOf(err); ok {
			res.Reason = string(reason)
		}
		return res
	}
	return guardResult{OK: true, SQL: validated.String()}
}

func printGuardResult(w io.Writer, res guardResult) {
	if res.OK {
		_, _ = fmt.Fprintln(w, res.SQL)
		return
	}
	_, _ = fmt.Fprintf(w, "%s (%s)\n", res.Error, res.Reason)
}
