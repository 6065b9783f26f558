package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
	"github.com/ekaya-inc/ekaya-askdb/pkg/services"
)

func newAskCmd() *cobra.Command {
	var timeRange string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question against the configured database",
		Example: `  askdb ask "Top reps by revenue"
  askdb ask --time-range this_quarter "Revenue by industry" -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := getOutputFormat(cmd)
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			req := &models.ChatRequest{Message: strings.Join(args, " ")}
			if timeRange != "" {
				req.Resolved = &models.ResolvedFilters{TimeRange: models.TimeRange(timeRange)}
			}

			resp, err := a.chat.Chat(ctx, req)
			if err != nil {
				resp = models.NewErrorResponse(services.PublicMessage(err))
			}
			if output == outputJSON {
				if perr := printJSON(cmd.OutOrStdout(), resp); perr != nil {
					return perr
				}
			} else {
				printChatResponse(cmd.OutOrStdout(), resp)
			}
			if err != nil {
				return fmt.Errorf("question could not be answered")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&timeRange, "time-range", "", "Time window hint (calendar_month, last_30_days, this_quarter, all_time)")
	return cmd
}

// printChatResponse renders a chat response for a terminal.
func printChatResponse(w io.Writer, resp *models.ChatResponse) {
	if !resp.OK {
		_, _ = fmt.Fprintf(w, "Error: %s\n", resp.Error)
		return
	}

	if resp.Type == models.OutputTypeClarify {
		_, _ = fmt.Fprintln(w, resp.ClarifyingQuestion)
		for _, opt := range resp.Options {
			_, _ = fmt.Fprintf(w, "  - %s\n", opt)
		}
		return
	}

	_, _ = fmt.Fprintln(w, resp.Answer)
	_, _ = fmt.Fprintf(w, "\nSQL: %s\n", resp.SQL)

	if resp.Result != nil && len(resp.Result.Fields) > 0 {
		_, _ = fmt.Fprintln(w)
		printTable(w, resp.Result)
	}

	for _, insight := range resp.Insights {
		_, _ = fmt.Fprintf(w, "* %s\n", insight)
	}
	if len(resp.Followups) > 0 {
		_, _ = fmt.Fprintln(w, "\nFollow-ups:")
		for _, f := range resp.Followups {
			_, _ = fmt.Fprintf(w, "  - %s\n", f)
		}
	}
}

func printTable(w io.Writer, result *models.QueryResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(result.Fields, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(result.Fields))
		for i, field := range result.Fields {
			if v := row[field]; v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(result.Rows))
}
