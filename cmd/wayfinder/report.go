package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/wayfinder/pkg/client"
	"github.com/rmax-ai/wayfinder/pkg/entity"
)

func (c *cli) reportCmd() *cobra.Command {
	var (
		since  time.Duration
		params client.ReportParams
		uc     string
		output string
	)
	cmd := &cobra.Command{
		Use:       "report [navigation|sessions|events]",
		Short:     "Download a CSV report",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"navigation", "sessions", "events"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if since > 0 {
				params.From = time.Now().Add(-since)
			}
			params.UseCase = entity.UseCase(uc)

			raw, err := c.client().Report(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(raw)
				return err
			}
			if err := os.WriteFile(output, raw, 0o644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", output)
			return nil
		},
	}
	f := cmd.Flags()
	f.DurationVar(&since, "since", 24*time.Hour, "only include activity this recent, 0 for all")
	f.StringVar(&params.SessionID, "session", "", "only include one session")
	f.StringVarP(&uc, "use-case", "u", "", "only include one use case")
	f.IntVarP(&params.Limit, "limit", "n", 0, "maximum number of rows")
	f.StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}
