package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/yourusername/eventreg-api/internal/service"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print registration statistics",
	Long: `Print verified, pending and remaining seat counts, the ten most recent
verified participants, verifications per day for the last week and the
latest entries of the attempt log.

Examples:
  regctl stats
  regctl stats --json | jq .remaining`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statsService, closeDB, err := openStats()
		if err != nil {
			return err
		}
		defer closeDB()

		stats, err := statsService.GetStats(cmd.Context())
		if err != nil {
			return err
		}

		if statsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		return printStats(cmd.OutOrStdout(), stats)
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(statsCmd)
}

func printStats(out io.Writer, stats *service.Stats) error {
	fmt.Fprintln(out, "=== Registration statistics ===")
	fmt.Fprintf(out, "Verified:  %d / %d\n", stats.TotalVerified, stats.MaxParticipants)
	fmt.Fprintf(out, "Pending:   %d\n", stats.Pending)
	fmt.Fprintf(out, "Remaining: %d\n", stats.Remaining)
	fmt.Fprintf(out, "Total:     %d\n\n", stats.TotalVerified+stats.Pending)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Recent registrations:")
	if len(stats.Recent) == 0 {
		fmt.Fprintln(tw, "  (none)")
	}
	for _, reg := range stats.Recent {
		verifiedAt := ""
		if reg.VerifiedAt != nil {
			verifiedAt = reg.VerifiedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", reg.FullName(), reg.Email, verifiedAt)
	}

	fmt.Fprintln(tw, "\nBy day (last 7 days):")
	if len(stats.Daily) == 0 {
		fmt.Fprintln(tw, "  (none)")
	}
	for _, day := range stats.Daily {
		fmt.Fprintf(tw, "  %s\t%d\n", day.Day, day.Count)
	}

	fmt.Fprintln(tw, "\nRecent attempts:")
	if len(stats.RecentAttempts) == 0 {
		fmt.Fprintln(tw, "  (none)")
	}
	for _, a := range stats.RecentAttempts {
		outcome := "ok"
		if !a.Success {
			outcome = "failed"
			if a.FailureReason != nil {
				outcome = "failed: " + *a.FailureReason
			}
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			a.AttemptedAt.Local().Format(time.DateTime), a.Action, a.Email, a.IPAddress, outcome)
	}
	return tw.Flush()
}
