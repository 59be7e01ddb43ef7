package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/yourusername/eventreg-api/internal/service"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export verified participants to CSV or XLSX",
	Long: `Export every verified participant in verification order.

Without --output the file is named participants_YYYY-MM-DD.<format> in the
current directory. Use --output - to write to stdout.

Examples:
  regctl export
  regctl export --format xlsx
  regctl export -f csv -o - > participants.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportFormat != "csv" && exportFormat != "xlsx" {
			return fmt.Errorf("unsupported format %q: use csv or xlsx", exportFormat)
		}

		statsService, closeDB, err := openStats()
		if err != nil {
			return err
		}
		defer closeDB()

		participants, err := statsService.ListParticipants(cmd.Context())
		if err != nil {
			return err
		}

		path := exportOutput
		if path == "" {
			path = service.ExportFilename(time.Now()) + "." + exportFormat
		}

		var out io.Writer = cmd.OutOrStdout()
		if path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			defer f.Close()
			out = f
		}

		if exportFormat == "xlsx" {
			err = service.WriteParticipantsXLSX(out, participants)
		} else {
			err = service.WriteParticipantsCSV(out, participants)
		}
		if err != nil {
			return err
		}

		if path != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d participants to %s\n", len(participants), path)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file, - for stdout")
	rootCmd.AddCommand(exportCmd)
}
