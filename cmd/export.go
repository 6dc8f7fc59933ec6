package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/worklog-cli/internal/export"
	"github.com/sells-group/worklog-cli/internal/store"
)

var (
	exportOut       string
	exportSubmitter string
	exportSince     string
	exportLimit     int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write committed work logs to an XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		filter, err := exportFilter(exportSubmitter, exportSince, exportLimit)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, true)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		logs, err := st.ListWorkLogs(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list work logs")
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrap(err, "create export file")
		}
		if err := export.WriteWorkLogs(f, logs); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "close export file")
		}

		zap.L().Info("work logs exported",
			zap.String("path", exportOut),
			zap.Int("rows", len(logs)),
		)
		return nil
	},
}

// exportFilter builds the list filter from flag values. since is a
// YYYY-MM-DD work date.
func exportFilter(submitter, since string, limit int) (store.WorkLogFilter, error) {
	f := store.WorkLogFilter{SubmitterID: submitter, Limit: limit}
	if since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return f, eris.Wrapf(err, "invalid --since %q, want YYYY-MM-DD", since)
		}
		f.From = t
	}
	return f, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output .xlsx path (required)")
	exportCmd.Flags().StringVar(&exportSubmitter, "submitter", "", "only logs from this submitter")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only logs with a work date on or after YYYY-MM-DD")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum rows (0 for all)")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}
