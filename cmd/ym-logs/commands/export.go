package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var exportFlags struct {
	startDate string
	endDate   string
	mode      string
	source    string
	interval  int
}

var exportCmd = &cobra.Command{
	Use:   "export <project>",
	Short: "Export a date range or a mode's dates into the project's table",
	Example: `  ym-logs export shop -start_date 2023-03-01 -end_date 2023-03-31 -source hits
  ym-logs export shop -mode regular -source all`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := jobFromFlags(exportFlags.startDate, exportFlags.endDate, exportFlags.mode, exportFlags.source)
		if err != nil {
			return err
		}
		p, err := loadProject(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return exportOnce(ctx, p, job, exportFlags.interval)
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.startDate, "start_date", "", "first day to export (YYYY-MM-DD)")
	f.StringVar(&exportFlags.endDate, "end_date", "", "last day to export (YYYY-MM-DD)")
	f.StringVar(&exportFlags.mode, "mode", "", "history, regular, regular_early or auto")
	f.StringVar(&exportFlags.source, "source", "", "hits, visits or all")
	f.IntVar(&exportFlags.interval, "interval", 0, "days per request when the range must be split (default from project, then 15)")
	_ = exportCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(exportCmd)
}
