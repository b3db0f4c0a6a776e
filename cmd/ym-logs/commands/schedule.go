package commands

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/youpoison/YM-Logs-API/internal/failure"
	"github.com/youpoison/YM-Logs-API/internal/pipeline"
)

var scheduleFlags struct {
	spec   string
	mode   string
	source string
}

var scheduleCmd = &cobra.Command{
	Use:     "schedule <project>",
	Short:   "Run a mode-based export on a cron schedule until interrupted",
	Example: `  ym-logs schedule shop --cron "0 6 * * *" --mode regular --source all`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := jobFromFlags("", "", scheduleFlags.mode, scheduleFlags.source)
		if err != nil {
			return err
		}
		p, err := loadProject(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
		_, err = c.AddFunc(scheduleFlags.spec, func() {
			if err := exportOnce(ctx, p, job, 0); err != nil {
				log.Error().Err(err).Int("exit_code", pipeline.ExitCode(err)).Msg("Scheduled export failed")
			}
		})
		if err != nil {
			return failure.New(failure.Config, "cron", err)
		}

		c.Start()
		log.Info().Str("cron", scheduleFlags.spec).Str("mode", scheduleFlags.mode).Msg("Scheduler started")
		<-ctx.Done()

		log.Info().Msg("Stopping scheduler, waiting for the running export")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	f := scheduleCmd.Flags()
	f.StringVar(&scheduleFlags.spec, "cron", "0 6 * * *", "standard 5-field cron expression")
	f.StringVar(&scheduleFlags.mode, "mode", "regular", "history, regular, regular_early or auto")
	f.StringVar(&scheduleFlags.source, "source", "all", "hits, visits or all")
	rootCmd.AddCommand(scheduleCmd)
}
