package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/youpoison/YM-Logs-API/internal/lifecycle"
	"github.com/youpoison/YM-Logs-API/internal/retry"
)

var cleanupConcurrency int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <project>",
	Short: "Remove every log request the project's counter still holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(args[0])
		if err != nil {
			return err
		}
		client, err := newClient(p)
		if err != nil {
			return err
		}

		removed, err := lifecycle.Purge(cmd.Context(), client, cleanupConcurrency, retry.Unbounded())
		if err != nil {
			return err
		}
		log.Info().Str("counter", p.Counter).Int("removed", removed).Msg("Completed successfully!")
		return nil
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupConcurrency, "concurrency", 3, "log requests removed in parallel")
	rootCmd.AddCommand(cleanupCmd)
}
