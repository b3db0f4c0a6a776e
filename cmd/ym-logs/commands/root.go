package commands

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/youpoison/YM-Logs-API/internal/config"
	"github.com/youpoison/YM-Logs-API/internal/failure"
	"github.com/youpoison/YM-Logs-API/internal/logging"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "ym-logs",
	Short: "ym-logs exports raw Yandex Metrika data through the Logs API",
	Long: `Creates Logs API requests for a counter, waits for them to be prepared, downloads
every part and loads the result into a warehouse table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(verbose); err != nil {
			return failure.New(failure.Config, "logging", err)
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return failure.New(failure.Config, "config", err)
		}

		log.Debug().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("ym-logs starting")
		return nil
	},
}

// Execute runs the command line. Long flags may be written with a single dash.
func Execute(args []string) error {
	rootCmd.SetArgs(NormalizeArgs(args))
	return rootCmd.Execute()
}

// NormalizeArgs rewrites single-dash long flags (-start_date) to the double-dash form.
// Shorthand flags such as -v are left alone.
func NormalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i, a := range args {
		if a == "--" {
			return append(out, args[i:]...)
		}
		name := strings.TrimPrefix(a, "-")
		if strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") && len(strings.SplitN(name, "=", 2)[0]) > 1 {
			a = "-" + a
		}
		out = append(out, a)
	}
	return out
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return failure.New(failure.Config, "flags", err)
	})
}
