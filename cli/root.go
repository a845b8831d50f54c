package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var (
	configPath string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "hibernatectl",
		Short: "Suspend, resume and inspect a simulated machine image",
		Long: `hibernatectl drives the hibernation engine against a simulated machine:
it plants a seeded synthetic workload in memory, snapshots every eligible
page into a file- or sqlite-backed storage area, and later rebuilds and
verifies the machine from the committed image.

The machine layout, workload, and storage areas all come from a YAML
configuration file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "hibernate.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(suspendCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(inspectCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
