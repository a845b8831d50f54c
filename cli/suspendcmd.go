package cli

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/coldboot/hibernate/suspend"
)

var suspendCmd = &cobra.Command{
	Use:   "suspend",
	Short: "Snapshot the simulated machine and commit it to the target area",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := LoadConfig(configPath)
		if err != nil {
			return err
		}

		m, err := config.BuildMachine()
		if err != nil {
			return err
		}
		addrs, err := plantWorkload(m, config.Workload)
		if err != nil {
			return err
		}
		slog.Debug("planted workload",
			slog.Int("pages", len(addrs)),
			slog.Int64("seed", config.Workload.Seed))

		reg, closeAreas, err := config.OpenAreas()
		if err != nil {
			return err
		}
		defer closeAreas()

		mgr, err := suspend.NewManager(suspend.Config{
			Machine:      m,
			Registry:     reg,
			Facts:        config.Facts(m),
			TargetArea:   config.Target,
			ReservePages: config.ReservePages,
			Logger:       slog.Default(),
		})
		if err != nil {
			return err
		}

		err = mgr.Suspend()
		if err != nil {
			return err
		}
		return printStatistics(mgr)
	},
}

func printStatistics(mgr *suspend.Manager) error {
	w := jwriter.NewWriter()
	obj := w.Object()
	stats := mgr.Statistics()
	stats.PrintJson(obj)
	obj.End()
	if err := w.Error(); err != nil {
		return err
	}
	fmt.Println(string(w.Bytes()))
	return nil
}
