package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/coldboot/hibernate/suspend"
)

var (
	resumeDiscard  bool
	resumeNoVerify bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Rebuild the machine from a committed image and verify it",
	Long: `resume builds a cold machine with the configured layout, loads the
committed image from the target area and copies every preserved page back
to its original address. The restored workload pages are then checked
against the seeded stream that planted them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := LoadConfig(configPath)
		if err != nil {
			return err
		}

		m, err := config.BuildMachine()
		if err != nil {
			return err
		}

		reg, closeAreas, err := config.OpenAreas()
		if err != nil {
			return err
		}
		defer closeAreas()

		mgr, err := suspend.NewManager(suspend.Config{
			Machine:    m,
			Registry:   reg,
			Facts:      config.Facts(m),
			TargetArea: config.Target,
			Logger:     slog.Default(),
		})
		if err != nil {
			return err
		}

		dir, err := mgr.Resume()
		if err != nil {
			return err
		}

		if resumeDiscard {
			err = mgr.Discard(dir)
			if err != nil {
				return err
			}
			fmt.Println("image discarded")
			return nil
		}

		pages := dir.Len()
		err = mgr.Restore(dir)
		if err != nil {
			return err
		}
		fmt.Printf("restored %d pages\n", pages)

		if !resumeNoVerify {
			// The suspend run planted its workload on a machine with
			// this exact layout, so re-planting on a scratch machine
			// recovers the addresses the workload occupied.
			scratch, err := config.BuildMachine()
			if err != nil {
				return err
			}
			addrs, err := plantWorkload(scratch, config.Workload)
			if err != nil {
				return err
			}
			err = verifyWorkload(m, config.Workload, addrs)
			if err != nil {
				return err
			}
			fmt.Printf("verified %d workload pages\n", len(addrs))
		}
		return printStatistics(mgr)
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeDiscard, "discard", false, "drop the image instead of restoring it")
	resumeCmd.Flags().BoolVar(&resumeNoVerify, "no-verify", false, "skip the workload verification pass")
}
