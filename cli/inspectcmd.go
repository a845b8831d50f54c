package cli

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"

	"github.com/coldboot/hibernate/image"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report whether the target area holds a committed image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := LoadConfig(configPath)
		if err != nil {
			return err
		}

		reg, closeAreas, err := config.OpenAreas()
		if err != nil {
			return err
		}
		defer closeAreas()

		record := reg.Find(config.Target)
		info, err := image.Inspect(record.Area)
		if err != nil {
			return err
		}

		w := jwriter.NewWriter()
		obj := w.Object()
		obj.Name("Area").String(record.Name())
		info.PrintJson(obj)
		obj.End()
		if err := w.Error(); err != nil {
			return err
		}
		fmt.Println(string(w.Bytes()))
		return nil
	},
}
