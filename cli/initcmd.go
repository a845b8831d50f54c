package cli

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/coldboot/hibernate/image"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create and format the configured storage areas",
	Long: `init creates the backing store for every configured area and stamps the
plain-storage signature onto its anchor slot. Existing file areas are
truncated; existing sqlite areas keep their contents and are only
re-formatted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := LoadConfig(configPath)
		if err != nil {
			return err
		}

		for _, areaConfig := range config.Areas {
			area, err := CreateArea(areaConfig, config.Machine.PageSize)
			if err != nil {
				return err
			}
			err = image.FormatArea(area)
			closeErr := area.Close()
			if err != nil {
				return cerrors.CombineErrors(err, closeErr)
			}
			if closeErr != nil {
				return closeErr
			}
			fmt.Printf("formatted %s area %q at %s (%d slots of %d bytes)\n",
				areaConfig.Kind, areaConfig.Name, areaConfig.Path,
				areaConfig.Capacity, config.Machine.PageSize)
		}
		return nil
	},
}
