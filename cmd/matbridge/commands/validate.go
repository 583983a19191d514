package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matbridge/matbridge/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file",
		Long: `Parse and validate a configuration file without starting anything.

With no argument the file from --config is validated; with neither, the
built-in defaults are checked.`,
		Example: `  # Validate a specific file
  matbridge validate matbridge.yaml

  # Validate the file selected by --config
  matbridge --config /etc/matbridge/config.yaml validate`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}

			if path == "" {
				if err := config.Default().Validate(); err != nil {
					return err
				}
				fmt.Println("Default configuration is valid")
				return nil
			}

			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	}

	return cmd
}
