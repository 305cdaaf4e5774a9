package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bitwiseai/bitwise/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the default configuration file",
	Long:  `Write a configuration file with defaults, keeping existing values when the file exists.`,
	RunE:  runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println("Configuration written.")
	return nil
}
