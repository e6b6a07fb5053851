// Package config provides the config parent command and subcommands.
package config

import (
	"github.com/spf13/cobra"

	"github.com/lodestone-kg/lodestone/cmd/config/subcommands"
)

// ConfigCmd is the parent command for all config-related subcommands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage lodestone configuration",
	Long: "Manage lodestone configuration.\n\n" +
		"The config command allows you to view and validate the lodestone " +
		"configuration. Configuration is stored in a YAML file located at " +
		"~/.config/lodestone/config.yaml by default; every key can also be " +
		"set through LODESTONE_* environment variables.",
}

func init() {
	ConfigCmd.AddCommand(subcommands.ShowCmd)
	ConfigCmd.AddCommand(subcommands.ValidateCmd)
}
