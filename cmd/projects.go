package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/justmike1/intern/config"
	"github.com/justmike1/intern/jira"
	"github.com/justmike1/intern/logging"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Print the Jira project keys visible to the configured credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.ValidateJira(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

		client, err := newJiraClient(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		registry, err := jira.LoadRegistry(cmd.Context(), client)
		if err != nil {
			return err
		}
		keys, err := registry.ProjectKeys()
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}
