package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "intern",
	Short: "intern answers questions about Jira tickets in Slack threads",
	Long: `intern is a Slack assistant. Mention it in a thread (or send it a direct
message) and it reads the thread, works out which Jira tickets are being asked
about, fetches them and replies in the thread.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the CLI. Without a subcommand it serves.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML, TOML or JSON); environment variables take precedence")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(projectsCmd)
}
