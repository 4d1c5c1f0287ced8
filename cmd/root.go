package cmd

import (
	"github.com/spf13/cobra"

	"github.com/abhisek/lessonsync/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "lessonsync",
	Short: "Keep your lessons and your calendar in sync",
	Long: "lessonsync schedules lessons in a local store and mirrors them to your calendar.\n" +
		"Run without arguments to open the weekly agenda.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (overrides LESSONSYNC_CONFIG env var)")
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides LESSONSYNC_DB env var)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(calendarCmd)
	rootCmd.AddCommand(lessonsCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then LESSONSYNC_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}
