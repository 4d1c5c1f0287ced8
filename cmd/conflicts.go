package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/lessonsync/internal/store"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List lessons whose calendar events were changed elsewhere",
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts store.QueryOpts
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		opts.LessonID, _ = cmd.Flags().GetString("lesson")

		s, cfg, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		conflicts, err := s.Conflicts(cfg.Instructor).List(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("query conflicts: %w", err)
		}
		if len(conflicts) == 0 {
			fmt.Println("No conflicts recorded.")
			return nil
		}

		loc := cfg.Location()
		const layout = "Jan 2 15:04"
		fmt.Printf("%-19s  %-36s  %-25s  %-25s  %s\n", "Detected", "Lesson", "Lesson window", "Calendar window", "Resolution")
		fmt.Println(strings.Repeat("\u2500", 130))
		for _, c := range conflicts {
			fmt.Printf("%-19s  %-36s  %-25s  %-25s  %s\n",
				c.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
				c.LessonID,
				c.LocalStart.In(loc).Format(layout)+"-"+c.LocalEnd.In(loc).Format("15:04"),
				c.RemoteStart.In(loc).Format(layout)+"-"+c.RemoteEnd.In(loc).Format("15:04"),
				c.Resolution,
			)
		}
		return nil
	},
}

func init() {
	conflictsCmd.Flags().Int("limit", 20, "Max conflicts to show")
	conflictsCmd.Flags().String("lesson", "", "Filter by lesson ID")
}
