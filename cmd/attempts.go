package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/lessonsync/internal/store"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Inspect calendar provider calls",
}

var attemptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent provider calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts store.QueryOpts
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		opts.Op, _ = cmd.Flags().GetString("op")
		opts.LessonID, _ = cmd.Flags().GetString("lesson")
		opts.FailedOnly, _ = cmd.Flags().GetBool("failed")

		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		attempts, err := s.Attempts().Query(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("query attempts: %w", err)
		}

		if len(attempts) == 0 {
			fmt.Println("No provider calls found.")
			return nil
		}

		fmt.Printf("%-36s  %-19s  %-8s  %-7s  %-36s  %-7s  %s\n",
			"ID", "Timestamp", "Provider", "Op", "Lesson", "Ms", "OK")
		fmt.Println(strings.Repeat("\u2500", 130))

		for _, a := range attempts {
			ok := "✓"
			if !a.Success {
				ok = "✗ " + a.ErrorKind
			}
			fmt.Printf("%-36s  %-19s  %-8s  %-7s  %-36s  %-7d  %s\n",
				a.ID,
				a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				a.Provider,
				a.Op,
				a.LessonID,
				a.LatencyMs,
				ok,
			)
		}
		return nil
	},
}

var attemptsViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "View one provider call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		a, err := s.Attempts().Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get attempt %s: %w", args[0], err)
		}

		fmt.Printf("ID:        %s\n", a.ID)
		fmt.Printf("Time:      %s\n", a.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Provider:  %s\n", a.Provider)
		fmt.Printf("Op:        %s\n", a.Op)
		if a.LessonID != "" {
			fmt.Printf("Lesson:    %s\n", a.LessonID)
		}
		if a.RemoteID != "" {
			fmt.Printf("Event:     %s\n", a.RemoteID)
		}
		fmt.Printf("Latency:   %dms\n", a.LatencyMs)
		fmt.Printf("Success:   %v\n", a.Success)
		if !a.Success {
			fmt.Printf("Kind:      %s\n", a.ErrorKind)
			fmt.Printf("Error:     %s\n", a.ErrorMessage)
		}
		return nil
	},
}

var attemptsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show provider call counts per operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.Attempts().Summary(cmd.Context())
		if err != nil {
			return fmt.Errorf("query summary: %w", err)
		}
		if len(stats) == 0 {
			fmt.Println("No provider calls recorded yet.")
			return nil
		}

		fmt.Printf("%-10s  %9s  %7s  %7s\n", "Op", "Succeeded", "Failed", "Rate")
		fmt.Println(strings.Repeat("\u2500", 40))

		var ok, failed int
		for _, st := range stats {
			fmt.Printf("%-10s  %9d  %7d  %6.1f%%\n", st.Op, st.Succeeded, st.Failed, rate(st.Succeeded, st.Failed))
			ok += st.Succeeded
			failed += st.Failed
		}

		fmt.Println(strings.Repeat("\u2500", 40))
		fmt.Printf("%-10s  %9d  %7d  %6.1f%%\n", "TOTAL", ok, failed, rate(ok, failed))
		return nil
	},
}

func init() {
	attemptsListCmd.Flags().Int("limit", 20, "Max calls to show")
	attemptsListCmd.Flags().String("op", "", "Filter by operation (create, get, update, delete, list)")
	attemptsListCmd.Flags().String("lesson", "", "Filter by lesson ID")
	attemptsListCmd.Flags().Bool("failed", false, "Only failed calls")

	attemptsCmd.AddCommand(attemptsListCmd)
	attemptsCmd.AddCommand(attemptsViewCmd)
	attemptsCmd.AddCommand(attemptsStatsCmd)
}

func rate(ok, failed int) float64 {
	if ok+failed == 0 {
		return 0
	}
	return 100 * float64(ok) / float64(ok+failed)
}
