package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/lessonsync/internal/calendar"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile lessons with the calendar and retry pending changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer e.Close(context.Background())

		tr := e.rec.DefaultRange()
		if days, _ := cmd.Flags().GetInt("days"); days > 0 {
			now := time.Now()
			tr = calendar.TimeRange{From: now.Add(-e.cfg.Sync.Lookback), To: now.AddDate(0, 0, days)}
		}

		sum := e.surface.Sync(cmd.Context(), tr)
		fmt.Println(sum.Message)
		if !sum.OK {
			return sum.Err
		}

		if rep := sum.Report; rep != nil {
			fmt.Println()
			fmt.Printf("Range:      %s to %s\n", rep.Range.From.Local().Format("2006-01-02 15:04"), rep.Range.To.Local().Format("2006-01-02 15:04"))
			fmt.Printf("Checked:    %d\n", rep.Checked)
			fmt.Printf("Confirmed:  %d\n", rep.Confirmed)
			fmt.Printf("Pushed:     %d\n", rep.Pushed)
			fmt.Printf("Adopted:    %d\n", rep.Adopted)
			fmt.Printf("Deleted:    %d\n", rep.Deleted)
			fmt.Printf("Failed:     %d\n", rep.Failed)
			for _, id := range rep.Stale {
				fmt.Printf("  event removed for lesson %s\n", id)
			}
			for _, id := range rep.Suspect {
				fmt.Printf("  could not confirm event for lesson %s\n", id)
			}
			for _, ev := range rep.RemoteOnly {
				fmt.Printf("  calendar-only event %s  %s  %s\n", ev.ID, ev.Start.Local().Format("Mon Jan 2 15:04"), ev.Title)
			}
		}
		if r := sum.Retry; r != nil && r.Attempted > 0 {
			fmt.Printf("Retried:    %d (synced %d, pending %d, detached %d, rejected %d)\n",
				r.Attempted, r.Synced, r.Pending, r.Detached, r.Rejected)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Int("days", 0, "Reconcile this many days ahead instead of the configured horizon")
}
