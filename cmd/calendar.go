package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/lesson"
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Print the merged calendar of lessons and events",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer e.Close(context.Background())

		loc := e.cfg.Location()
		from := calview.WeekStart(time.Now(), loc)
		if s, _ := cmd.Flags().GetString("from"); s != "" {
			t, err := time.ParseInLocation("2006-01-02", s, loc)
			if err != nil {
				return fmt.Errorf("invalid --from %q: %w", s, err)
			}
			from = t
		}
		days, _ := cmd.Flags().GetInt("days")
		if days < 1 {
			return fmt.Errorf("--days must be at least 1")
		}

		tr := calendar.TimeRange{From: from, To: from.AddDate(0, 0, days)}
		v, err := e.surface.View(cmd.Context(), tr)
		if err != nil {
			return fmt.Errorf("load calendar: %w", err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}

		if v.Status != "" {
			fmt.Println(v.Status)
			fmt.Println()
		}
		for _, d := range calview.Days(v.Items, from, days, loc) {
			fmt.Println(d.Date.Format("Monday, Jan 2"))
			fmt.Println(strings.Repeat("\u2500", 72))
			if len(d.Items) == 0 {
				fmt.Println("  (nothing scheduled)")
			}
			for _, it := range d.Items {
				fmt.Printf("  %s-%s  %-32s  %-12s  %s\n",
					it.Start.In(loc).Format("15:04"), it.End.In(loc).Format("15:04"),
					truncate(it.Title, 32), syncLabel(it), it.Key)
			}
			fmt.Println()
		}
		if v.Pending > 0 {
			fmt.Printf("%d lesson(s) waiting to sync.\n", v.Pending)
		}
		return nil
	},
}

func init() {
	calendarCmd.Flags().String("from", "", "First day to show (YYYY-MM-DD, default: this week's Monday)")
	calendarCmd.Flags().Int("days", 7, "Number of days to show")
	calendarCmd.Flags().Bool("json", false, "Print the view as JSON")
}

// syncLabel is the plain-text sync state of an item.
func syncLabel(it calview.Item) string {
	if it.Origin != calview.OriginLocal {
		if !it.Editable {
			return "read-only"
		}
		return "calendar"
	}
	switch {
	case it.Status == lesson.StatusCompleted:
		return "completed"
	case it.Status == lesson.StatusCanceled:
		return "canceled"
	case it.Detached:
		return "removed"
	case it.NeedsSync:
		return "pending"
	case it.RemoteID != "":
		return "synced"
	}
	return "not synced"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
