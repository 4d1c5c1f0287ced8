package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/lesson"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/store"
	"github.com/abhisek/lessonsync/internal/surface"
)

const whenLayout = "2006-01-02 15:04"

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List and manage lessons",
}

var lessonsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lessons",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cfg, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		loc := cfg.Location()
		f := store.LessonFilter{}
		f.Limit, _ = cmd.Flags().GetInt("limit")
		f.NeedsSync, _ = cmd.Flags().GetBool("pending")
		if s, _ := cmd.Flags().GetString("from"); s != "" {
			if f.From, err = time.ParseInLocation("2006-01-02", s, loc); err != nil {
				return fmt.Errorf("invalid --from %q: %w", s, err)
			}
		}
		if s, _ := cmd.Flags().GetString("to"); s != "" {
			if f.To, err = time.ParseInLocation("2006-01-02", s, loc); err != nil {
				return fmt.Errorf("invalid --to %q: %w", s, err)
			}
		}
		statuses, _ := cmd.Flags().GetStringSlice("status")
		for _, s := range statuses {
			status := lesson.Status(s)
			if !status.Valid() {
				return fmt.Errorf("invalid --status %q", s)
			}
			f.Statuses = append(f.Statuses, status)
		}

		ls, err := st.Lessons(cfg.Instructor).List(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("list lessons: %w", err)
		}
		if len(ls) == 0 {
			fmt.Println("No lessons found.")
			return nil
		}

		fmt.Printf("%-36s  %-16s  %4s  %-24s  %-10s  %-9s  %s\n",
			"ID", "Start", "Min", "Student", "Status", "Sync", "Event")
		fmt.Println(strings.Repeat("\u2500", 130))
		for _, l := range ls {
			fmt.Printf("%-36s  %-16s  %4d  %-24s  %-10s  %-9s  %s\n",
				l.ID, l.StartAt.In(loc).Format(whenLayout), l.DurationMin,
				truncate(l.StudentName, 24), l.Status, lessonSync(l), l.RemoteID)
		}
		return nil
	},
}

var lessonsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule a lesson",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, e *env) surface.Result {
			at, err := parseWhen(cmd, "at", e)
			if err != nil {
				return failedResult(err)
			}
			var req surface.CreateRequest
			req.StudentID, _ = cmd.Flags().GetString("student-id")
			req.StudentName, _ = cmd.Flags().GetString("student")
			req.StudentEmail, _ = cmd.Flags().GetString("email")
			req.DurationMin, _ = cmd.Flags().GetInt("duration")
			req.Notes, _ = cmd.Flags().GetString("notes")
			req.Materials, _ = cmd.Flags().GetString("materials")
			return e.surface.CreateAt(ctx, at, req)
		})
	},
}

var lessonsMoveCmd = &cobra.Command{
	Use:   "move <lesson-id>",
	Short: "Move a lesson to a new time, keeping its length",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, e *env) surface.Result {
			it, err := e.surface.Resolve(ctx, calview.LocalKey(args[0]))
			if err != nil {
				return failedResult(err)
			}
			by, _ := cmd.Flags().GetDuration("by")
			to, _ := cmd.Flags().GetString("to")
			switch {
			case by != 0 && to != "":
				return failedResult(&reconcile.ErrInvalidInput{Reason: "use either --to or --by"})
			case by != 0:
				return e.surface.DragTo(ctx, it, it.Start.Add(by))
			case to != "":
				at, err := parseWhen(cmd, "to", e)
				if err != nil {
					return failedResult(err)
				}
				return e.surface.DragTo(ctx, it, at)
			}
			return failedResult(&reconcile.ErrInvalidInput{Reason: "--to or --by is required"})
		})
	},
}

var lessonsCancelCmd = &cobra.Command{
	Use:   "cancel <lesson-id>",
	Short: "Cancel a lesson and remove its calendar event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, e *env) surface.Result {
			it, err := e.surface.Resolve(ctx, calview.LocalKey(args[0]))
			if err != nil {
				return failedResult(err)
			}
			return e.surface.DeleteItem(ctx, it)
		})
	},
}

var lessonsCompleteCmd = &cobra.Command{
	Use:   "complete <lesson-id>",
	Short: "Mark a lesson as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, e *env) surface.Result {
			if _, err := e.rec.CompleteLesson(ctx, args[0]); err != nil {
				return failedResult(err)
			}
			return surface.Result{OK: true, Message: "Lesson marked as completed."}
		})
	},
}

var lessonsRecreateCmd = &cobra.Command{
	Use:   "recreate <lesson-id>",
	Short: "Create a new calendar event for a lesson whose event was removed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, e *env) surface.Result {
			return e.surface.Recreate(ctx, calview.LocalKey(args[0]))
		})
	},
}

var lessonsImportCmd = &cobra.Command{
	Use:   "import <event-id>",
	Short: "Turn a calendar event into a lesson",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, e *env) surface.Result {
			var req reconcile.ImportRequest
			req.StudentID, _ = cmd.Flags().GetString("student-id")
			req.StudentName, _ = cmd.Flags().GetString("student")
			req.StudentEmail, _ = cmd.Flags().GetString("email")
			return e.surface.Import(ctx, calview.RemoteKey(args[0]), req)
		})
	},
}

func init() {
	lessonsListCmd.Flags().String("from", "", "Only lessons starting on or after this day (YYYY-MM-DD)")
	lessonsListCmd.Flags().String("to", "", "Only lessons starting before this day (YYYY-MM-DD)")
	lessonsListCmd.Flags().Bool("pending", false, "Only lessons waiting to sync")
	lessonsListCmd.Flags().StringSlice("status", nil, "Only lessons with these statuses (scheduled, completed, canceled)")
	lessonsListCmd.Flags().Int("limit", 50, "Max lessons to show (0 = all)")

	lessonsAddCmd.Flags().String("at", "", "Start time (YYYY-MM-DD HH:MM)")
	lessonsAddCmd.Flags().String("student-id", "", "Student ID")
	lessonsAddCmd.Flags().String("student", "", "Student name")
	lessonsAddCmd.Flags().String("email", "", "Student email, invited to the event")
	lessonsAddCmd.Flags().Int("duration", surface.DefaultDuration, "Length in minutes")
	lessonsAddCmd.Flags().String("notes", "", "Lesson notes")
	lessonsAddCmd.Flags().String("materials", "", "Materials to bring")
	_ = lessonsAddCmd.MarkFlagRequired("at")
	_ = lessonsAddCmd.MarkFlagRequired("student-id")
	_ = lessonsAddCmd.MarkFlagRequired("student")

	lessonsMoveCmd.Flags().String("to", "", "New start time (YYYY-MM-DD HH:MM)")
	lessonsMoveCmd.Flags().Duration("by", 0, "Shift by a duration, e.g. 30m or -1h")

	lessonsImportCmd.Flags().String("student-id", "", "Student ID")
	lessonsImportCmd.Flags().String("student", "", "Student name")
	lessonsImportCmd.Flags().String("email", "", "Student email")
	_ = lessonsImportCmd.MarkFlagRequired("student-id")
	_ = lessonsImportCmd.MarkFlagRequired("student")

	lessonsCmd.AddCommand(lessonsListCmd)
	lessonsCmd.AddCommand(lessonsAddCmd)
	lessonsCmd.AddCommand(lessonsMoveCmd)
	lessonsCmd.AddCommand(lessonsCancelCmd)
	lessonsCmd.AddCommand(lessonsCompleteCmd)
	lessonsCmd.AddCommand(lessonsRecreateCmd)
	lessonsCmd.AddCommand(lessonsImportCmd)
}

// withEnv runs one gesture against a fully wired engine and prints its
// outcome.
func withEnv(cmd *cobra.Command, fn func(context.Context, *env) surface.Result) error {
	e, err := newEnv(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer e.Close(context.Background())

	res := fn(cmd.Context(), e)
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Println(res.Message)
	if it := res.Item; it != nil {
		loc := e.cfg.Location()
		fmt.Printf("  %s  %s-%s  %s  (%s)\n", it.Key,
			it.Start.In(loc).Format(whenLayout), it.End.In(loc).Format("15:04"), it.Title, syncLabel(*it))
	}
	return nil
}

func parseWhen(cmd *cobra.Command, flag string, e *env) (time.Time, error) {
	s, _ := cmd.Flags().GetString(flag)
	t, err := time.ParseInLocation(whenLayout, s, e.cfg.Location())
	if err != nil {
		return time.Time{}, &reconcile.ErrInvalidInput{Reason: "--" + flag + " must look like " + whenLayout, Err: err}
	}
	return t, nil
}

func failedResult(err error) surface.Result {
	return surface.Result{Message: surface.Describe(err), Err: err}
}

func lessonSync(l *lesson.Lesson) string {
	switch {
	case l.IsDetached():
		return "removed"
	case l.NeedsSync:
		return "pending"
	case l.RemoteID != "":
		return "synced"
	}
	return string(l.SyncState)
}
