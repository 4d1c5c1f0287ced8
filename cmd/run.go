package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/lessonsync/internal/app"
)

// runApp wires the engine and launches the agenda. The terminal belongs to
// the UI, so logs go to a file.
func runApp(cmd *cobra.Command) error {
	logFile, err := tuiLogFile()
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	e, err := newEnv(cmd, logFile)
	if err != nil {
		return err
	}
	defer e.Close(context.Background())

	return app.Run(e.surface, e.cfg.Location())
}
