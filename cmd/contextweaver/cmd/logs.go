package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/contextweaver/contextweaver/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		follow     bool
		lines      int
		level      string
		pattern    string
		noColor    bool
		showSource bool
		logFile    string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the debug log",
		Long: `View the ContextWeaver debug log written when the server runs with --debug.

By default this tails the most recent lines from ~/.contextweaver/logs/server.log.
Use --follow to keep watching for new entries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, logsOptions{
				follow:     follow,
				lines:      lines,
				level:      level,
				pattern:    pattern,
				noColor:    noColor,
				showSource: showSource,
				logFile:    logFile,
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep watching the log for new entries")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Filter by minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&pattern, "grep", "", "Filter by regular expression")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&showSource, "show-source", false, "Show the source label for each entry")
	cmd.Flags().StringVar(&logFile, "file", "", "Explicit path to a log file, overrides the default location")

	return cmd
}

type logsOptions struct {
	follow     bool
	lines      int
	level      string
	pattern    string
	noColor    bool
	showSource bool
	logFile    string
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return fmt.Errorf("locate log file: %w", err)
	}

	var pat *regexp.Regexp
	if opts.pattern != "" {
		pat, err = regexp.Compile(opts.pattern)
		if err != nil {
			return fmt.Errorf("invalid --grep pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:      opts.level,
		Pattern:    pat,
		NoColor:    opts.noColor,
		ShowSource: opts.showSource,
	}, cmd.OutOrStdout())

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return fmt.Errorf("tail log file: %w", err)
	}
	viewer.Print(entries)

	if !opts.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return followLogs(ctx, viewer, path)
}

func followLogs(ctx context.Context, viewer *logging.Viewer, path string) error {
	entries := make(chan logging.LogEntry, 16)
	errCh := make(chan error, 1)

	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return <-errCh
			}
			viewer.Print([]logging.LogEntry{entry})
		case <-ctx.Done():
			return nil
		}
	}
}
