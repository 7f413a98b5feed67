package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Hibiki/common/version"
	"github.com/bdobrica/Hibiki/internal/hibiki/app"
	"github.com/bdobrica/Hibiki/internal/hibiki/builtin"
	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/lexicon"
	"github.com/bdobrica/Hibiki/internal/hibiki/store"
)

const (
	defaultHistoryLimit = 20
	defaultAuditLimit   = 20
	msgNoHistory        = "No commands recorded yet."
	msgNoAudit          = "No audit entries."
)

// newRootCmd wires the cobra command tree over config.
func newRootCmd(config *app.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "hibiki",
		Short:         "Hibiki - intent parsing and automation agent",
		Long:          "Hibiki turns natural-language commands into checked, dispatched and scheduled actions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCommand(config),
		newParseCommand(config),
		newTasksCommand(config),
		newHistoryCommand(config),
		newAuditCommand(config),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(config *app.Config) *cobra.Command {
	var noStdin bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve commands from stdin and the inbox, and run the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Output = cmd.OutOrStdout()
			hibiki, err := app.New(config)
			if err != nil {
				return fmt.Errorf("failed to initialize Hibiki: %w", err)
			}
			defer hibiki.Stop()

			var in io.Reader = cmd.InOrStdin()
			if noStdin {
				in = nil
			}
			return hibiki.Run(cmd.Context(), in)
		},
	}
	cmd.Flags().BoolVar(&noStdin, "no-stdin", false, "Do not read commands from stdin")
	return cmd
}

func newParseCommand(config *app.Config) *cobra.Command {
	var explain bool
	cmd := &cobra.Command{
		Use:   "parse [text]",
		Short: "Show how a command is classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lx, err := lexicon.LoadOrDefault(config.LexiconPath)
			if err != nil {
				return err
			}
			parser := intent.NewParser(lx)
			text := strings.Join(args, " ")

			out := map[string]any{"command": parser.Parse(text)}
			if explain {
				out["normalized"] = intent.Normalize(text)
				out["matches"] = parser.Explain(text)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "Also list every matching pattern")
	return cmd
}

func newTasksCommand(config *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List persisted scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(config, func(s *store.Store) error {
				recurring, err := s.LoadRecurring(cmd.Context())
				if err != nil {
					return err
				}
				timers, err := s.LoadTimers(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), builtin.FormatSchedule(recurring, timers))
				return nil
			})
		},
	}
}

func newHistoryCommand(config *app.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent commands and the most used apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(config, func(s *store.Store) error {
				commands, err := s.RecentCommands(cmd.Context(), limit)
				if err != nil {
					return err
				}
				apps, err := s.TopApps(cmd.Context(), 5)
				if err != nil {
					return err
				}
				writeHistory(cmd.OutOrStdout(), commands, apps)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "Max commands to show")
	return cmd
}

func newAuditCommand(config *app.Config) *cobra.Command {
	var (
		limit   int
		traceID string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the security and automation audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(config, func(s *store.Store) error {
				var (
					entries []*store.AuditEntry
					err     error
				)
				if traceID != "" {
					entries, err = s.GetAuditByTrace(cmd.Context(), traceID)
				} else {
					entries, err = s.GetAuditLog(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}
				writeAudit(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultAuditLimit, "Max entries to show")
	cmd.Flags().StringVar(&traceID, "trace", "", "Only show entries of this trace ID")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hibiki %s\n", version.Info())
		},
	}
}

// withStore opens the database for a read-only command. A missing database
// is an error rather than an empty one being created.
func withStore(config *app.Config, fn func(*store.Store) error) error {
	if _, err := os.Stat(config.DatabasePath); err != nil {
		return fmt.Errorf("open database %s: %w", config.DatabasePath, err)
	}
	s, err := store.New(config.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func writeHistory(w io.Writer, commands []store.CommandRecord, apps []store.AppUsage) {
	if len(commands) == 0 {
		fmt.Fprintln(w, msgNoHistory)
		return
	}
	for _, c := range commands {
		fmt.Fprintf(w, "%s  %-22s %s\n", c.Timestamp.Local().Format(time.DateTime), c.Action, c.Params)
	}
	if len(apps) == 0 {
		return
	}
	fmt.Fprintln(w, "\nMost used apps:")
	for _, a := range apps {
		fmt.Fprintf(w, "  %-20s %d\n", a.App, a.Count)
	}
}

func writeAudit(w io.Writer, entries []*store.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, msgNoAudit)
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-22s %-16s %-8s actor=%s trace=%s",
			e.Timestamp.Local().Format(time.DateTime), e.Event, e.Action, e.Result, e.Actor, e.TraceID)
		if e.ErrorMessage.Valid {
			line += "  error=" + e.ErrorMessage.String
		}
		fmt.Fprintln(w, line)
	}
}
