package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tasktimer/internal/app"
	"tasktimer/internal/config"
	"tasktimer/internal/db"
	"tasktimer/internal/domain"
	"tasktimer/internal/engine"
	"tasktimer/internal/logging"
	"tasktimer/internal/notify"
)

var closeLog = func() {}

var rootCmd = &cobra.Command{
	Use:   "tt",
	Short: "Tasktimer CLI",
	Long: `Tasktimer tracks time per task with at most one timer running.
- Tasks carry a status, a category, tags and an optional time limit.
- Starting a task stops whichever task was running; stopping folds the
  session into the task total.
- Time can be added after the fact or the total overwritten.
- serve exposes the HTTP API; float shows a small terminal timer.
- Event log: every change is recorded, view it with 'tt log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		cfg, err := app.ResolveConfig(workspace, viper.GetViper())
		if err != nil {
			return err
		}
		closeLog, err = logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Pretty: true})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKTIMER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	for _, key := range config.Keys() {
		_ = viper.BindEnv(key)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(addTimeCmd())
	rootCmd.AddCommand(setTotalCmd())
	rootCmd.AddCommand(entriesCmd())
	rootCmd.AddCommand(activeCmd())
	rootCmd.AddCommand(tagCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(floatCmd())
	rootCmd.AddCommand(tokenCmd())
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskArchiveCmd(true))
	task.AddCommand(taskArchiveCmd(false))
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskCategoryCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var (
		opts     engine.TaskCreateOptions
		category string
		limit    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			opts.Category = domain.Category(category)
			if cmd.Flags().Changed("limit") {
				secs := int64(limit / time.Second)
				opts.TimeLimitSeconds = &secs
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "normal", "category (urgent, priority, normal, time_leak)")
	cmd.Flags().DurationVar(&limit, "limit", 0, "time limit, e.g. 25m")
	cmd.Flags().StringArrayVar(&opts.TagNames, "tag", []string{}, "tag name (repeatable, created if missing)")
	return cmd
}

func taskListCmd() *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, archived)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "list archived tasks")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var (
		name, description string
		limit             time.Duration
		clearLimit        bool
		tags              []string
		clearTags         bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			opts := engine.TaskUpdateOptions{ID: id}
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			switch {
			case clearLimit:
				var zero int64
				opts.TimeLimitSeconds = &zero
			case cmd.Flags().Changed("limit"):
				secs := int64(limit / time.Second)
				opts.TimeLimitSeconds = &secs
			}
			switch {
			case clearTags:
				opts.TagIDs = []int64{}
			case cmd.Flags().Changed("tag"):
				opts.TagNames = tags
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().DurationVar(&limit, "limit", 0, "new time limit")
	cmd.Flags().BoolVar(&clearLimit, "clear-limit", false, "remove the time limit")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "replace tags with these names (repeatable)")
	cmd.Flags().BoolVar(&clearTags, "clear-tags", false, "remove every tag")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task with its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, id); err != nil {
					return err
				}
				return printOK(fmt.Sprintf("task %d deleted", id))
			})
		},
	}
}

func taskArchiveCmd(archive bool) *cobra.Command {
	use, short := "archive <id>", "Archive a task"
	if !archive {
		use, short = "unarchive <id>", "Restore an archived task"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var t domain.Task
				if archive {
					t, err = e.ArchiveTask(ctx, id)
				} else {
					t, err = e.UnarchiveTask(ctx, id)
				}
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set status (inbox, waiting, next, executing, done)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetStatus(ctx, id, domain.Status(args[1]))
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
}

func taskCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "category <id> <category>",
		Short: "Set category (urgent, priority, normal, time_leak)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetCategory(ctx, id, domain.Category(args[1]))
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
}

func timerCmd(use, short string, run func(engine.Engine) func(context.Context, int64) (domain.Snapshot, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := run(e)(ctx, id)
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
}

func startCmd() *cobra.Command {
	return timerCmd("start", "Start a task, stopping the running one", func(e engine.Engine) func(context.Context, int64) (domain.Snapshot, error) {
		return e.Start
	})
}

func stopCmd() *cobra.Command {
	return timerCmd("stop", "Stop a task", func(e engine.Engine) func(context.Context, int64) (domain.Snapshot, error) {
		return e.Stop
	})
}

func resetCmd() *cobra.Command {
	return timerCmd("reset", "Delete every session of a task and zero its total", func(e engine.Engine) func(context.Context, int64) (domain.Snapshot, error) {
		return e.Reset
	})
}

func amountCmd(use, short string, run func(engine.Engine) func(context.Context, int64, int64) (domain.Snapshot, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> <duration>",
		Short: short,
		Long:  short + ". Duration is Go syntax (1h30m) or plain seconds.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			secs, err := parseSeconds(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := run(e)(ctx, id, secs)
				if err != nil {
					return err
				}
				return printSnapshot(snap)
			})
		},
	}
}

func addTimeCmd() *cobra.Command {
	return amountCmd("add-time", "Record time worked without the timer", func(e engine.Engine) func(context.Context, int64, int64) (domain.Snapshot, error) {
		return e.AddManualEntry
	})
}

func setTotalCmd() *cobra.Command {
	return amountCmd("set-total", "Overwrite a task's total", func(e engine.Engine) func(context.Context, int64, int64) (domain.Snapshot, error) {
		return e.SetTotal
	})
}

func entriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entries <id>",
		Short: "List a task's sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.TimeEntries(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable(table.Row{"ID", "Start", "End", "Duration"})
				for _, en := range entries {
					end, dur := "running", ""
					if en.EndTime != nil {
						end = en.EndTime.Local().Format(time.DateTime)
					}
					if en.DurationSeconds != nil {
						dur = domain.FormatClock(*en.DurationSeconds)
					}
					tw.AppendRow(table.Row{en.ID, en.StartTime.Local().Format(time.DateTime), end, dur})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func activeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the running task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.Active(ctx)
				if err != nil {
					return err
				}
				if snap.TaskID == 0 && !viper.GetBool("json") {
					fmt.Println("no timer running")
					return nil
				}
				return printSnapshot(snap)
			})
		},
	}
}

func tagCmd() *cobra.Command {
	tag := &cobra.Command{Use: "tag", Short: "Manage tags"}
	tag.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tags, err := e.ListTags(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tags)
				}
				tw := newTable(table.Row{"ID", "Name", "Color"})
				for _, t := range tags {
					tw.AppendRow(table.Row{t.ID, t.Name, t.Color})
				}
				tw.Render()
				return nil
			})
		},
	})
	var color string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTag(ctx, args[0], color)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	create.Flags().StringVar(&color, "color", "", "hex colour, random from the palette when empty")
	tag.AddCommand(create)
	tag.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTag(ctx, id); err != nil {
					return err
				}
				return printOK(fmt.Sprintf("tag %d deleted", id))
			})
		},
	})
	return tag
}

func statsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:       "stats <daily|tasks|categories|statuses|heatmap|general>",
		Short:     "Show time statistics",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"daily", "tasks", "categories", "statuses", "heatmap", "general"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				switch args[0] {
				case "daily":
					rows, err := e.DailyStats(ctx)
					if err != nil {
						return err
					}
					return printRows(rows, table.Row{"Date", "Weekday", "Time"}, func(s domain.DailyStat) table.Row {
						return table.Row{s.Date, time.Weekday(s.DayOfWeek).String(), domain.FormatClock(s.TotalSeconds)}
					})
				case "tasks":
					rows, err := e.TopTasks(ctx, limit)
					if err != nil {
						return err
					}
					return printRows(rows, table.Row{"ID", "Task", "Time"}, func(s domain.TaskTimeStat) table.Row {
						return table.Row{s.TaskID, s.TaskName, domain.FormatClock(s.TotalSeconds)}
					})
				case "categories":
					rows, err := e.CategoryStats(ctx)
					if err != nil {
						return err
					}
					return printRows(rows, table.Row{"Category", "Tasks", "Time"}, func(s domain.CategoryStat) table.Row {
						return table.Row{s.Category, s.TaskCount, domain.FormatClock(s.TotalSeconds)}
					})
				case "statuses":
					rows, err := e.StatusStats(ctx)
					if err != nil {
						return err
					}
					return printRows(rows, table.Row{"Status", "Time"}, func(s domain.StatusStat) table.Row {
						return table.Row{s.Status, domain.FormatClock(s.TotalSeconds)}
					})
				case "heatmap":
					rows, err := e.Heatmap(ctx)
					if err != nil {
						return err
					}
					return printRows(rows, table.Row{"Date", "Time"}, func(s domain.HeatmapDay) table.Row {
						return table.Row{s.Date, domain.FormatClock(s.Seconds)}
					})
				case "general":
					s, err := e.GeneralStats(ctx)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(s)
					}
					tw := newTable(table.Row{"Metric", "Value"})
					tw.AppendRows([]table.Row{
						{"Tasks", s.TotalTasks},
						{"Completed", s.CompletedTasks},
						{"Tracked", domain.FormatClock(s.TotalTimeSeconds)},
						{"Sessions", s.TotalSessions},
						{"Average session", domain.FormatClock(s.AvgSessionSeconds)},
					})
					tw.Render()
					return nil
				default:
					return fmt.Errorf("unknown stats kind %q", args[0])
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "rows for the tasks report")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var (
		n                   int
		evtType, entityKind string
		entityID            int64
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Events(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printRows(events, table.Row{"ID", "Time", "Type", "Entity", "Payload"}, func(ev domain.Event) table.Row {
					return table.Row{ev.ID, ev.TS, ev.Type, fmt.Sprintf("%s/%d", ev.EntityKind, ev.EntityID), ev.Payload}
				})
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind (task, tag)")
	cmd.Flags().Int64Var(&entityID, "entity-id", 0, "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in .tasktimer/tasktimer.yml; TASKTIMER_* env vars and flags override it.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetViper())
			if err != nil {
				return err
			}
			redact(&c.Server.JWTSecret)
			redact(&c.Sync.Token)
			if viper.GetBool("json") {
				return printJSON(c)
			}
			out, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return printOK("wrote " + path)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfg.AddCommand(initCmd)
	return cfg
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := app.ResolveConfig(workspace, viper.GetViper())
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, workspace, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseSeconds accepts a Go duration or a plain number of seconds.
func parseSeconds(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return int64(d / time.Second), nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printRows[T any](rows []T, header table.Row, row func(T) table.Row) error {
	if viper.GetBool("json") {
		return printJSON(rows)
	}
	tw := newTable(header)
	for _, r := range rows {
		tw.AppendRow(row(r))
	}
	tw.Render()
	return nil
}

func printTasks(tasks []domain.Task) error {
	return printRows(tasks, table.Row{"ID", "Name", "Status", "Category", "Total", "Limit", "Running", "Leak", "Tags"}, func(t domain.Task) table.Row {
		limit := ""
		if t.TimeLimitSeconds != nil {
			limit = domain.FormatClock(*t.TimeLimitSeconds)
		}
		running := ""
		if t.IsRunning {
			running = "yes"
		}
		leak := ""
		if lvl := notify.LeakLevelOf(t.Category, t.TotalSeconds); lvl != notify.LeakNone {
			leak = lvl.String()
		}
		names := make([]string, 0, len(t.Tags))
		for _, tag := range t.Tags {
			names = append(names, tag.Name)
		}
		return table.Row{t.ID, t.Name, t.Status, t.Category, domain.FormatClock(t.TotalSeconds), limit, running, leak, strings.Join(names, ", ")}
	})
}

func printSnapshot(s domain.Snapshot) error {
	if viper.GetBool("json") {
		return printJSON(s)
	}
	state := "stopped"
	if s.Running {
		state = "running"
	}
	fmt.Printf("#%d %s  %s  %s\n", s.TaskID, s.TaskName, domain.FormatClock(s.DisplaySeconds(s.TakenAt)), state)
	return nil
}

func redact(s *string) {
	if *s != "" {
		*s = "********"
	}
}

func printOK(msg string) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{"ok": true, "message": msg})
	}
	fmt.Println(msg)
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
