/*
commands.go - grindctl subcommands and terminal rendering

PURPOSE:
  Implements the nine subcommands. Each one is a thin wrapper over the
  HTTP API: build the request, decode the DTO, render a table.

RENDERING:
  Tables use tablewriter with borders off so output stays grep-friendly.
  Statuses are colored (pending yellow, active cyan, completed green,
  skipped red); set NO_COLOR or pipe the output and color turns off on
  its own.

SEE ALSO:
  - main.go: Root command and API client
  - api/handlers.go: The endpoints these commands call
*/
package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/grindstone/engine/api"
)

// =============================================================================
// TODAY
// =============================================================================

func newTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's agenda and habits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()

			var stats api.StatsDTO
			if err := c.get("/api/stats", &stats); err != nil {
				return err
			}
			var tasks, habits []api.ItemDTO
			if err := c.get("/api/items/today", &tasks); err != nil {
				return err
			}
			if err := c.get("/api/items/today-habits", &habits); err != nil {
				return err
			}

			fmt.Printf("%s    points %s    penalty streak %d\n",
				color.New(color.Bold).Sprint(stats.Date),
				colorNet(stats.TotalPoints), stats.PenaltyStreak)
			if stats.PendingRoll {
				fmt.Println(color.YellowString("roll pending, run `grindctl roll`"))
			}

			if len(tasks) == 0 && len(habits) == 0 {
				fmt.Println("Nothing planned. Run `grindctl roll` to build the day.")
				return nil
			}

			if len(tasks) > 0 {
				fmt.Println()
				t := newTable("ID", "TASK", "PROJECT", "PRI", "ENR", "STATUS", "TIME")
				for _, it := range tasks {
					t.Append([]string{
						strconv.FormatInt(it.ID, 10),
						truncate(it.Description, 48),
						it.Project,
						strconv.Itoa(it.Priority),
						strconv.Itoa(it.Energy),
						colorStatus(it.Status),
						fmtSeconds(it.TimeSpent),
					})
				}
				t.Render()
			}

			if len(habits) > 0 {
				fmt.Println()
				t := newTable("ID", "HABIT", "TYPE", "STREAK", "REPS", "STATUS")
				for _, it := range habits {
					t.Append([]string{
						strconv.FormatInt(it.ID, 10),
						truncate(it.Description, 48),
						it.HabitType,
						strconv.Itoa(it.Streak),
						fmt.Sprintf("%d/%d", it.DailyCompleted, it.DailyTarget),
						colorStatus(it.Status),
					})
				}
				t.Render()
			}
			return nil
		},
	}
}

// =============================================================================
// LIST
// =============================================================================

func newListCmd() *cobra.Command {
	var (
		status  string
		pending bool
		habits  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/items"
			switch {
			case pending:
				path = "/api/items/pending"
			case habits:
				path = "/api/items/habits"
			case status != "":
				path = "/api/items?status=" + url.QueryEscape(status)
			}

			var items []api.ItemDTO
			if err := apiClient().get(path, &items); err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No items.")
				return nil
			}

			if habits {
				t := newTable("ID", "HABIT", "TYPE", "EVERY", "STREAK", "DUE", "STATUS")
				for _, it := range items {
					t.Append([]string{
						strconv.FormatInt(it.ID, 10),
						truncate(it.Description, 48),
						it.HabitType,
						fmtRecurrence(it.Recurrence),
						strconv.Itoa(it.Streak),
						orDash(it.DueDate),
						colorStatus(it.Status),
					})
				}
				t.Render()
				return nil
			}

			t := newTable("ID", "DESCRIPTION", "PROJECT", "PRI", "ENR", "URG", "DUE", "STATUS")
			for _, it := range items {
				t.Append([]string{
					strconv.FormatInt(it.ID, 10),
					truncate(it.Description, 48),
					it.Project,
					strconv.Itoa(it.Priority),
					strconv.Itoa(it.Energy),
					strconv.Itoa(it.Urgency),
					orDash(it.DueDate),
					colorStatus(it.Status),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|active|completed|skipped)")
	cmd.Flags().BoolVar(&pending, "pending", false, "pending tasks in urgency order")
	cmd.Flags().BoolVar(&habits, "habits", false, "habits only")
	return cmd
}

// =============================================================================
// ADD
// =============================================================================

func newAddCmd() *cobra.Command {
	var (
		project   string
		priority  int
		energy    int
		due       string
		dependsOn int64
		habit     bool
		habitType string
		daily     bool
		every     int
		weekly    string
		target    int
	)
	cmd := &cobra.Command{
		Use:   "add <description>",
		Short: "Create a task or habit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.CreateItemRequest{
				Description: strings.Join(args, " "),
				Project:     project,
				Priority:    priority,
				Energy:      energy,
				DueDate:     due,
				DailyTarget: target,
			}
			if dependsOn > 0 {
				req.DependsOn = &dependsOn
			}

			switch {
			case weekly != "":
				days, err := parseWeekdays(weekly)
				if err != nil {
					return err
				}
				req.Recurrence = &api.RecurrenceDTO{Type: "weekly", Weekdays: days}
			case every > 1:
				req.Recurrence = &api.RecurrenceDTO{Type: "every_n_days", Interval: every}
			case daily:
				req.Recurrence = &api.RecurrenceDTO{Type: "daily"}
			}
			if req.Recurrence != nil || habit {
				req.IsHabit = true
				req.HabitType = habitType
				if req.Recurrence == nil {
					req.Recurrence = &api.RecurrenceDTO{Type: "daily"}
				}
			}

			var item api.ItemDTO
			if err := apiClient().post("/api/items", req, &item); err != nil {
				return err
			}
			kind := "task"
			if item.IsHabit {
				kind = item.HabitType + " habit"
			}
			fmt.Printf("Created %s #%d: %s\n", kind, item.ID, item.Description)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project tag")
	cmd.Flags().IntVar(&priority, "priority", 3, "priority 0..10")
	cmd.Flags().IntVar(&energy, "energy", 2, "energy estimate 0..5")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().Int64Var(&dependsOn, "depends-on", 0, "id of the item this one waits for")
	cmd.Flags().BoolVar(&habit, "habit", false, "create a habit (daily unless --every/--weekly)")
	cmd.Flags().StringVar(&habitType, "type", "skill", "habit type (skill|routine)")
	cmd.Flags().BoolVar(&daily, "daily", false, "recur every day")
	cmd.Flags().IntVar(&every, "every", 0, "recur every N days")
	cmd.Flags().StringVar(&weekly, "weekly", "", "recur on weekdays, e.g. mon,wed,fri")
	cmd.Flags().IntVar(&target, "target", 0, "repetitions per day (routine habits)")
	return cmd
}

// =============================================================================
// START / STOP / DONE
// =============================================================================

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start working an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id < 1 {
				return fmt.Errorf("item id must be a positive integer, got %q", args[0])
			}
			var item api.ItemDTO
			if err := apiClient().post("/api/items/start", api.StartItemRequest{ID: id}, &item); err != nil {
				return err
			}
			fmt.Printf("%s #%d: %s\n", color.CyanString("Started"), item.ID, item.Description)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Pause the running item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.StopResponse
			if err := apiClient().post("/api/items/stop", struct{}{}, &resp); err != nil {
				return err
			}
			if !resp.Stopped {
				fmt.Println("Nothing running.")
				return nil
			}
			fmt.Printf("Stopped #%d: %s (%s on the clock)\n",
				resp.Item.ID, resp.Item.Description, fmtSeconds(resp.Item.TimeSpent))
			return nil
		},
	}
}

func newDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done [id]",
		Short: "Complete an item (default: the running one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.CompleteItemRequest
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || id < 1 {
					return fmt.Errorf("item id must be a positive integer, got %q", args[0])
				}
				req.ID = &id
			}

			var resp api.CompleteResponse
			if err := apiClient().post("/api/items/complete", req, &resp); err != nil {
				return err
			}

			if resp.Item.IsHabit && !resp.TargetMet {
				fmt.Printf("Progress %d/%d on #%d: %s\n",
					resp.Item.DailyCompleted, resp.Item.DailyTarget,
					resp.Item.ID, resp.Item.Description)
				return nil
			}
			fmt.Printf("%s #%d: %s  %s\n",
				color.GreenString("Completed"), resp.Item.ID, resp.Item.Description,
				colorNetSigned(resp.Points))
			if resp.Reward != nil {
				fmt.Printf("  energy x%.2f, time x%.2f, focus x%.2f\n",
					resp.Reward.EnergyMult, resp.Reward.TimeQuality, resp.Reward.Focus)
			}
			if resp.Item.IsHabit && resp.Item.Streak > 0 {
				fmt.Printf("  streak %d\n", resp.Item.Streak)
			}
			return nil
		},
	}
}

// =============================================================================
// ROLL
// =============================================================================

func newRollCmd() *cobra.Command {
	var (
		mood  int
		check bool
	)
	cmd := &cobra.Command{
		Use:   "roll",
		Short: "Build today's agenda",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()

			if check {
				var st api.RollStatusDTO
				if err := c.get("/api/roll/can", &st); err != nil {
					return err
				}
				if st.Available {
					fmt.Printf("Roll available for %s.\n", st.EffectiveDate)
				} else {
					fmt.Printf("Roll not available: %s (opens at %s)\n", st.Reason, st.OpensAt)
				}
				return nil
			}

			req := api.RollRequest{}
			if mood >= 0 {
				req.Mood = &mood
			}
			var resp api.RollResponse
			if err := c.post("/api/roll", req, &resp); err != nil {
				return err
			}

			fmt.Printf("Rolled %s: %d tasks, %d habits",
				color.New(color.Bold).Sprint(resp.Date), resp.TasksPlanned, resp.HabitsTotal)
			if resp.PurgedHabits > 0 || resp.DaysFinalized > 0 {
				fmt.Printf(" (purged %d overdue habits, sealed %d past days)",
					resp.PurgedHabits, resp.DaysFinalized)
			}
			fmt.Println()

			if len(resp.Tasks) > 0 {
				fmt.Println()
				t := newTable("ID", "TASK", "PROJECT", "PRI", "ENR", "URG")
				for _, it := range resp.Tasks {
					t.Append([]string{
						strconv.FormatInt(it.ID, 10),
						truncate(it.Description, 48),
						it.Project,
						strconv.Itoa(it.Priority),
						strconv.Itoa(it.Energy),
						strconv.Itoa(it.Urgency),
					})
				}
				t.Render()
			}
			if len(resp.Habits) > 0 {
				fmt.Println()
				t := newTable("ID", "HABIT", "TYPE", "STREAK", "TARGET")
				for _, it := range resp.Habits {
					t.Append([]string{
						strconv.FormatInt(it.ID, 10),
						truncate(it.Description, 48),
						it.HabitType,
						strconv.Itoa(it.Streak),
						strconv.Itoa(it.DailyTarget),
					})
				}
				t.Render()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&mood, "mood", -1, "energy level 0..5, caps the day's heaviest tasks")
	cmd.Flags().BoolVar(&check, "check", false, "only report whether a roll is available")
	return cmd
}

// =============================================================================
// POINTS
// =============================================================================

func newPointsCmd() *cobra.Command {
	var (
		days   int
		target string
	)
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Balance, history, and projection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()

			var total api.PointsDTO
			if err := c.get("/api/points/current", &total); err != nil {
				return err
			}
			fmt.Printf("Balance: %s\n", colorNet(total.TotalPoints))

			var history []api.LedgerDTO
			if err := c.get(fmt.Sprintf("/api/points/history?days=%d", days), &history); err != nil {
				return err
			}
			if len(history) > 0 {
				fmt.Println()
				t := newTable("DATE", "EARNED", "PENALTY", "NET", "TASKS", "HABITS", "RATE", "STREAK")
				for _, l := range history {
					t.Append([]string{
						l.Date,
						strconv.Itoa(l.PointsEarned),
						strconv.Itoa(l.PointsPenalty),
						colorNet(l.DailyTotal),
						fmt.Sprintf("%d/%d", l.TasksCompleted, l.TasksPlanned),
						fmt.Sprintf("%d/%d", l.HabitsCompleted, l.HabitsTotal),
						fmt.Sprintf("%.0f%%", l.CompletionRate*100),
						strconv.Itoa(l.PenaltyStreak),
					})
				}
				t.Render()
			}

			if target != "" {
				var proj api.ProjectionDTO
				if err := c.get("/api/points/projection?target_date="+url.QueryEscape(target), &proj); err != nil {
					return err
				}
				fmt.Println()
				fmt.Printf("Projection for %s (%d days out, avg %.1f/day):\n",
					proj.TargetDate, proj.DaysUntil, proj.AvgPerDay)
				fmt.Printf("  low %d   expected %d   high %d\n",
					proj.MinProjection, proj.AvgProjection, proj.MaxProjection)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "history window in days")
	cmd.Flags().StringVar(&target, "target", "", "project the balance to YYYY-MM-DD")
	return cmd
}

// =============================================================================
// STATUS
// =============================================================================

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Dashboard and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient()

			var stats api.StatsDTO
			if err := c.get("/api/stats", &stats); err != nil {
				return err
			}

			fmt.Printf("Date:            %s\n", stats.Date)
			fmt.Printf("Total points:    %s\n", colorNet(stats.TotalPoints))
			fmt.Printf("Today:           +%d / -%d  (%d/%d tasks, %d/%d habits)\n",
				stats.Today.PointsEarned, stats.Today.PointsPenalty,
				stats.Today.TasksCompleted, stats.Today.TasksPlanned,
				stats.Today.HabitsCompleted, stats.Today.HabitsTotal)
			fmt.Printf("Pending tasks:   %d\n", stats.PendingTasks)
			fmt.Printf("Habits due:      %d\n", stats.HabitsDueToday)
			if stats.ActiveItem != nil {
				fmt.Printf("Active:          #%d %s (%s)\n",
					stats.ActiveItem.ID, stats.ActiveItem.Description,
					fmtSeconds(stats.ActiveItem.TimeSpent))
			} else {
				fmt.Printf("Active:          -\n")
			}
			fmt.Printf("Penalty streak:  %d\n", stats.PenaltyStreak)
			if stats.PendingRoll {
				fmt.Printf("Roll:            %s\n", color.YellowString("pending"))
			} else if stats.LastRollDate == stats.Date {
				fmt.Printf("Roll:            done for today\n")
			} else {
				fmt.Printf("Roll:            not yet (last %s)\n", orDash(stats.LastRollDate))
			}

			// The scheduler only runs inside the server; a bare engine
			// answering /api/stats without it is still a healthy setup.
			var sched api.SchedulerStatusDTO
			if err := c.get("/api/scheduler/status", &sched); err != nil {
				fmt.Printf("Scheduler:       %s\n", err)
				return nil
			}
			fmt.Println()
			t := newTable("JOB", "STATE", "RUNS", "CHECKS", "LAST RUN", "NEXT FIRE", "LAST ERROR")
			for _, j := range sched.Jobs {
				t.Append([]string{
					j.Name,
					colorJobState(j.State),
					strconv.FormatInt(j.TotalRuns, 10),
					strconv.FormatInt(j.TotalChecks, 10),
					orDash(j.LastRun),
					orDash(j.NextFire),
					truncate(orDash(j.LastError), 40),
				})
			}
			t.Render()
			return nil
		},
	}
}

// =============================================================================
// RENDER HELPERS
// =============================================================================

func newTable(headers ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(os.Stdout)
	t.SetHeader(headers)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(true)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}

func colorStatus(status string) string {
	switch status {
	case "active":
		return color.CyanString(status)
	case "completed":
		return color.GreenString(status)
	case "skipped":
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}

func colorJobState(state string) string {
	if state == "error" {
		return color.RedString(state)
	}
	return color.GreenString(state)
}

func colorNet(n int) string {
	if n < 0 {
		return color.RedString("%d", n)
	}
	return color.GreenString("%d", n)
}

func colorNetSigned(n int) string {
	if n < 0 {
		return color.RedString("%d points", n)
	}
	return color.GreenString("+%d points", n)
}

func fmtSeconds(secs int64) string {
	if secs <= 0 {
		return "-"
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func fmtRecurrence(r *api.RecurrenceDTO) string {
	if r == nil {
		return "-"
	}
	switch r.Type {
	case "daily":
		return "day"
	case "every_n_days":
		return fmt.Sprintf("%dd", r.Interval)
	case "weekly":
		names := make([]string, 0, len(r.Weekdays))
		for _, d := range r.Weekdays {
			names = append(names, weekdayShort(d))
		}
		return strings.Join(names, ",")
	default:
		return r.Type
	}
}

func weekdayShort(d int) string {
	names := [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}
	if d < 0 || d > 6 {
		return "?"
	}
	return names[d]
}

func parseWeekdays(s string) ([]int, error) {
	lookup := map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if len(p) > 3 {
			p = p[:3]
		}
		d, ok := lookup[p]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q (want sun..sat)", p)
		}
		days = append(days, d)
	}
	return days, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
