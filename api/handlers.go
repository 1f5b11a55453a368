/*
handlers.go - HTTP API handlers for the day-lifecycle engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Items:
    GET    /api/items                 List items (?status=)
    GET    /api/items/pending         Pending tasks, urgency order
    GET    /api/items/today           Today's task agenda
    GET    /api/items/habits          All habits
    GET    /api/items/today-habits    Habits due on the effective date
    GET    /api/items/active          The running item
    GET    /api/items/{id}            One item
    POST   /api/items                 Create task or habit
    PUT    /api/items/{id}            Partial update
    DELETE /api/items/{id}            Delete

  Tracking:
    POST   /api/items/start           Start working an item {id}
    POST   /api/items/stop            Stop the running item
    POST   /api/items/complete        Complete an item {id?}

  Planning:
    GET    /api/roll/can              Roll availability
    POST   /api/roll                  Build today's agenda {mood?}

  Points:
    GET    /api/points/current        Lifetime balance
    GET    /api/points/history        Recent ledger rows (?days=)
    GET    /api/points/projection     Balance estimate (?target_date=)
    GET    /api/stats                 Dashboard snapshot

  Goals:      CRUD under /api/goals, plus POST /api/goals/{id}/claim
  Rest days:  GET/POST /api/rest-days, DELETE /api/rest-days/{id}
  Backups:    GET/POST /api/backups, DELETE /{id}, GET /{id}/download,
              POST /{id}/uploaded
  Scheduler:  GET /api/scheduler/status, POST /api/scheduler/jobs/{name}/run
  Scenarios:  GET /api/scenarios, POST /api/scenarios/load (see scenarios.go)
  Settings:   GET/PUT /api/settings

ARCHITECTURE:
  Handler holds every service. Handlers stay thin: parse, delegate,
  serialize. All sequencing rules live in the services.

ERROR HANDLING:
  Domain errors map to status codes in respondErr:
  - 400: invalid input, dependency cycles
  - 404: missing records, no active item
  - 409: sequencing conflicts (roll done/closed, dependency not met,
         day already finalized)
  - 500: store and backup failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/grindstone/engine/backup"
	"github.com/grindstone/engine/core"
	"github.com/grindstone/engine/planner"
	"github.com/grindstone/engine/scheduler"
	"github.com/grindstone/engine/scoring"
	"github.com/grindstone/engine/tracker"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   core.Store
	Tracker *tracker.Tracker
	Planner *planner.Planner
	Engine  *scoring.Engine
	Backups *backup.Service
	Sched   *scheduler.Scheduler // nil when running without background jobs
	Clock   core.Clock
	Log     *zap.Logger
}

// NewHandler wires a handler from the assembled services.
func NewHandler(store core.Store, tr *tracker.Tracker, pl *planner.Planner, eng *scoring.Engine, bk *backup.Service, sched *scheduler.Scheduler, clock core.Clock, log *zap.Logger) *Handler {
	return &Handler{
		Store:   store,
		Tracker: tr,
		Planner: pl,
		Engine:  eng,
		Backups: bk,
		Sched:   sched,
		Clock:   clock,
		Log:     log,
	}
}

func (h *Handler) effectiveDay(r *http.Request) (core.Day, error) {
	st, err := h.Store.Settings(r.Context())
	if err != nil {
		return core.Day{}, err
	}
	return core.EffectiveDate(h.Clock.Now(), st), nil
}

// Health reports liveness. Exempt from authentication.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   timeStr(h.Clock.Now()),
	})
}

// =============================================================================
// ITEM ENDPOINTS
// =============================================================================

// ListItems returns items, optionally filtered by status.
// GET /api/items?status=pending
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := core.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status), nil)
		return
	}

	items, err := h.Store.ListItems(ctx, status)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(items))
}

// PendingItems returns pending tasks in urgency order.
// GET /api/items/pending
func (h *Handler) PendingItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.PendingTasks(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(items))
}

// TodayItems returns the tasks on today's agenda.
// GET /api/items/today
func (h *Handler) TodayItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.TodayTasks(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(items))
}

// HabitItems returns all habits regardless of schedule.
// GET /api/items/habits
func (h *Handler) HabitItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.Habits(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(items))
}

// TodayHabits returns habits due on the effective date.
// GET /api/items/today-habits
func (h *Handler) TodayHabits(w http.ResponseWriter, r *http.Request) {
	eff, err := h.effectiveDay(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	items, err := h.Store.HabitsDueOn(r.Context(), eff)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(items))
}

// ActiveItem returns the item currently being worked, 404 if none.
// GET /api/items/active
func (h *Handler) ActiveItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Store.ActiveItem(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	if item == nil {
		respondErr(w, core.ErrNoActiveItem)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// GetItem returns one item by id.
// GET /api/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	item, err := h.Store.GetItem(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	if item == nil {
		respondErr(w, core.ErrItemNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// CreateItem creates a task or habit.
// POST /api/items
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	item := &core.WorkItem{
		Description: req.Description,
		Project:     req.Project,
		Priority:    req.Priority,
		Energy:      req.Energy,
		DependsOn:   req.DependsOn,
		IsHabit:     req.IsHabit,
		HabitType:   core.HabitType(req.HabitType),
		Recurrence:  fromRecurrenceDTO(req.Recurrence),
		DailyTarget: req.DailyTarget,
	}
	if req.DueDate != "" {
		d, err := core.ParseDay(req.DueDate)
		if err != nil {
			respondErr(w, &core.InvalidArgumentError{Field: "due_date", Value: req.DueDate, Reason: "want YYYY-MM-DD"})
			return
		}
		item.DueDate = d
	}

	if err := h.Tracker.Create(r.Context(), item); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// UpdateItem applies a partial update to an item.
// PUT /api/items/{id}
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	var req UpdateItemRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	item, err := h.Store.GetItem(ctx, id)
	if err != nil {
		respondErr(w, err)
		return
	}
	if item == nil {
		respondErr(w, core.ErrItemNotFound)
		return
	}

	if req.Description != nil {
		item.Description = *req.Description
	}
	if req.Project != nil {
		item.Project = *req.Project
	}
	if req.Priority != nil {
		item.Priority = *req.Priority
	}
	if req.Energy != nil {
		item.Energy = *req.Energy
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			item.DueDate = core.Day{}
		} else {
			d, err := core.ParseDay(*req.DueDate)
			if err != nil {
				respondErr(w, &core.InvalidArgumentError{Field: "due_date", Value: *req.DueDate, Reason: "want YYYY-MM-DD"})
				return
			}
			item.DueDate = d
		}
	}
	if req.DependsOn != nil {
		if *req.DependsOn == 0 {
			item.DependsOn = nil
		} else {
			item.DependsOn = req.DependsOn
		}
	}
	if req.HabitType != nil {
		item.HabitType = core.HabitType(*req.HabitType)
	}
	if req.Recurrence != nil {
		item.Recurrence = fromRecurrenceDTO(req.Recurrence)
	}
	if req.DailyTarget != nil {
		item.DailyTarget = *req.DailyTarget
	}

	if err := h.Tracker.Update(ctx, item); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// DeleteItem removes an item.
// DELETE /api/items/{id}
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := h.Tracker.Delete(r.Context(), id); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRACKING ENDPOINTS
// =============================================================================

// StartItem begins work on a pending item.
// POST /api/items/start
func (h *Handler) StartItem(w http.ResponseWriter, r *http.Request) {
	var req StartItemRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.ID < 1 {
		respondErr(w, &core.InvalidArgumentError{Field: "id", Value: req.ID, Reason: "want a positive integer"})
		return
	}
	item, err := h.Tracker.Start(r.Context(), req.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// StopItem pauses the running item. Stopping with nothing active is a
// no-op, reported as stopped=false.
// POST /api/items/stop
func (h *Handler) StopItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Tracker.Stop(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	resp := StopResponse{Stopped: item != nil}
	if item != nil {
		dto := toItemDTO(item)
		resp.Item = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompleteItem finishes an item. With no id in the body the active item
// completes.
// POST /api/items/complete
func (h *Handler) CompleteItem(w http.ResponseWriter, r *http.Request) {
	var req CompleteItemRequest
	if err := decodeOptional(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := h.Tracker.Complete(r.Context(), req.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompleteResponse(res))
}

// =============================================================================
// PLANNING ENDPOINTS
// =============================================================================

// CanRoll reports whether a roll is currently possible.
// GET /api/roll/can
func (h *Handler) CanRoll(w http.ResponseWriter, r *http.Request) {
	status, err := h.Planner.CanRoll(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRollStatusDTO(status))
}

// Roll builds today's agenda.
// POST /api/roll
func (h *Handler) Roll(w http.ResponseWriter, r *http.Request) {
	var req RollRequest
	if err := decodeOptional(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := h.Planner.Roll(r.Context(), req.Mood)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRollResponse(res))
}

// =============================================================================
// POINTS ENDPOINTS
// =============================================================================

// CurrentPoints returns the lifetime balance.
// GET /api/points/current
func (h *Handler) CurrentPoints(w http.ResponseWriter, r *http.Request) {
	total, err := h.Engine.CurrentPoints(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PointsDTO{TotalPoints: total})
}

// PointsHistory returns recent ledger rows, newest last.
// GET /api/points/history?days=7
func (h *Handler) PointsHistory(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			writeError(w, http.StatusBadRequest, "days must be in 1..365", nil)
			return
		}
		days = n
	}
	eff, err := h.effectiveDay(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	rows, err := h.Engine.History(r.Context(), eff, days)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerDTOs(rows))
}

// PointsProjection estimates the balance at a target date.
// GET /api/points/projection?target_date=2026-12-31
func (h *Handler) PointsProjection(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("target_date")
	target, err := core.ParseDay(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "target_date must be YYYY-MM-DD", nil)
		return
	}
	eff, err := h.effectiveDay(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	proj, err := h.Engine.Project(r.Context(), eff, target)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectionDTO(proj))
}

// Stats returns the dashboard snapshot.
// GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := h.Store.Settings(ctx)
	if err != nil {
		respondErr(w, err)
		return
	}
	eff := core.EffectiveDate(h.Clock.Now(), st)

	total, err := h.Engine.CurrentPoints(ctx)
	if err != nil {
		respondErr(w, err)
		return
	}

	today, err := h.Store.Ledger(ctx, eff)
	if err != nil {
		respondErr(w, err)
		return
	}
	if today == nil {
		today = &core.DayLedger{Date: eff}
	}

	pending, err := h.Store.PendingTasks(ctx)
	if err != nil {
		respondErr(w, err)
		return
	}
	agenda, err := h.Store.TodayTasks(ctx)
	if err != nil {
		respondErr(w, err)
		return
	}
	habits, err := h.Store.HabitsDueOn(ctx, eff)
	if err != nil {
		respondErr(w, err)
		return
	}

	stats := StatsDTO{
		Date:            eff.String(),
		TotalPoints:     total,
		Today:           toLedgerDTO(today),
		PendingTasks:    len(pending),
		TodayTasks:      len(agenda),
		HabitsDueToday:  len(habits),
		PendingRoll:     st.PendingRoll,
		LastRollDate:    dayStr(st.LastRollDate),
		LastPenaltyDate: dayStr(st.LastPenaltyDate),
	}

	if active, err := h.Store.ActiveItem(ctx); err == nil && active != nil {
		dto := toItemDTO(active)
		stats.ActiveItem = &dto
	}

	// The live streak belongs to the most recently finalized day.
	if !st.LastPenaltyDate.IsZero() {
		if sealed, err := h.Store.Ledger(ctx, st.LastPenaltyDate); err == nil && sealed != nil {
			stats.PenaltyStreak = sealed.PenaltyStreak
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// GOAL ENDPOINTS
// =============================================================================

// ListGoals returns all goals.
// GET /api/goals
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.Store.Goals(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTOs(goals))
}

// CreateGoal creates a goal.
// POST /api/goals
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req CreateGoalRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	g := &core.Goal{
		Type:              core.GoalType(req.Type),
		TargetPoints:      req.TargetPoints,
		ProjectName:       req.ProjectName,
		RewardDescription: req.RewardDescription,
		CreatedAt:         h.Clock.Now(),
	}
	if req.Deadline != "" {
		d, err := core.ParseDay(req.Deadline)
		if err != nil {
			respondErr(w, &core.InvalidArgumentError{Field: "deadline", Value: req.Deadline, Reason: "want YYYY-MM-DD"})
			return
		}
		g.Deadline = d
	}
	if err := g.Validate(); err != nil {
		respondErr(w, err)
		return
	}
	if err := h.Store.CreateGoal(r.Context(), g); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalDTO(g))
}

// GetGoal returns one goal.
// GET /api/goals/{id}
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	g, err := h.Store.GetGoal(r.Context(), id)
	if err != nil {
		respondErr(w, err)
		return
	}
	if g == nil {
		respondErr(w, core.ErrGoalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(g))
}

// UpdateGoal applies a partial update to a goal.
// PUT /api/goals/{id}
func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	var req UpdateGoalRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	g, err := h.Store.GetGoal(ctx, id)
	if err != nil {
		respondErr(w, err)
		return
	}
	if g == nil {
		respondErr(w, core.ErrGoalNotFound)
		return
	}

	if req.TargetPoints != nil {
		g.TargetPoints = *req.TargetPoints
	}
	if req.ProjectName != nil {
		g.ProjectName = *req.ProjectName
	}
	if req.RewardDescription != nil {
		g.RewardDescription = *req.RewardDescription
	}
	if req.Deadline != nil {
		if *req.Deadline == "" {
			g.Deadline = core.Day{}
		} else {
			d, err := core.ParseDay(*req.Deadline)
			if err != nil {
				respondErr(w, &core.InvalidArgumentError{Field: "deadline", Value: *req.Deadline, Reason: "want YYYY-MM-DD"})
				return
			}
			g.Deadline = d
		}
	}

	if err := g.Validate(); err != nil {
		respondErr(w, err)
		return
	}
	if err := h.Store.UpdateGoal(ctx, g); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(g))
}

// DeleteGoal removes a goal.
// DELETE /api/goals/{id}
func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := h.Store.DeleteGoal(r.Context(), id); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClaimGoal marks an achieved goal's reward as claimed. Claiming twice
// is idempotent.
// POST /api/goals/{id}/claim
func (h *Handler) ClaimGoal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	g, err := h.Store.GetGoal(ctx, id)
	if err != nil {
		respondErr(w, err)
		return
	}
	if g == nil {
		respondErr(w, core.ErrGoalNotFound)
		return
	}
	if !g.Achieved {
		writeError(w, http.StatusConflict, "goal not yet achieved", nil)
		return
	}
	if !g.RewardClaimed {
		g.RewardClaimed = true
		if err := h.Store.UpdateGoal(ctx, g); err != nil {
			respondErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toGoalDTO(g))
}

// =============================================================================
// REST DAY ENDPOINTS
// =============================================================================

// ListRestDays returns all rest days in date order.
// GET /api/rest-days
func (h *Handler) ListRestDays(w http.ResponseWriter, r *http.Request) {
	days, err := h.Store.RestDays(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	dtos := make([]RestDayDTO, 0, len(days))
	for _, d := range days {
		dtos = append(dtos, toRestDayDTO(d))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRestDay exempts a date from penalties.
// POST /api/rest-days
func (h *Handler) CreateRestDay(w http.ResponseWriter, r *http.Request) {
	var req CreateRestDayRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	d, err := core.ParseDay(req.Date)
	if err != nil {
		respondErr(w, &core.InvalidArgumentError{Field: "date", Value: req.Date, Reason: "want YYYY-MM-DD"})
		return
	}

	rest := &core.RestDay{Date: d, Description: req.Description, CreatedAt: h.Clock.Now()}
	if err := h.Store.CreateRestDay(r.Context(), rest); err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRestDayDTO(rest))
}

// DeleteRestDay removes a rest day.
// DELETE /api/rest-days/{id}
func (h *Handler) DeleteRestDay(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := h.Store.DeleteRestDay(r.Context(), id); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BACKUP ENDPOINTS
// =============================================================================

// ListBackups returns backup metadata, newest first.
// GET /api/backups
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.Backups.List(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBackupDTOs(backups))
}

// CreateBackup snapshots the database on demand.
// POST /api/backups
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	b, err := h.Backups.Create(r.Context(), core.BackupManual)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBackupDTO(b))
}

// DeleteBackup removes a backup row and its file.
// DELETE /api/backups/{id}
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.Backups.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadBackup streams the snapshot file.
// GET /api/backups/{id}/download
func (h *Handler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	path, b, err := h.Backups.Path(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", b.Filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

// MarkBackupUploaded flips the offsite flag after an external sync.
// POST /api/backups/{id}/uploaded
func (h *Handler) MarkBackupUploaded(w http.ResponseWriter, r *http.Request) {
	var req MarkUploadedRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	b, err := h.Backups.MarkUploaded(r.Context(), chi.URLParam(r, "id"), req.Uploaded)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBackupDTO(b))
}

// =============================================================================
// SCHEDULER ENDPOINTS
// =============================================================================

// SchedulerStatus reports the background jobs.
// GET /api/scheduler/status
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.Sched == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running", nil)
		return
	}
	status, err := h.Sched.Status(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchedulerStatusDTO(status))
}

// RunSchedulerJob forces one job evaluation, skipping its time gate.
// POST /api/scheduler/jobs/{name}/run
func (h *Handler) RunSchedulerJob(w http.ResponseWriter, r *http.Request) {
	if h.Sched == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running", nil)
		return
	}
	name := chi.URLParam(r, "name")
	executed, err := h.Sched.RunNow(r.Context(), name)
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RunJobResponse{Job: name, Executed: executed})
}

// =============================================================================
// SETTINGS ENDPOINTS
// =============================================================================

// GetSettings returns the settings row.
// GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.Settings(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(st))
}

// UpdateSettings applies a partial settings update. The engine state
// fields (tokens, pending flags, active item) are not settable here.
// PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}

	var updated *core.Settings
	err := h.Store.WithTx(r.Context(), func(tx core.Tx) error {
		st, err := tx.Settings(r.Context())
		if err != nil {
			return err
		}
		applySettingsUpdate(st, &req)
		if err := st.Validate(); err != nil {
			return err
		}
		if err := tx.SaveSettings(r.Context(), st); err != nil {
			return err
		}
		updated = st
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(updated))
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// respondErr maps domain errors onto status codes.
func respondErr(w http.ResponseWriter, err error) {
	switch {
	case core.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, core.ErrRollAlreadyDone),
		errors.Is(err, core.ErrRollNotAvailable),
		errors.Is(err, core.ErrAlreadyFinalized),
		errors.Is(err, core.ErrDependencyNotMet):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, core.ErrDependencyCycle),
		errors.Is(err, core.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, &core.InvalidArgumentError{Field: "id", Value: raw, Reason: "want a positive integer"}
	}
	return id, nil
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &core.InvalidArgumentError{Field: "body", Value: "", Reason: "malformed JSON"}
	}
	return nil
}

// decodeOptional tolerates an empty body; complete and roll take all
// their fields optionally.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &core.InvalidArgumentError{Field: "body", Value: "", Reason: "malformed JSON"}
}
