/*
handlers.go - HTTP API handlers for the recurring task engine

PURPOSE:
  Exposes the recurrence lifecycle via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Tasks:
    GET    /api/tasks                       Combined board: instances, virtuals, templates

  Templates:
    GET    /api/templates                   List all templates
    POST   /api/templates                   Create/update a template from its field encoding
    DELETE /api/templates                   Delete a template (identity in query params)

  Instances:
    POST   /api/instances/{id}/complete     Complete a persisted instance
    POST   /api/instances/complete-virtual  Complete a virtual occurrence

  Admin:
    POST   /api/admin/materialize           Force a materialization pass
    GET    /api/admin/runs                  Recent materialization runs
    POST   /api/reset                       Database reset (dev only)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Tasks:     Storage access
  - Lifecycle: Materialization and completion logic
  - Runs:      Run-record persistence (optional; nil skips recording)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (lifecycle, codec)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, malformed recurrence fields
  - 404: Template or instance not found
  - 409: Conflict (duplicate instance for a date)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background materialization heartbeat
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/recurrence-engine/codec"
	"github.com/warp/recurrence-engine/recur"
	"github.com/warp/recurrence-engine/store/sqlite"
	"github.com/warp/recurrence-engine/task"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// RunStore persists materialization run records.
type RunStore interface {
	SaveMaterializationRun(ctx context.Context, r sqlite.MaterializationRun) error
	ListMaterializationRuns(ctx context.Context, limit int) ([]sqlite.MaterializationRun, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tasks     task.Store
	Lifecycle *task.Lifecycle
	Runs      RunStore // nil disables run recording
}

// NewHandler creates a new handler backed by the SQLite store.
func NewHandler(store *sqlite.Store, lifecycle *task.Lifecycle) *Handler {
	return &Handler{
		Tasks:     store,
		Lifecycle: lifecycle,
		Runs:      store,
	}
}

// =============================================================================
// TASK BOARD
// =============================================================================

// GetTasks returns the combined user-facing view: every persisted instance,
// the session's virtual occurrences, and templates not covered by either.
func (h *Handler) GetTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	instances, err := h.Tasks.ListAllInstances(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances", err)
		return
	}
	virtuals, err := h.Lifecycle.Virtuals(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute virtual instances", err)
		return
	}
	templates, err := h.Lifecycle.VisibleTemplates(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}

	board := TaskBoardDTO{
		Instances: toInstanceDTOs(instances),
		Virtuals:  toInstanceDTOs(virtuals),
		Templates: make([]TemplateDTO, len(templates)),
	}
	for i, tpl := range templates {
		board.Templates[i] = toTemplateDTO(tpl)
	}

	writeJSON(w, http.StatusOK, board)
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

// ListTemplates returns all templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Tasks.ListTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates", err)
		return
	}

	dtos := make([]TemplateDTO, len(templates))
	for i, tpl := range templates {
		dtos[i] = toTemplateDTO(tpl)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTemplate creates or updates a template. The recurrence rule arrives
// in its field encoding and is decoded before anything is stored; a save is
// followed immediately by a forced materialization pass.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.Project == "" || req.Section == "" {
		writeError(w, http.StatusBadRequest, "name, project and section are required", nil)
		return
	}

	rule, err := codec.DecodeRule(codec.ExtractFields(req.Metadata), recur.Today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid recurrence fields", err)
		return
	}

	tpl := task.Template{
		Identity: task.Identity{Name: req.Name, Project: req.Project, Section: req.Section},
		Rule:     rule,
	}
	res, err := h.Lifecycle.PutTemplate(r.Context(), tpl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save template", err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Template     TemplateDTO   `json:"template"`
		Materialized []InstanceDTO `json:"materialized"`
	}{
		Template:     toTemplateDTO(tpl),
		Materialized: toInstanceDTOs(res.Created),
	})
}

// DeleteTemplate removes a template. Its persisted instances survive and
// complete without spawning successors.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := task.Identity{
		Name:    r.URL.Query().Get("name"),
		Project: r.URL.Query().Get("project"),
		Section: r.URL.Query().Get("section"),
	}
	if id.Name == "" || id.Project == "" || id.Section == "" {
		writeError(w, http.StatusBadRequest, "name, project and section query params are required", nil)
		return
	}

	deleter, ok := h.Tasks.(interface {
		DeleteTemplate(ctx context.Context, id task.Identity) error
	})
	if !ok {
		writeError(w, http.StatusInternalServerError, "Store does not support deletion", nil)
		return
	}
	if err := deleter.DeleteTemplate(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete template", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// INSTANCE HANDLERS
// =============================================================================

// CompleteInstance marks a persisted instance as completed and immediately
// materializes the occurrence that follows it.
func (h *Handler) CompleteInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "id")

	res, err := h.Lifecycle.Complete(r.Context(), instanceID)
	if err != nil {
		if recur.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Instance not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to complete instance", err)
		return
	}

	writeJSON(w, http.StatusOK, toCompleteResponse(res))
}

// CompleteVirtual completes an occurrence that was never persisted. The
// completed record and its successor are written in one atomic batch.
func (h *Handler) CompleteVirtual(w http.ResponseWriter, r *http.Request) {
	var req CompleteVirtualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	due, err := recur.ParseCalendarDate(req.Due)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid due date (use YYYY-MM-DD)", err)
		return
	}

	id := task.Identity{Name: req.Name, Project: req.Project, Section: req.Section}
	res, err := h.Lifecycle.CompleteVirtual(r.Context(), id, due)
	if err != nil {
		if recur.IsDuplicate(err) {
			writeError(w, http.StatusConflict, "An instance already exists for this date", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to complete occurrence", err)
		return
	}

	writeJSON(w, http.StatusOK, toCompleteResponse(res))
}

func toCompleteResponse(res task.CompleteResult) CompleteResponse {
	out := CompleteResponse{Completed: toInstanceDTO(res.Completed)}
	if next, ok := res.Next.Get(); ok {
		dto := toInstanceDTO(next)
		out.Next = &dto
	}
	return out
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerMaterialize forces a materialization pass, bypassing the 24h gate.
func (h *Handler) TriggerMaterialize(w http.ResponseWriter, r *http.Request) {
	res, err := h.Lifecycle.MaterializeNow(r.Context())
	recordRun(r.Context(), h.Runs, h.Lifecycle.Clock(), res, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Materialization pass failed", err)
		return
	}

	writeJSON(w, http.StatusOK, MaterializeResponse{
		Ran:     res.Ran,
		Created: toInstanceDTOs(res.Created),
		Skipped: res.Skipped,
	})
}

// ListRuns returns recent materialization runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, []RunDTO{})
		return
	}

	runs, err := h.Runs.ListMaterializationRuns(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	resetter, ok := h.Tasks.(interface {
		Reset(ctx context.Context) error
	})
	if !ok {
		writeError(w, http.StatusInternalServerError, "Store does not support reset", nil)
		return
	}
	if err := resetter.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
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
