package server

import (
	"net/http"
	"time"

	"github.com/seoforge-ai/seoforge/internal/model"
	"github.com/seoforge-ai/seoforge/internal/quota"
)

// HandleListPlaybooks handles GET /v1/playbooks.
func (h *Handlers) HandleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromRequest(w, r)
	if !ok {
		return
	}

	playbooks, err := h.db.ListPlaybooks(r.Context(), project.ID)
	if err != nil {
		h.logger.Error("list playbooks", "error", err, "project_id", project.ID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"playbooks": playbooks,
		"count":     len(playbooks),
	})
}

// HandleGetPlaybook handles GET /v1/playbooks/{playbook_id}.
func (h *Handlers) HandleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromRequest(w, r)
	if !ok {
		return
	}
	pb, ok := h.playbookFromRequest(w, r, project)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, pb)
}

// HandleUsage handles GET /v1/usage: the current month's usage events plus
// the evaluated quota position.
func (h *Handlers) HandleUsage(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromRequest(w, r)
	if !ok {
		return
	}

	from, to := quota.MonthWindow(time.Now())
	events, err := h.db.ListUsageEvents(r.Context(), project.ID, from, to)
	if err != nil {
		h.logger.Error("list usage events", "error", err, "project_id", project.ID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"project_id":   project.ID,
		"plan":         project.Plan,
		"period_start": from,
		"events":       events,
		"event_count":  len(events),
		"quota_status": h.svc.Quota(r.Context(), project),
	})
}
