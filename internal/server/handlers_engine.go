package server

import (
	"errors"
	"net/http"

	"github.com/seoforge-ai/seoforge/internal/apply"
	"github.com/seoforge-ai/seoforge/internal/draft"
	"github.com/seoforge-ai/seoforge/internal/model"
	"github.com/seoforge-ai/seoforge/internal/rules"
	"github.com/seoforge-ai/seoforge/internal/service/playbook"
)

// HandlePreview handles POST /v1/playbooks/{playbook_id}/preview.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromRequest(w, r)
	if !ok {
		return
	}
	pb, ok := h.playbookFromRequest(w, r, project)
	if !ok {
		return
	}

	var req model.PreviewRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	resp, err := h.svc.Preview(r.Context(), project, pb, req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleGenerateDraft handles POST /v1/playbooks/{playbook_id}/draft.
// Prepares the full draft for the stored rules without returning samples.
func (h *Handlers) HandleGenerateDraft(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromRequest(w, r)
	if !ok {
		return
	}
	pb, ok := h.playbookFromRequest(w, r, project)
	if !ok {
		return
	}

	resp, err := h.svc.GenerateDraft(r.Context(), project, pb)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleEstimate handles GET /v1/playbooks/{playbook_id}/estimate?draft_key=…
func (h *Handlers) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromRequest(w, r)
	if !ok {
		return
	}
	pb, ok := h.playbookFromRequest(w, r, project)
	if !ok {
		return
	}

	draftKey := r.URL.Query().Get("draft_key")
	if draftKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "draft_key query parameter is required")
		return
	}

	resp, err := h.svc.Estimate(r.Context(), project, pb, draftKey)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleApply handles POST /v1/playbooks/{playbook_id}/apply.
func (h *Handlers) HandleApply(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromRequest(w, r)
	if !ok {
		return
	}
	pb, ok := h.playbookFromRequest(w, r, project)
	if !ok {
		return
	}

	var req model.ApplyRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	res, err := h.svc.Apply(r.Context(), project, pb, req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// writeEngineError maps service-layer errors onto the API's error taxonomy.
func (h *Handlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var gateErr *playbook.GateError
	if errors.As(err, &gateErr) {
		status := http.StatusConflict
		detail := model.ErrorDetail{
			Code:     gateErr.Code,
			Message:  gateErr.Message,
			Recovery: gateErr.Recovery,
		}
		switch gateErr.Code {
		case model.ErrCodeScopeInvalid:
			detail.Details = map[string]string{
				"expected_scope_id": gateErr.ExpectedScopeID,
				"provided_scope_id": gateErr.ProvidedScopeID,
			}
		case model.ErrCodeDraftNotFound:
			status = http.StatusNotFound
		case model.ErrCodeDraftExpired:
			status = http.StatusGone
		case model.ErrCodeDraftFailed:
			status = http.StatusUnprocessableEntity
		}
		writeErrorDetail(w, r, status, detail)
		return
	}

	var quotaErr *playbook.QuotaError
	if errors.As(err, &quotaErr) {
		writeErrorDetail(w, r, http.StatusTooManyRequests, model.ErrorDetail{
			Code:     model.ErrCodeQuotaExceeded,
			Message:  quotaErr.Status.Reason,
			Recovery: "upgrade the plan or wait for the monthly reset",
			Details:  quotaErr.Status,
		})
		return
	}

	switch {
	case errors.Is(err, rules.ErrInvalidRuleConfig):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidRuleConfig, err.Error())
	case errors.Is(err, draft.ErrMalformedKey),
		errors.Is(err, playbook.ErrKeyMismatch),
		errors.Is(err, playbook.ErrBadApplyRequest):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, apply.ErrInProgress):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "an apply run for this draft is already in progress")
	default:
		h.logger.Error("engine request failed", "error", err,
			"request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
	}
}
