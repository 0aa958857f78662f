package server

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/seoforge-ai/seoforge/internal/auth"
	"github.com/seoforge-ai/seoforge/internal/draft"
	"github.com/seoforge-ai/seoforge/internal/model"
	"github.com/seoforge-ai/seoforge/internal/service/playbook"
	"github.com/seoforge-ai/seoforge/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	svc                 *playbook.Service
	drafts              *draft.Store
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	apiToken            string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	PlaybookSvc         *playbook.Service
	Drafts              *draft.Store
	Logger              *slog.Logger
	Version             string
	APIToken            string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		svc:                 d.PlaybookSvc,
		drafts:              d.Drafts,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		apiToken:            d.APIToken,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleAuthToken handles POST /auth/token: exchanges the configured API
// token for a project-scoped JWT. Disabled when no API token is configured.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	if h.apiToken == "" {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "token exchange is not enabled")
		return
	}

	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.APIToken), []byte(h.apiToken)) != 1 {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}
	if req.ProjectID == uuid.Nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "project_id is required")
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleEditor
	}

	if _, err := h.db.GetProject(r.Context(), req.ProjectID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "project not found")
			return
		}
		h.logger.Error("auth token: get project", "error", err, "project_id", req.ProjectID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return
	}

	token, exp, err := h.jwtMgr.IssueToken(req.ProjectID, role)
	if err != nil {
		h.logger.Error("auth token: issue", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: exp})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	cached := 0
	if h.drafts != nil {
		cached = h.drafts.Len()
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Drafts:   cached,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

// projectFromRequest loads the caller's project from its JWT claims.
func (h *Handlers) projectFromRequest(w http.ResponseWriter, r *http.Request) (model.Project, bool) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return model.Project{}, false
	}
	project, err := h.db.GetProject(r.Context(), claims.ProjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "project no longer exists")
			return model.Project{}, false
		}
		h.logger.Error("get project", "error", err, "project_id", claims.ProjectID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return model.Project{}, false
	}
	return project, true
}

// playbookFromRequest loads the playbook addressed by the {playbook_id}
// path segment, scoped to the caller's project.
func (h *Handlers) playbookFromRequest(w http.ResponseWriter, r *http.Request, project model.Project) (model.Playbook, bool) {
	id, err := uuid.Parse(r.PathValue("playbook_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid playbook id")
		return model.Playbook{}, false
	}
	pb, err := h.db.GetPlaybook(r.Context(), project.ID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "playbook not found")
			return model.Playbook{}, false
		}
		h.logger.Error("get playbook", "error", err, "playbook_id", id)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return model.Playbook{}, false
	}
	return pb, true
}

// handleDecodeError maps request body decode failures to 400 responses.
func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
}
