package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/salescoach/advisor/internal/advisor"
	"github.com/salescoach/advisor/internal/domain"
	"github.com/salescoach/advisor/internal/search"
	"github.com/salescoach/advisor/internal/storage"
	"github.com/salescoach/advisor/internal/usage"
)

// Handlers binds the advice services, the search enhancer, the guarded
// session gateway, and the usage meter to the HTTP surface.
type Handlers struct {
	advisor  *advisor.Service
	search   *search.Enhancer
	sessions storage.Gateway
	meter    *usage.Meter
}

// NewHandlers wires the HTTP layer. The gateway must already be wrapped by
// the tenant guard.
func NewHandlers(svc *advisor.Service, enhancer *search.Enhancer, sessions storage.Gateway, meter *usage.Meter) *Handlers {
	return &Handlers{advisor: svc, search: enhancer, sessions: sessions, meter: meter}
}

// Routes mounts every endpoint under /v1.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/advice/{kind}", h.handleAdvice)

		r.Route("/search", func(r chi.Router) {
			r.Post("/", h.handleEnhancedSearch)
			r.Post("/optimize", h.handleOptimizeQuery)
			r.Post("/assess", h.handleAssessQuality)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.handleSaveSession)
			r.Get("/", h.handleListSessions)
			r.Get("/export", h.handleExportSessions)
			r.Get("/{sessionID}", h.handleGetSession)
			r.Delete("/{sessionID}", h.handleDeleteSession)
			r.Post("/{sessionID}/pin", h.handlePinSession)
			r.Post("/{sessionID}/tags", h.handleUpdateTags)
		})

		r.Get("/usage", h.handleUsage)
	})
}

func tenantFromRequest(r *http.Request) (string, error) {
	tenantID := GetTenantID(r.Context())
	if tenantID == "" {
		return "", domain.ErrTenantRequired("missing tenant header")
	}
	return tenantID, nil
}

func callerFromRequest(r *http.Request) advisor.Caller {
	return advisor.Caller{
		UserID: r.Header.Get("X-User-ID"),
		TeamID: r.Header.Get("X-Team-ID"),
	}
}

func (h *Handlers) handleAdvice(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	kind, err := advisor.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		renderError(w, r, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		renderError(w, r, domain.ErrPromptRejected("unreadable request body"))
		return
	}

	advice, err := h.advisor.Generate(r.Context(), tenantID, callerFromRequest(r), kind, body)
	if err != nil {
		renderError(w, r, err)
		return
	}

	AddLogField(r.Context(), "advice_kind", string(kind))
	AddLogField(r.Context(), "session_id", advice.SessionID)
	renderJSON(w, http.StatusOK, advice)
}

func (h *Handlers) handleOptimizeQuery(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var in search.OptimizeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		renderError(w, r, domain.ErrPromptRejected("malformed optimize body: %v", err))
		return
	}

	opt, err := h.search.OptimizeQuery(r.Context(), tenantID, callerFromRequest(r).UserID, in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, opt)
}

func (h *Handlers) handleAssessQuality(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var body struct {
		Query   string          `json:"query"`
		Results []search.Result `json:"results"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderError(w, r, domain.ErrPromptRejected("malformed assess body: %v", err))
		return
	}

	assessment, err := h.search.AssessQuality(r.Context(), tenantID, callerFromRequest(r).UserID, body.Query, body.Results)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, assessment)
}

func (h *Handlers) handleEnhancedSearch(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var in search.EnhancedInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		renderError(w, r, domain.ErrPromptRejected("malformed search body: %v", err))
		return
	}

	enhancement, err := h.search.EnhancedSearch(r.Context(), tenantID, callerFromRequest(r).UserID, in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, enhancement)
}

func (h *Handlers) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var session domain.Session
	if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
		renderError(w, r, domain.ErrPromptRejected("malformed session body: %v", err))
		return
	}

	id, err := h.sessions.Save(r.Context(), tenantID, &session)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (h *Handlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := domain.ListFilter{
		Tag:        q.Get("tag"),
		PinnedOnly: q.Get("pinned") == "true",
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	sessions, err := h.sessions.List(r.Context(), tenantID, filter)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*domain.Session{}
	}
	renderJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	session, err := h.sessions.Get(r.Context(), tenantID, chi.URLParam(r, "sessionID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, session)
}

func (h *Handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if err := h.sessions.Delete(r.Context(), tenantID, chi.URLParam(r, "sessionID")); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handlePinSession(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var body struct {
		Pinned bool `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderError(w, r, domain.ErrPromptRejected("malformed pin body: %v", err))
		return
	}

	if err := h.sessions.SetPinned(r.Context(), tenantID, chi.URLParam(r, "sessionID"), body.Pinned); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleUpdateTags(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var body struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderError(w, r, domain.ErrPromptRejected("malformed tags body: %v", err))
		return
	}

	if err := h.sessions.UpdateTags(r.Context(), tenantID, chi.URLParam(r, "sessionID"), body.Tags); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleExportSessions(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(domain.ExportJSON)
	}
	format, err := domain.ParseExportFormat(raw)
	if err != nil {
		renderError(w, r, domain.ErrPromptRejected("unsupported export format %q", raw))
		return
	}

	data, err := h.sessions.Export(r.Context(), tenantID, format)
	if err != nil {
		renderError(w, r, err)
		return
	}

	switch format {
	case domain.ExportCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="sessions.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handlers) handleUsage(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	userID := r.URL.Query().Get("user_id")
	renderJSON(w, http.StatusOK, map[string]any{
		"tenant_id":    tenantID,
		"user_id":      userID,
		"total_tokens": h.meter.Total(tenantID, userID),
		"token_limit":  h.meter.Limit(),
	})
}
