package timetracking

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ahmedmhosni/roastify/internal/auth"
	"github.com/ahmedmhosni/roastify/internal/domain"
)

// Handler exposes the time-tracking endpoints under /time-tracking.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service. Requests must carry an authenticated principal.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, "time tracking unavailable", http.StatusServiceUnavailable)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case strings.HasSuffix(path, "/time-tracking"):
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleList(w, r, principal)
	case strings.HasSuffix(path, "/time-tracking/start"):
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleStart(w, r, principal)
	case strings.Contains(path, "/time-tracking/stop/"):
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleStop(w, r, principal, path[strings.LastIndex(path, "/")+1:])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	entries, err := h.service.List(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	entry, err := h.service.Start(r.Context(), p.UserID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request, p auth.Principal, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid time entry id", http.StatusBadRequest)
		return
	}

	entry, err := h.service.Stop(r.Context(), p.UserID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEntryNotFound):
		http.Error(w, domain.ErrEntryNotFound.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrEntryNotRunning):
		http.Error(w, domain.ErrEntryNotRunning.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.service.log.Error("[TIME] request failed: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
