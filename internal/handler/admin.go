package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const adminUser = "admin"

func (h *Handler) adminRoutes(r chi.Router) {
	r.Use(h.requireAdmin)
	r.Get("/sessions", h.handleAdminSessions)
	r.Get("/sessions/{sessionID}", h.handleAdminSession)
	r.Get("/sessions/{sessionID}/report", h.handleAdminReport)
	r.Delete("/sessions/{sessionID}", h.handleAdminDelete)
	r.Get("/export", h.handleAdminExport)
}

// requireAdmin checks HTTP basic credentials against the stored bcrypt
// hash. Without a stored hash the admin routes stay closed.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(adminUser)) != 1 {
			h.unauthorized(w, r)
			return
		}
		hash, err := h.store.AdminPasswordHash()
		if err != nil {
			slog.Error("failed to read admin hash", "error", err)
			writeCode(w, r, http.StatusInternalServerError, CodeInternal, "ErrUpstream")
			return
		}
		if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			h.unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="docexam admin", charset="UTF-8"`)
	writeCode(w, r, http.StatusUnauthorized, CodeUnauthorized, "ErrUnauthorized")
}

func (h *Handler) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(sessions), "sessions": sessions})
}

func (h *Handler) handleAdminSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.GetResult(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAdminReport(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.GetResult(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeReport(w, r, res)
}

func (h *Handler) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.store.DeleteResult(id); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("deleted stored session", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportAllSessions(h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}
