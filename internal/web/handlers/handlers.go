package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/notebox/internal/auth"
	"github.com/saltyorg/notebox/internal/database"
	"github.com/saltyorg/notebox/internal/records"
	"github.com/saltyorg/notebox/internal/web/middleware"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db          *database.DB
	authService *auth.AuthService
	store       *records.Store
	validate    *validator.Validate
	isDev       bool
}

// New creates a new Handlers instance
func New(db *database.DB, authService *auth.AuthService, store *records.Store, isDev bool) *Handlers {
	return &Handlers{
		db:          db,
		authService: authService,
		store:       store,
		validate:    newValidator(),
		isDev:       isDev,
	}
}

// Health reports that the server and its database answer.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.serverError(w, r, err, "Health check failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON sends v as a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// jsonError sends a JSON error response
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// jsonSuccess sends a JSON success response
func (h *Handlers) jsonSuccess(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

// serverError reports err to the request's error sink and answers 500
func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	middleware.ReportError(r.Context(), err, msg)
	h.jsonError(w, "internal server error", http.StatusInternalServerError)
}

// applyCookieSecurity sets Secure/SameSite defaults based on environment.
func (h *Handlers) applyCookieSecurity(c *http.Cookie) {
	if h.isDev {
		if c.SameSite == 0 {
			c.SameSite = http.SameSiteLaxMode
		}
		return
	}
	c.Secure = true
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteStrictMode
	}
}
