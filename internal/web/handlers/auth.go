package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/notebox/internal/auth"
	"github.com/saltyorg/notebox/internal/web/middleware"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,min=2,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Register creates an account and logs it in
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.bind(w, r, &req) {
		return
	}

	user, err := h.authService.CreateUser(req.Email, req.Name, req.Password)
	if errors.Is(err, auth.ErrEmailTaken) {
		h.jsonError(w, "email already registered", http.StatusConflict)
		return
	}
	if err != nil {
		h.serverError(w, r, err, "Failed to create user")
		return
	}

	if !h.startSession(w, r, user) {
		return
	}

	log.Info().Str("email", user.Email).Msg("User registered")
	h.writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login handles credential submission
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.bind(w, r, &req) {
		return
	}

	user, err := h.authService.Authenticate(req.Email, req.Password)
	if err != nil {
		h.serverError(w, r, err, "Authentication error")
		return
	}
	if user == nil {
		h.jsonError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}

	log.Info().Str("email", user.Email).Msg("User logged in")
	h.writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout handles user logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
		if err := h.authService.DeleteSession(cookie.Value); err != nil {
			log.Debug().Err(err).Msg("Failed to delete session during logout")
		}
	}

	cookie := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
	h.applyCookieSecurity(cookie)
	http.SetCookie(w, cookie)

	h.jsonSuccess(w, "logged out")
}

// Me returns the logged in user
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		h.jsonError(w, "login required", http.StatusUnauthorized)
		return
	}
	h.writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ChangePassword replaces the logged in user's password after checking the
// current one
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		h.jsonError(w, "login required", http.StatusUnauthorized)
		return
	}

	var req passwordRequest
	if !h.bind(w, r, &req) {
		return
	}

	ok, err := h.authService.Authenticate(user.Email, req.CurrentPassword)
	if err != nil {
		h.serverError(w, r, err, "Authentication error")
		return
	}
	if ok == nil {
		h.jsonError(w, "current password is incorrect", http.StatusForbidden)
		return
	}

	if err := h.authService.UpdatePassword(user.ID, req.NewPassword); err != nil {
		h.serverError(w, r, err, "Failed to update password")
		return
	}

	log.Info().Str("email", user.Email).Msg("Password changed")
	h.jsonSuccess(w, "password changed")
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, user *auth.User) bool {
	session, err := h.authService.CreateSession(user.ID)
	if err != nil {
		h.serverError(w, r, err, "Failed to create session")
		return false
	}

	cookie := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
	}
	h.applyCookieSecurity(cookie)
	http.SetCookie(w, cookie)
	return true
}
