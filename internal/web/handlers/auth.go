package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/logger"
	"github.com/kozaktomas/checkpoint/internal/section"
	"github.com/kozaktomas/checkpoint/internal/web/middleware"
)

// AuthHandler handles staff authentication endpoints
type AuthHandler struct {
	staff          database.StaffReader
	catalog        *section.Catalog
	sessionManager *middleware.SessionManager
	log            *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	staff database.StaffReader, catalog *section.Catalog, sm *middleware.SessionManager, log *logger.Logger,
) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandler{
		staff:          staff,
		catalog:        catalog,
		sessionManager: sm,
		log:            log,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Section  string `json:"section"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Section   string `json:"section,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// dummyHash keeps the response time of unknown usernames close to that of wrong passwords.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("checkpoint-dummy-password"), bcrypt.DefaultCost)
	return h
})

// Login verifies staff credentials for one section and opens a session bound to it.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Username == "" || req.Password == "" || req.Section == "" {
		respondError(w, http.StatusBadRequest, "username, password and section are required")
		return
	}
	if _, err := h.catalog.Lookup(req.Section); err != nil {
		respondError(w, http.StatusBadRequest, "unknown section")
		return
	}

	member, err := h.staff.GetStaff(r.Context(), req.Section, req.Username)
	if err != nil {
		h.log.Error("staff lookup failed", "section", req.Section, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to verify credentials")
		return
	}

	hash := dummyHash()
	if member != nil {
		hash = []byte(member.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil || member == nil {
		h.log.Info("login rejected", "section", req.Section, "username", sanitizeForLog(req.Username))
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Error:   "invalid credentials",
		})
		return
	}

	session, err := h.sessionManager.CreateSession(r.Context(), member.ID, member.Username, member.Section)
	if err != nil {
		h.log.Error("session create failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessionManager.SetSessionCookie(w, r, session)
	h.log.Info("staff logged in", "section", member.Section, "staff_id", member.ID)

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		SessionID: session.ID,
		Username:  session.Username,
		Section:   session.Section,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout handles staff logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(session.ID)
	}
	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	Section       string `json:"section,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status reports whether the request carries a valid session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		Username:      session.Username,
		Section:       session.Section,
		ExpiresAt:     session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
