package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/practiceperfect/api/internal/httputil"
	"github.com/practiceperfect/api/internal/logging"
	"github.com/practiceperfect/api/internal/user"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service         *Service
	rateLimiter     RateLimiter
	logger          *logging.Logger
	isProduction    bool
	sessionDuration time.Duration
}

func NewHandler(service *Service, rateLimiter RateLimiter, logger *logging.Logger, isProduction bool, sessionDuration time.Duration) *Handler {
	return &Handler{
		service:         service,
		rateLimiter:     rateLimiter,
		logger:          logger,
		isProduction:    isProduction,
		sessionDuration: sessionDuration,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email string `json:"email"`
}

// VerifyCodeRequest represents the code verification request body
type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// UpdateProfileRequest represents a profile update
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name"`
}

// SessionResponse is returned after a successful verification. The token is
// echoed in the body for clients that store it for the Authorization header
// instead of relying on the cookie.
type SessionResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

// MeResponse reports the current identity; User is null when anonymous
type MeResponse struct {
	User *UserResponse `json:"user"`
}

// Login handles a passwordless login request
// @Summary      Request a login email
// @Description  Send a magic link and one-time code to the given email. Responds identically whether or not an account exists.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Email address"
// @Success      200 {object} map[string]string
// @Failure      400 {object} ErrorResponse "Invalid request or email"
// @Failure      429 {object} ErrorResponse "Too many requests"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	// Rate limit by IP
	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip, "login")
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for login", "ip", ip)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	// Normalize once so the limiter keys and the service agree on the email
	email := strings.ToLower(strings.TrimSpace(req.Email))
	logger = logger.WithFields(map[string]any{"email": email})

	// Check email cooldown before doing any work
	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
	} else if onCooldown {
		logger.Warn("email on cooldown")
		respondError(w, "please wait before requesting another login email", httputil.CodeCooldownActive, http.StatusTooManyRequests)
		return
	}

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip, "login"); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	if err := h.service.RequestLogin(r.Context(), email); err != nil {
		if errors.Is(err, ErrEmailRequired) {
			logger.Warn("login request failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
			return
		}
		if errors.Is(err, ErrInvalidEmailFormat) {
			logger.Warn("login request failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodeInvalidEmailFormat, http.StatusBadRequest)
			return
		}
		logger.Error("login request failed: internal error", "error", err.Error())
		respondError(w, "failed to process login request", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	if err := h.rateLimiter.SetEmailCooldown(r.Context(), email); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}

	logger.Info("login email requested")

	// Same response whether or not the account exists
	respondJSON(w, map[string]string{
		"message": "If the email address is valid, a login link is on its way.",
	}, http.StatusOK)
}

// VerifyToken handles magic-link click-through
// @Summary      Verify a magic-link token
// @Description  Consume a magic-link token, create the account on first login, and establish a session.
// @Tags         auth
// @Produce      json
// @Param        token query string true "Magic-link token"
// @Success      200 {object} SessionResponse
// @Failure      401 {object} ErrorResponse "Invalid or expired token"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/verify [get]
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	token := r.URL.Query().Get("token")

	u, sessionToken, err := h.service.VerifyLoginToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			logger.Warn("magic-link verification failed")
			respondError(w, "invalid or expired login link", httputil.CodeInvalidOrExpired, http.StatusUnauthorized)
			return
		}
		logger.Error("magic-link verification failed: internal error", "error", err.Error())
		respondError(w, "failed to verify login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("user logged in via magic link", "user_id", u.ID)

	SetSessionCookie(w, sessionToken, h.isProduction, h.sessionDuration)
	respondJSON(w, SessionResponse{User: toUserResponse(u), Token: sessionToken}, http.StatusOK)
}

// VerifyCode handles manual code entry
// @Summary      Verify a one-time code
// @Description  Consume a one-time code for the email, create the account on first login, and establish a session.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body VerifyCodeRequest true "Email and code"
// @Success      200 {object} SessionResponse
// @Failure      400 {object} ErrorResponse "Invalid request body"
// @Failure      401 {object} ErrorResponse "Invalid or expired code"
// @Failure      429 {object} ErrorResponse "Too many attempts"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /auth/verify-code [post]
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip, "verify")
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for verify", "ip", ip)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return
	}

	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid verify-code request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	logger = logger.WithFields(map[string]any{"email": email})

	// Attempt counter caps guessing of the short numeric code
	blocked, err := h.rateLimiter.CheckEmailAttempts(r.Context(), email)
	if err != nil {
		logger.Error("failed to check email attempts", "error", err.Error())
	} else if blocked {
		logger.Warn("verification attempts exhausted")
		respondError(w, "too many attempts, please request a new code", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return
	}

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip, "verify"); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	if err := h.rateLimiter.RecordEmailAttempt(r.Context(), email); err != nil {
		logger.Error("failed to record email attempt", "error", err.Error())
	}

	u, sessionToken, err := h.service.VerifyLoginCode(r.Context(), email, strings.TrimSpace(req.Code))
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			logger.Warn("code verification failed")
			respondError(w, "invalid or expired login code", httputil.CodeInvalidOrExpired, http.StatusUnauthorized)
			return
		}
		logger.Error("code verification failed: internal error", "error", err.Error())
		respondError(w, "failed to verify login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	if err := h.rateLimiter.ClearEmailAttempts(r.Context(), email); err != nil {
		logger.Error("failed to clear email attempts", "error", err.Error())
	}

	logger.Info("user logged in via code", "user_id", u.ID)

	SetSessionCookie(w, sessionToken, h.isProduction, h.sessionDuration)
	respondJSON(w, SessionResponse{User: toUserResponse(u), Token: sessionToken}, http.StatusOK)
}

// Logout handles user logout
// @Summary      User logout
// @Description  Clear the session cookie. Issued tokens stay valid until expiry; there is no server-side revocation.
// @Tags         auth
// @Produce      json
// @Success      200 {object} map[string]bool
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	ClearSessionCookie(w, h.isProduction)

	logger.Info("user logged out")

	respondJSON(w, map[string]bool{"success": true}, http.StatusOK)
}

// Me reports the current identity
// @Summary      Current user
// @Description  Return the authenticated user, or user null when anonymous. Never fails for a missing credential.
// @Tags         auth
// @Produce      json
// @Success      200 {object} MeResponse
// @Router       /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondJSON(w, MeResponse{User: nil}, http.StatusOK)
		return
	}

	u, err := h.service.Me(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Valid credential for an account that no longer exists
			respondJSON(w, MeResponse{User: nil}, http.StatusOK)
			return
		}
		logger.Error("failed to load current user", "error", err.Error())
		respondError(w, "failed to load user", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	resp := toUserResponse(u)
	respondJSON(w, MeResponse{User: &resp}, http.StatusOK)
}

// UpdateProfile changes the display name of the authenticated user
// @Summary      Update profile
// @Description  Update the display name of the authenticated user.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body UpdateProfileRequest true "New display name"
// @Security     BearerAuth
// @Success      200 {object} UserResponse
// @Failure      400 {object} ErrorResponse "Invalid request or display name"
// @Failure      401 {object} ErrorResponse "Unauthenticated"
// @Failure      500 {object} ErrorResponse "Internal server error"
// @Router       /me [patch]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid profile update body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	u, err := h.service.UpdateDisplayName(r.Context(), userID, req.DisplayName)
	if err != nil {
		if errors.Is(err, ErrDisplayNameRequired) || errors.Is(err, ErrDisplayNameTooLong) {
			logger.Warn("profile update failed: validation error", "error", err.Error())
			respondError(w, err.Error(), httputil.CodeInvalidRequestBody, http.StatusBadRequest)
			return
		}
		logger.Error("profile update failed: internal error", "error", err.Error())
		respondError(w, "failed to update profile", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("profile updated", "user_id", u.ID)

	respondJSON(w, toUserResponse(u), http.StatusOK)
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr format is "IP:port", extract just the IP
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
