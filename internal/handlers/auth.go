package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mateit-cloudware/mate-sentinel/internal/auth"
	"github.com/mateit-cloudware/mate-sentinel/internal/security"
	pkghttp "github.com/mateit-cloudware/mate-sentinel/pkg/http"
)

// CredentialVerifier checks a login credential pair. Implementations must be
// constant-time with respect to which part of the credential was wrong.
type CredentialVerifier interface {
	Verify(email, password string) (userID, role string, ok bool)
}

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	engine      *security.Engine
	verifier    CredentialVerifier
	tokens      *auth.TokenManager
	timingDelay *auth.TimingDelay
	ipConfig    *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	engine *security.Engine,
	verifier CredentialVerifier,
	tokens *auth.TokenManager,
	timingDelay *auth.TimingDelay,
	ipConfig *pkghttp.IPConfig,
) *AuthHandler {
	return &AuthHandler{
		engine:      engine,
		verifier:    verifier,
		tokens:      tokens,
		timingDelay: timingDelay,
		ipConfig:    ipConfig,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// LockedResponse tells the client when a locked account frees up.
type LockedResponse struct {
	Error       string     `json:"error"`
	Message     string     `json:"message"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// Login authenticates a user, guarded by the brute force detector. Every
// attempt is recorded so lockout state stays accurate even for unknown
// accounts.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	check := h.engine.CheckLoginAllowed(req.Email, ipAddress)
	if !check.Allowed {
		h.timingDelay.WaitFrom(start, false)
		if check.Reason == "ip_blocked" {
			pkghttp.WriteForbidden(w, "Access denied")
			return
		}
		pkghttp.WriteJSON(w, http.StatusTooManyRequests, LockedResponse{
			Error:       "ACCOUNT_LOCKED",
			Message:     "Too many failed login attempts. Please try again later.",
			LockedUntil: check.LockedUntil,
		})
		return
	}

	userID, role, ok := h.verifier.Verify(req.Email, req.Password)
	h.engine.RecordLoginAttempt(req.Email, ipAddress, ok)

	if !ok {
		h.timingDelay.WaitFrom(start, false)
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	token, err := h.tokens.GenerateAccessToken(userID, req.Email, role)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	h.timingDelay.WaitFrom(start, true)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
	})
}
