package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/pendek-app/pendek-auth/internal/http/middleware"
	"github.com/pendek-app/pendek-auth/internal/http/response"
	"github.com/pendek-app/pendek-auth/internal/observability"
	"github.com/pendek-app/pendek-auth/internal/security"
	"github.com/pendek-app/pendek-auth/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return
	}
	if req.Email == "" || len(req.Email) > 100 || req.Password == "" || len(req.Password) > 255 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email is not valid")
		return
	}

	result, err := h.auth.Login(req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredential) {
			observability.Audit(r, "auth.login.denied", "email", req.Email)
			response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIAL", "credential is invalid")
			return
		}
		internalError(w, r, err)
		return
	}
	observability.Audit(r, "auth.login.succeeded", "email", req.Email)
	response.JSON(w, r, http.StatusOK, result)
}

// Verify is the standalone check endpoint: same extraction and verification
// rules as the route guard, but it reports the outcome instead of gating a
// downstream handler.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	claimed := r.Header.Get(middleware.ClaimedUserHeader)
	if !strings.HasPrefix(strings.ToLower(auth), "bearer ") || claimed == "" {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	token := strings.TrimSpace(auth[7:])

	if _, err := h.auth.Verify(token, claimed); err != nil {
		code, msg := verifyErrorCode(err)
		response.Error(w, r, http.StatusUnauthorized, code, msg)
		return
	}
	response.Message(w, r, http.StatusOK, "token is valid")
}

func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token is required")
		return
	}

	result, err := h.auth.Refresh(req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			response.Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token is invalid or expired")
			return
		}
		internalError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token is required")
		return
	}

	if err := h.auth.RevokeToken(req.RefreshToken); err != nil {
		if errors.Is(err, service.ErrTokenNotFound) {
			response.Error(w, r, http.StatusNotFound, "TOKEN_NOT_FOUND", "refresh token not found")
			return
		}
		internalError(w, r, err)
		return
	}
	observability.Audit(r, "auth.token.revoked")
	response.Message(w, r, http.StatusOK, "token revoked successfully")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}
	userID, err := h.auth.ParseUserID(identity.Subject)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "token is invalid")
		return
	}

	if err := h.auth.Logout(userID); err != nil {
		internalError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout", "user_id", userID)
	response.Message(w, r, http.StatusOK, "logged out successfully")
}

func verifyErrorCode(err error) (code, msg string) {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return "TOKEN_EXPIRED", "token has been expired"
	case errors.Is(err, service.ErrUserTokenMismatch):
		return "INVALID_USER_TOKEN", "invalid token user"
	default:
		return "INVALID_TOKEN", "token is invalid"
	}
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	// Infrastructure faults are not classified here; the edge reports a
	// generic failure and the fault goes to monitoring.
	observability.Audit(r, "auth.internal_error", "error", err.Error())
	response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
