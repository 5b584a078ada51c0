package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pendek-app/pendek-auth/internal/http/response"
	"github.com/pendek-app/pendek-auth/internal/observability"
	"github.com/pendek-app/pendek-auth/internal/security"
	"github.com/pendek-app/pendek-auth/internal/service"
)

type contextKey string

const identityContextKey contextKey = "identity"

// ClaimedUserHeader carries the caller's claimed identity. It must match the
// access token's subject; a valid token alone is not sufficient.
const ClaimedUserHeader = "X-Control-User"

type Identity struct {
	Subject string
	Name    string
}

// credentials is the outcome of the extraction step, resolved before any
// cryptographic work happens.
type credentials struct {
	token          string
	source         string
	claimedSubject string
}

func extractCredentials(r *http.Request) (credentials, bool) {
	creds := credentials{claimedSubject: r.Header.Get(ClaimedUserHeader)}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		creds.token = strings.TrimSpace(auth[7:])
		creds.source = "bearer"
	} else if c := security.GetCookie(r, "access_token"); c != "" {
		creds.token = c
		creds.source = "cookie"
	}

	if creds.token == "" || creds.claimedSubject == "" {
		return credentials{}, false
	}
	return creds, true
}

// Authenticate guards protected routes: bearer header first, access_token
// cookie second, claimed-identity header required, then a single verify step.
func Authenticate(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := extractCredentials(r)
			if !ok {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			claims, err := auth.Verify(creds.token, creds.claimedSubject)
			if err != nil {
				code, msg := classifyVerifyError(err)
				observability.RecordAccessTokenValidation(r.Context(), strings.ToLower(code), creds.source)
				response.Error(w, r, http.StatusUnauthorized, code, msg)
				return
			}

			observability.RecordAccessTokenValidation(r.Context(), "valid", creds.source)
			ctx := context.WithValue(r.Context(), identityContextKey, Identity{
				Subject: claims.Subject,
				Name:    claims.Name,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func classifyVerifyError(err error) (code, msg string) {
	switch {
	case errors.Is(err, security.ErrTokenExpired):
		return "TOKEN_EXPIRED", "token has expired"
	case errors.Is(err, service.ErrUserTokenMismatch):
		return "INVALID_USER_TOKEN", "invalid token user"
	default:
		return "INVALID_TOKEN", "token is invalid"
	}
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}
