package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/application"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/contextkeys"
	"gitlab.com/timkado/api/daisi-panel-service/pkg/crypto"
)

const (
	apiKeyHeaderName = "X-API-Key"
	apiKeyQueryParam = "x-api-key"
	tokenQueryParam  = "token"
	bearerPrefix     = "Bearer "
)

// APIKeyAuthMiddleware guards service-to-service endpoints with the shared
// secret, read from the X-API-Key header or the x-api-key query parameter.
func APIKeyAuthMiddleware(cfgProvider config.Provider, logger domain.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(apiKeyHeaderName)
			if apiKey == "" {
				apiKey = r.URL.Query().Get(apiKeyQueryParam)
			}

			cfg := cfgProvider.Get()
			if cfg == nil || cfg.Auth.SecretToken == "" {
				logger.Error(r.Context(), "API key authentication failed: SecretToken not configured", "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrInternal, "Server configuration error", "API authentication cannot be performed.").WriteJSON(w, http.StatusInternalServerError)
				return
			}

			if apiKey == "" {
				logger.Warn(r.Context(), "API key authentication failed: Key missing", "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrInvalidAPIKey, "API key is required", "Provide API key in X-API-Key header or x-api-key query parameter.").WriteJSON(w, http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(cfg.Auth.SecretToken)) != 1 {
				logger.Warn(r.Context(), "API key authentication failed: Invalid key", "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrInvalidAPIKey, "Invalid API key", "The provided API key is not valid.").WriteJSON(w, http.StatusUnauthorized)
				return
			}

			logger.Debug(r.Context(), "API key authentication successful", "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// sessionToken reads the token from "Authorization: Bearer" or the token query parameter.
// Browsers cannot set headers on WebSocket upgrades, hence the query fallback.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return r.URL.Query().Get(tokenQueryParam)
}

// SessionTokenAuthMiddleware validates the operator session token and stores
// the operator on the request context.
func SessionTokenAuthMiddleware(authService *application.AuthService, logger domain.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				logger.Warn(r.Context(), "Session authentication failed: token missing", "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrInvalidToken, "Session token is required", "Provide a Bearer token or 'token' query parameter.").WriteJSON(w, http.StatusForbidden)
				return
			}

			user, err := authService.ValidateSessionToken(r.Context(), token)
			if err != nil {
				errCode := domain.ErrInvalidToken
				errMsg := "Session token is invalid or malformed."
				errDetails := "Token format or content error."
				httpStatus := http.StatusForbidden

				switch {
				case errors.Is(err, domain.ErrSessionExpired):
					errMsg = "Session token has expired."
					errDetails = ""
				case errors.Is(err, crypto.ErrTokenDecryptionFailed),
					errors.Is(err, application.ErrTokenPayloadInvalid),
					errors.Is(err, crypto.ErrInvalidTokenFormat),
					errors.Is(err, crypto.ErrCiphertextTooShort):
				case errors.Is(err, crypto.ErrInvalidAESKeySize), errors.Is(err, application.ErrAuthNotConfigured):
					errCode = domain.ErrInternal
					errMsg = "Server configuration error processing token."
					errDetails = "Internal server error."
					httpStatus = http.StatusInternalServerError
				default:
					logger.Error(r.Context(), "Unexpected error during session validation", "path", r.URL.Path, "error", err.Error())
					errCode = domain.ErrInternal
					errMsg = "An unexpected error occurred."
					errDetails = "Internal server error."
					httpStatus = http.StatusInternalServerError
				}
				domain.NewErrorResponse(errCode, errMsg, errDetails).WriteJSON(w, httpStatus)
				return
			}

			ctx := context.WithValue(r.Context(), contextkeys.CurrentUserKey, user)
			ctx = context.WithValue(ctx, contextkeys.UserIDKey, user.ID)
			logger.Debug(ctx, "Session authentication successful", "path", r.URL.Path, "table", user.Table)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
