package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/strideapp/stride/internal/database"
	"github.com/strideapp/stride/internal/models"
	"github.com/strideapp/stride/internal/request"
	"github.com/strideapp/stride/internal/services/oidc"
	"go.uber.org/zap"
)

// Auth creates authentication middleware that validates JWT bearer tokens
// against the configured OIDC provider and attaches the user to the request
// context. Users are created on first sign-in.
func Auth(users *database.UserRepository, oidcProvider *oidc.Provider, jwksManager *oidc.JWKSManager, providerName string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, http.StatusUnauthorized, "Missing Authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}
			tokenString := parts[1]

			ctx := r.Context()
			oidcConfig, err := oidcProvider.GetConfig(ctx, providerName)
			if err != nil {
				logger.Error("oidc_config_lookup_failed", zap.Error(err), zap.String("provider", providerName))
				respondError(w, http.StatusInternalServerError, "Failed to get OIDC configuration")
				return
			}
			if oidcConfig.JWKSUrl == nil {
				respondError(w, http.StatusInternalServerError, "JWKS URL not configured")
				return
			}

			verifier := oidc.NewVerifier(jwksManager, oidcConfig.Issuer)
			claims, err := verifier.Verify(ctx, tokenString, *oidcConfig.JWKSUrl)
			if err != nil {
				logger.Info("token_verification_failed",
					zap.Error(err),
					zap.String("issuer", oidcConfig.Issuer),
				)
				respondError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			user, err := users.GetByProviderID(ctx, claims.Sub)
			switch {
			case errors.Is(err, database.ErrUserNotFound):
				user = &models.User{
					ID:            uuid.New(),
					Email:         claims.Email,
					ProviderID:    &claims.Sub,
					Name:          &claims.Name,
					EmailVerified: true,
				}
				if err := users.Create(ctx, user); err != nil {
					logger.Error("user_create_failed", zap.Error(err))
					respondError(w, http.StatusInternalServerError, "Failed to create user")
					return
				}
			case err != nil:
				logger.Error("user_lookup_failed", zap.Error(err))
				respondError(w, http.StatusInternalServerError, "Database error")
				return
			default:
				// Keep email and name in sync with the identity provider
				updateNeeded := false
				if user.Email != claims.Email {
					user.Email = claims.Email
					updateNeeded = true
				}
				if claims.Name != "" && (user.Name == nil || *user.Name != claims.Name) {
					name := claims.Name
					user.Name = &name
					updateNeeded = true
				}
				if updateNeeded {
					if err := users.Update(ctx, user); err != nil {
						logger.Warn("user_sync_failed", zap.Error(err), zap.String("user_id", user.ID.String()))
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success": false,
		"error":   message,
	}
	_ = json.NewEncoder(w).Encode(response)
}
