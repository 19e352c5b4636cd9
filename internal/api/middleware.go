/**
 * @description
 * This file contains custom middleware for the HTTP router: session token
 * authentication and role gating. Every rejected request is also written to
 * the audit log so failed access attempts are visible there.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: Session token parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/app"
	"github.com/volapay/remit-service/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"
)

// AuthMiddleware validates the Bearer session token and stores the caller's
// identity and role on the request context.
func AuthMiddleware(secret string, audit *app.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				auditAuthFailure(r, audit, "missing authorization header")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				auditAuthFailure(r, audit, "malformed authorization header")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				auditAuthFailure(r, audit, "invalid token")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				auditAuthFailure(r, audit, "invalid token claims")
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			sub, ok := claims["sub"].(string)
			if !ok {
				auditAuthFailure(r, audit, "subject claim missing")
				http.Error(w, "User ID not found in token", http.StatusUnauthorized)
				return
			}
			userID, err := uuid.Parse(sub)
			if err != nil {
				auditAuthFailure(r, audit, "subject claim not a uuid")
				http.Error(w, "Invalid user ID in token", http.StatusUnauthorized)
				return
			}

			role, _ := claims["role"].(string)
			if role == "" {
				role = string(domain.RoleClient)
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, roleKey, domain.Role(role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route group to the given roles. The caller must already
// have passed AuthMiddleware.
func RequireRole(audit *app.AuditLogger, roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetRole(r.Context())
			if !ok {
				auditAuthFailure(r, audit, "role missing from context")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			if _, ok := allowed[role]; !ok {
				auditAuthFailure(r, audit, "insufficient role: "+string(role))
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID retrieves the authenticated user's ID from the request context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// GetRole retrieves the authenticated user's role from the request context.
func GetRole(ctx context.Context) (domain.Role, bool) {
	role, ok := ctx.Value(roleKey).(domain.Role)
	return role, ok
}

func auditAuthFailure(r *http.Request, audit *app.AuditLogger, reason string) {
	if audit == nil {
		return
	}
	entry := domain.AuditEntry{
		Action:     domain.AuditAuthFailure,
		Resource:   "endpoint",
		ResourceID: r.URL.Path,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
		Metadata:   map[string]any{"reason": reason, "method": r.Method},
	}
	if id, ok := GetUserID(r.Context()); ok {
		entry.UserID = &id
	}
	audit.Log(r.Context(), entry)
}

// clientIP prefers the upstream proxy header when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}
