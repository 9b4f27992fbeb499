package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/AaronLay10/SentientRenderer/internal/config"
	"github.com/AaronLay10/SentientRenderer/internal/events"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// TokenTTL is the lifetime of tokens issued by /auth/token.
const TokenTTL = time.Hour

var ErrTokenInvalid = errors.New("invalid token")

// authConfig holds the resolved credentials.
type authConfig struct {
	adminUser    string
	adminPass    string
	operatorUser string
	operatorPass string
	jwtSecret    []byte
	enabled      bool
}

var auth *authConfig

// InitAuth installs the API credentials. Authentication is enabled only when
// admin credentials are set; without them every request has full access.
func InitAuth(creds *config.Credentials) {
	if creds == nil {
		creds = &config.Credentials{}
	}
	auth = &authConfig{
		adminUser:    creds.AdminUser,
		adminPass:    creds.AdminPass,
		operatorUser: creds.OperatorUser,
		operatorPass: creds.OperatorPass,
		enabled:      creds.AdminUser != "" && creds.AdminPass != "",
	}
	if creds.JWTSecret != "" {
		auth.jwtSecret = []byte(creds.JWTSecret)
	}
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// Claims are the claims of an API token.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// IssueToken signs a token for user with role.
func IssueToken(user string, role Role, now time.Time) (string, error) {
	if auth == nil || len(auth.jwtSecret) == 0 {
		return "", errors.New("token signing not configured")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(auth.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	if auth == nil || len(auth.jwtSecret) == 0 {
		return nil, ErrTokenInvalid
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return auth.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Role != RoleAdmin && claims.Role != RoleOperator {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}

// authenticateBasic checks basic auth credentials and returns the user and role.
func authenticateBasic(r *http.Request) (string, Role) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return "", ""
	}
	if auth.adminUser != "" && auth.adminPass != "" {
		if secureCompare(user, auth.adminUser) && secureCompare(pass, auth.adminPass) {
			return user, RoleAdmin
		}
	}
	if auth.operatorUser != "" && auth.operatorPass != "" {
		if secureCompare(user, auth.operatorUser) && secureCompare(pass, auth.operatorPass) {
			return user, RoleOperator
		}
	}
	return "", ""
}

// authenticate returns the role of the request, from a bearer token or basic auth.
// Returns empty string if credentials are invalid.
func authenticate(r *http.Request) Role {
	if auth == nil || !auth.enabled {
		return RoleAdmin // No auth configured = full access
	}

	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		claims, err := ParseToken(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return ""
		}
		return claims.Role
	}

	_, role := authenticateBasic(r)
	return role
}

// secureCompare performs constant-time string comparison to prevent timing attacks.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Sentient Renderer"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

type roleKey struct{}

// roleFrom returns the role RequireRole attached to the request.
func roleFrom(r *http.Request) Role {
	role, _ := r.Context().Value(roleKey{}).(Role)
	return role
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR operator role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}

type TokenResponse struct {
	Token     string `json:"token"`
	Role      Role   `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

// tokenHandler exchanges basic auth credentials for a bearer token.
func tokenHandler(w http.ResponseWriter, r *http.Request) {
	if auth == nil || len(auth.jwtSecret) == 0 {
		writeError(w, http.StatusServiceUnavailable, "token signing not configured")
		return
	}

	user, role := "anonymous", RoleAdmin
	if auth.enabled {
		user, role = authenticateBasic(r)
		if role == "" {
			requireAuth(w)
			return
		}
	}

	now := time.Now()
	token, err := IssueToken(user, role, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	events.Emit("info", "operator.token", "", map[string]interface{}{
		"user": user,
		"role": string(role),
	})
	writeJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		Role:      role,
		ExpiresAt: now.Add(TokenTTL).UTC().Format(time.RFC3339),
	})
}
