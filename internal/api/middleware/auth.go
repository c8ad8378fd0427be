package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/paynxt/internal/api/problem"
	"github.com/ayo6706/paynxt/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	traceContextKey     contextKey = "trace_id"
)

var (
	jwtSecret   []byte
	jwtIssuer   string
	jwtAudience string
)

var errInvalidClaims = errors.New("invalid token claims")

type authClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// principal is the authenticated caller attached to the request context.
type principal struct {
	accountID uuid.UUID
	role      string
}

func SetJWTSecret(secret string) {
	if secret == "" {
		return
	}
	jwtSecret = []byte(secret)
}

func SetJWTValidation(issuer, audience string) {
	jwtIssuer = strings.TrimSpace(issuer)
	jwtAudience = strings.TrimSpace(audience)
}

// IssueToken signs an HS256 bearer token for the account. The subject and
// user_id claims both carry the account id.
func IssueToken(accountID uuid.UUID, role string, ttl time.Duration) (string, error) {
	if len(jwtSecret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := authClaims{
		UserID: accountID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if jwtIssuer != "" {
		claims.Issuer = jwtIssuer
	}
	if jwtAudience != "" {
		claims.Audience = jwt.ClaimStrings{jwtAudience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

func parseToken(raw string) (principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if jwtIssuer != "" {
		opts = append(opts, jwt.WithIssuer(jwtIssuer))
	}
	if jwtAudience != "" {
		opts = append(opts, jwt.WithAudience(jwtAudience))
	}

	claims := &authClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return jwtSecret, nil
	}, opts...); err != nil {
		return principal{}, err
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil || (claims.Subject != "" && claims.Subject != claims.UserID) {
		return principal{}, errInvalidClaims
	}
	if !domain.IsValidRole(claims.Role) {
		return principal{}, errInvalidClaims
	}
	return principal{accountID: id, role: claims.Role}, nil
}

func unauthorized(w http.ResponseWriter, r *http.Request, slug, detail string) {
	problem.Write(w, r, http.StatusUnauthorized, problem.Type("auth/"+slug), http.StatusText(http.StatusUnauthorized), detail)
}

// AuthMiddleware requires a valid bearer token and attaches the caller's
// account id and role to the request context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			unauthorized(w, r, "authorization-header-required", "Authorization header required")
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			unauthorized(w, r, "invalid-token-format", "Invalid token format")
			return
		}
		if len(jwtSecret) == 0 {
			problem.Write(w, r, http.StatusInternalServerError, problem.Type("auth/misconfigured"), http.StatusText(http.StatusInternalServerError), "auth is not configured")
			return
		}

		p, err := parseToken(raw)
		if errors.Is(err, errInvalidClaims) {
			unauthorized(w, r, "invalid-token-claims", "Invalid token claims")
			return
		}
		if err != nil {
			unauthorized(w, r, "invalid-token", "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalContextKey, p)))
	})
}

// RequireRole rejects callers whose token carries a different role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserRoleFromContext(r.Context()) != role {
				problem.Write(w, r, http.StatusForbidden, problem.Type("auth/insufficient-permissions"), http.StatusText(http.StatusForbidden), "This operation requires the "+role+" role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principalFromContext(ctx context.Context) (principal, bool) {
	if ctx == nil {
		return principal{}, false
	}
	p, ok := ctx.Value(principalContextKey).(principal)
	return p, ok
}

// UserIDFromContext returns the authenticated account id as a string, or ""
// for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if p, ok := principalFromContext(ctx); ok {
		return p.accountID.String()
	}
	return ""
}

func UserRoleFromContext(ctx context.Context) string {
	p, _ := principalFromContext(ctx)
	return p.role
}

// AccountIDFromContext returns the authenticated account id.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := principalFromContext(ctx)
	return p.accountID, ok
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(traceContextKey).(string)
	return v
}
