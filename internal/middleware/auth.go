// Package middleware содержит HTTP middleware сервиса членства в клубе.
package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/clubhub/internal/model"
	"github.com/mmeshcher/clubhub/internal/respond"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"
)

const authCookieName = "auth_token"

// Claims содержит данные пользователя, сохраняемые в токене.
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// AuthMiddleware выпускает и проверяет JWT, переданные в заголовке Authorization или в cookie.
type AuthMiddleware struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware. При пустом секрете генерируется случайный ключ.
func NewAuthMiddleware(secret, issuer string, ttl time.Duration) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &AuthMiddleware{
		secretKey: key,
		issuer:    issuer,
		ttl:       ttl,
		now:       time.Now,
	}
}

// IssueToken выпускает подписанный токен для пользователя.
func (a *AuthMiddleware) IssueToken(userID int64, role model.Role) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// SetAuthCookie устанавливает cookie с токеном на время его жизни.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Expires:  a.now().Add(a.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware проверяет токен и добавляет идентификатор и роль пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFromRequest(r)
		if raw == "" {
			respond.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := a.parse(raw)
		if err != nil {
			respond.Error(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			respond.Error(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, roleKey, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает только запросы пользователей с одной из перечисленных ролей.
// Должен стоять после Middleware.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetRoleFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			respond.Error(w, http.StatusForbidden, "Insufficient permissions")
		})
	}
}

func (a *AuthMiddleware) parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if cookie, err := r.Cookie(authCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// GetRoleFromContext извлекает роль пользователя из контекста запроса.
func GetRoleFromContext(ctx context.Context) (model.Role, bool) {
	role, ok := ctx.Value(roleKey).(model.Role)
	return role, ok
}
