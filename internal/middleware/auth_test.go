package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/clubhub/internal/model"
)

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret", "clubhub", time.Hour)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id not in context")
		}
		if id != 42 {
			t.Fatalf("user id from context = %d, want 42", id)
		}
		role, _ := GetRoleFromContext(r.Context())
		if role != model.RoleMember {
			t.Fatalf("role from context = %q, want MEMBER", role)
		}
	})

	token, err := m.IssueToken(42, model.RoleMember)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, token)
	resCookies := w.Result().Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetAuthCookie")
	}

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(resCookies[0])

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithBearerToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret", "clubhub", time.Hour)
	token, err := m.IssueToken(7, model.RoleAdmin)
	require.NoError(t, err)

	var gotID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetUserIDFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, int64(7), gotID)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret", "clubhub", time.Hour)

	otherKey, err := NewAuthMiddleware("other-secret", "clubhub", time.Hour).IssueToken(1, model.RoleAdmin)
	require.NoError(t, err)

	otherIssuer, err := NewAuthMiddleware("test-secret", "elsewhere", time.Hour).IssueToken(1, model.RoleAdmin)
	require.NoError(t, err)

	expired := NewAuthMiddleware("test-secret", "clubhub", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.IssueToken(1, model.RoleAdmin)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "clubhub"},
		Role:             model.RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no token", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "wrong key", header: "Bearer " + otherKey},
		{name: "wrong issuer", header: "Bearer " + otherIssuer},
		{name: "expired", header: "Bearer " + expiredToken},
		{name: "alg none", header: "Bearer " + none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	m := NewAuthMiddleware("test-secret", "clubhub", time.Hour)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.Middleware(RequireRole(model.RoleAdmin, model.RoleExecutive)(ok))

	tests := []struct {
		role model.Role
		want int
	}{
		{role: model.RoleVisitor, want: http.StatusForbidden},
		{role: model.RoleMember, want: http.StatusForbidden},
		{role: model.RoleExecutive, want: http.StatusNoContent},
		{role: model.RoleAdmin, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		token, err := m.IssueToken(1, tt.role)
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodGet, "/admin", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, tt.want, w.Code, "role %s", tt.role)
	}

	w := httptest.NewRecorder()
	RequireRole(model.RoleAdmin)(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
