package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tixgo/platform/internal/domain"
	"github.com/tixgo/platform/internal/identity"
)

func TestRequireAuthPassesClaimsThrough(t *testing.T) {
	issuer := identity.NewTokenIssuer("test-secret", time.Hour)
	token, err := issuer.Issue(domain.User{ID: 5, Username: "alice", Role: domain.RoleOperator})
	require.NoError(t, err)

	var seen identity.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		seen = claims
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	RequireAuth(issuer)(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), seen.UserID)
	assert.Equal(t, "operator", seen.Role)
}

func TestRequireAuthRejects(t *testing.T) {
	issuer := identity.NewTokenIssuer("test-secret", time.Hour)
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler should not run")
	})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/tickets", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			RequireAuth(issuer)(next).ServeHTTP(w, r)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	issuer := identity.NewTokenIssuer("test-secret", time.Hour)
	adminOnly := RequireRole("admin")

	serve := func(user domain.User) *httptest.ResponseRecorder {
		token, err := issuer.Issue(user)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodDelete, "/users/1", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		RequireAuth(issuer)(adminOnly(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))).ServeHTTP(w, r)
		return w
	}

	t.Run("admin passes", func(t *testing.T) {
		w := serve(domain.User{ID: 1, Username: "root", Role: domain.RoleAdmin})
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("plain user is forbidden", func(t *testing.T) {
		w := serve(domain.User{ID: 2, Username: "mallory", Role: domain.RoleUser})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("operator is forbidden", func(t *testing.T) {
		w := serve(domain.User{ID: 3, Username: "ops", Role: domain.RoleOperator})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestRequireRoleWithoutClaims(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/users", nil)
	RequireRole("admin")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler should not run")
	})).ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthRejectsWrongSecret(t *testing.T) {
	other := identity.NewTokenIssuer("other-secret", time.Hour)
	token, err := other.Issue(domain.User{ID: 5, Username: "mallory", Role: domain.RoleUser})
	require.NoError(t, err)

	issuer := identity.NewTokenIssuer("test-secret", time.Hour)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	RequireAuth(issuer)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler should not run")
	})).ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
