package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tixgo/platform/internal/domain"
)

type fakeAuthService struct {
	register func(ctx context.Context, username, password string) (domain.User, error)
	login    func(ctx context.Context, username, password string) (string, error)
}

func (s *fakeAuthService) Register(ctx context.Context, username, password string) (domain.User, error) {
	return s.register(ctx, username, password)
}

func (s *fakeAuthService) Login(ctx context.Context, username, password string) (string, error) {
	return s.login(ctx, username, password)
}

func TestRegisterCreated(t *testing.T) {
	svc := &fakeAuthService{
		register: func(_ context.Context, username, _ string) (domain.User, error) {
			return domain.User{ID: 1, Username: username, Role: domain.RoleUser}, nil
		},
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"username":"alice","password":"s3cret"}`))
	HandleRegister(svc)(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp userResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "user", resp.Role)
}

func TestRegisterConflict(t *testing.T) {
	svc := &fakeAuthService{
		register: func(context.Context, string, string) (domain.User, error) {
			return domain.User{}, domain.ErrUserAlreadyExists
		},
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"username":"alice","password":"s3cret"}`))
	HandleRegister(svc)(w, r)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLoginReturnsToken(t *testing.T) {
	svc := &fakeAuthService{
		login: func(context.Context, string, string) (string, error) {
			return "signed-token", nil
		},
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"s3cret"}`))
	HandleLogin(svc)(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "signed-token", resp.Token)
}

func TestLoginUnauthorized(t *testing.T) {
	svc := &fakeAuthService{
		login: func(context.Context, string, string) (string, error) {
			return "", domain.ErrInvalidCredentials
		},
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"alice","password":"wrong!"}`))
	HandleLogin(svc)(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCredentialValidation(t *testing.T) {
	svc := &fakeAuthService{
		register: func(context.Context, string, string) (domain.User, error) {
			t.Fatal("service should not be called")
			return domain.User{}, nil
		},
	}

	for _, body := range []string{`{}`, `{"username":"ab","password":"s3cret"}`, `{"username":"alice","password":"short"}`} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
		HandleRegister(svc)(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}
