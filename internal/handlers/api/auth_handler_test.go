package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nmkhang/authcore/internal/auth"
	"github.com/nmkhang/authcore/internal/credentials"
	"github.com/nmkhang/authcore/internal/handlers/api"
	"github.com/nmkhang/authcore/internal/lockout"
	"github.com/nmkhang/authcore/internal/middlewares"
	"github.com/nmkhang/authcore/internal/middlewares/sessionauth"
	"github.com/nmkhang/authcore/internal/sessions"
	"github.com/nmkhang/authcore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoginService struct {
	loginFn  func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error)
	logoutFn func(ctx context.Context, key string, ip string, userAgent string) error
}

func (s *stubLoginService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error) {
	return s.loginFn(ctx, req)
}

func (s *stubLoginService) Logout(ctx context.Context, key string, ip string, userAgent string) error {
	if s.logoutFn == nil {
		return nil
	}
	return s.logoutFn(ctx, key, ip, userAgent)
}

type stubToucher struct {
	session *model.Session
}

func (s *stubToucher) Touch(ctx context.Context, key string) (*model.Session, error) {
	if s.session == nil || s.session.Key != key {
		return nil, sessions.ErrSessionNotFound
	}
	return s.session, nil
}

func newTestApp(loginService api.LoginService, toucher sessionauth.SessionToucher) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	handler := api.NewAuthHandler(loginService)
	app.Post("/api/v1/login", handler.PostLogin)
	app.Post("/api/v1/logout", sessionauth.New(toucher), handler.PostLogout)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string, headers map[string]string) (int, api.APIResponse, string) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var envelope api.APIResponse
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &envelope))
	}
	return resp.StatusCode, envelope, resp.Header.Get(fiber.HeaderRetryAfter)
}

func TestPostLogin_Success(t *testing.T) {
	expiry := time.Now().Add(24 * time.Hour).UTC()
	service := &stubLoginService{
		loginFn: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error) {
			assert.Equal(t, "alice", req.Identity)
			assert.Equal(t, "winter-2024", req.Password)
			assert.NotEmpty(t, req.IP)
			return &auth.LoginResult{
				Status:    auth.LoginStatusSuccess,
				Principal: &model.Principal{ID: 42, Username: "alice", FullName: "Alison Wonder", Email: "alison@example.com"},
				Session:   &model.Session{Key: "session-key-1", ExpiresAt: expiry},
			}, nil
		},
	}
	app := newTestApp(service, &stubToucher{})

	code, envelope, _ := postJSON(t, app, "/api/v1/login",
		`{"identity":"alice","password":"winter-2024"}`, nil)
	require.Equal(t, fiber.StatusOK, code)
	require.Nil(t, envelope.Error)
	assert.Equal(t, "1.0", envelope.APIVersion)

	data := envelope.Data.(map[string]any)
	assert.Equal(t, "SUCCESS", data["status"])
	assert.Equal(t, "session-key-1", data["sessionKey"])
	user := data["user"].(map[string]any)
	assert.Equal(t, "42", user["userId"])
	assert.Equal(t, "alice", user["username"])
}

func TestPostLogin_MFARequired(t *testing.T) {
	service := &stubLoginService{
		loginFn: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error) {
			return &auth.LoginResult{
				Status:           auth.LoginStatusMFARequired,
				AvailableMethods: []string{"totp", "backup_code"},
			}, nil
		},
	}
	app := newTestApp(service, &stubToucher{})

	code, envelope, _ := postJSON(t, app, "/api/v1/login",
		`{"identity":"alice","password":"winter-2024"}`, nil)
	require.Equal(t, fiber.StatusOK, code)

	data := envelope.Data.(map[string]any)
	assert.Equal(t, "MFA_REQUIRED", data["status"])
	assert.ElementsMatch(t, []any{"totp", "backup_code"}, data["availableMethods"])
	assert.NotContains(t, data, "sessionKey")
}

func TestPostLogin_InvalidCredentialsEnvelope(t *testing.T) {
	service := &stubLoginService{
		loginFn: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error) {
			return nil, credentials.ErrInvalidCredentials
		},
	}
	app := newTestApp(service, &stubToucher{})

	code, envelope, _ := postJSON(t, app, "/api/v1/login",
		`{"identity":"alice","password":"nope"}`, nil)
	assert.Equal(t, fiber.StatusUnauthorized, code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", envelope.Error.Status)
	assert.Nil(t, envelope.Data)
}

func TestPostLogin_LockedCarriesRetryAfter(t *testing.T) {
	service := &stubLoginService{
		loginFn: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error) {
			return nil, &lockout.AccountLockedError{
				Until: time.Now().Add(10 * time.Minute),
				Scope: "principal",
			}
		},
	}
	app := newTestApp(service, &stubToucher{})

	code, envelope, retryAfter := postJSON(t, app, "/api/v1/login",
		`{"identity":"alice","password":"winter-2024"}`, nil)
	assert.Equal(t, fiber.StatusLocked, code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "ACCOUNT_LOCKED", envelope.Error.Status)
	assert.Greater(t, envelope.Error.RetryAfter, int64(0))
	assert.NotEmpty(t, retryAfter)
}

func TestPostLogin_MissingFields(t *testing.T) {
	service := &stubLoginService{
		loginFn: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	app := newTestApp(service, &stubToucher{})

	code, envelope, _ := postJSON(t, app, "/api/v1/login", `{"identity":"alice"}`, nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
	require.NotNil(t, envelope.Error)
}

func TestPostLogout_RequiresBearerSession(t *testing.T) {
	var loggedOutKey string
	service := &stubLoginService{
		logoutFn: func(ctx context.Context, key string, ip string, userAgent string) error {
			loggedOutKey = key
			return nil
		},
	}
	toucher := &stubToucher{session: &model.Session{ID: 7, Key: "session-key-1", Active: true}}
	app := newTestApp(service, toucher)

	code, _, _ := postJSON(t, app, "/api/v1/logout", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, code)

	code, _, _ = postJSON(t, app, "/api/v1/logout", "", map[string]string{
		fiber.HeaderAuthorization: "Bearer wrong-key",
	})
	assert.Equal(t, fiber.StatusUnauthorized, code)

	code, _, _ = postJSON(t, app, "/api/v1/logout", "", map[string]string{
		fiber.HeaderAuthorization: "Bearer session-key-1",
	})
	assert.Equal(t, fiber.StatusNoContent, code)
	assert.Equal(t, "session-key-1", loggedOutKey)
}
