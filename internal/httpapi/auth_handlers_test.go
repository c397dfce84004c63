package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"careportal.org/internal/auth"
)

type fakeSessions struct {
	loginFn     func(ctx context.Context, email, password string) (auth.TokenPair, *auth.User, error)
	refreshFn   func(ctx context.Context, refreshToken string) (auth.TokenPair, *auth.User, error)
	validateFn  func(ctx context.Context, sessionToken string) (*auth.Claims, *auth.User, error)
	logoutFn    func(ctx context.Context, refreshToken, userID string) error
	logoutAllFn func(ctx context.Context, userID string) error
}

func (f *fakeSessions) Login(ctx context.Context, email, password string) (auth.TokenPair, *auth.User, error) {
	if f.loginFn == nil {
		return auth.TokenPair{}, nil, errors.New("login not wired")
	}
	return f.loginFn(ctx, email, password)
}

func (f *fakeSessions) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, *auth.User, error) {
	if f.refreshFn == nil {
		return auth.TokenPair{}, nil, errors.New("refresh not wired")
	}
	return f.refreshFn(ctx, refreshToken)
}

func (f *fakeSessions) ValidateSession(ctx context.Context, sessionToken string) (*auth.Claims, *auth.User, error) {
	if f.validateFn == nil {
		return nil, nil, auth.ErrAuthenticationFailed
	}
	return f.validateFn(ctx, sessionToken)
}

func (f *fakeSessions) Logout(ctx context.Context, refreshToken, userID string) error {
	if f.logoutFn == nil {
		return errors.New("logout not wired")
	}
	return f.logoutFn(ctx, refreshToken, userID)
}

func (f *fakeSessions) LogoutAll(ctx context.Context, userID string) error {
	if f.logoutAllFn == nil {
		return errors.New("logout all not wired")
	}
	return f.logoutAllFn(ctx, userID)
}

func testPair() auth.TokenPair {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return auth.TokenPair{
		AccessToken:      "access-token",
		RefreshToken:     "id.secret",
		AccessExpiresAt:  now.Add(15 * time.Minute),
		RefreshExpiresAt: now.Add(24 * time.Hour),
	}
}

func postJSON(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandleLoginSuccess(t *testing.T) {
	api := New(&fakeSessions{
		loginFn: func(_ context.Context, email, password string) (auth.TokenPair, *auth.User, error) {
			if email != "staff@careportal.com" || password != "Secret#1" {
				t.Fatalf("credentials not forwarded: %q %q", email, password)
			}
			return testPair(), &auth.User{ID: "u-1", Role: auth.RoleStaff}, nil
		},
	}, ReadyProbe{}, "test")

	rec := postJSON(t, api.handleLogin, "/v1/auth/login",
		`{"email":"staff@careportal.com","password":"Secret#1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken != "access-token" || resp.RefreshToken != "id.secret" {
		t.Fatalf("tokens missing from response: %+v", resp)
	}
	if resp.UserID != "u-1" || resp.Role != auth.RoleStaff {
		t.Fatalf("identity missing from response: %+v", resp)
	}
}

func TestHandleLoginFailureBodyIsUniform(t *testing.T) {
	// Whatever the internal cause, the client sees one identical 401 payload.
	causes := []error{
		auth.ErrAuthenticationFailed,
		auth.ErrAuthenticationFailed,
	}
	var bodies []string
	for _, cause := range causes {
		api := New(&fakeSessions{
			loginFn: func(context.Context, string, string) (auth.TokenPair, *auth.User, error) {
				return auth.TokenPair{}, nil, cause
			},
		}, ReadyProbe{}, "test")
		rec := postJSON(t, api.handleLogin, "/v1/auth/login",
			`{"email":"a@b.c","password":"x"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("failure bodies differ: %q vs %q", bodies[0], bodies[1])
	}
	if strings.Contains(bodies[0], "password") || strings.Contains(bodies[0], "disabled") {
		t.Fatalf("body leaks failure cause: %s", bodies[0])
	}
}

func TestHandleLoginErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", auth.ErrValidation, http.StatusBadRequest},
		{"authentication", auth.ErrAuthenticationFailed, http.StatusUnauthorized},
		{"persistence", auth.ErrPersistence, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		api := New(&fakeSessions{
			loginFn: func(context.Context, string, string) (auth.TokenPair, *auth.User, error) {
				return auth.TokenPair{}, nil, tc.err
			},
		}, ReadyProbe{}, "test")
		rec := postJSON(t, api.handleLogin, "/v1/auth/login",
			`{"email":"a@b.c","password":"x"}`)
		if rec.Code != tc.code {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.code)
		}
		if tc.code == http.StatusServiceUnavailable && strings.Contains(rec.Body.String(), "boom") {
			t.Fatalf("%s: body leaks internals: %s", tc.name, rec.Body.String())
		}
	}
}

func TestHandleLoginRejectsBadRequests(t *testing.T) {
	api := New(&fakeSessions{}, ReadyProbe{}, "test")

	for _, body := range []string{
		"",
		"{not json",
		`{"email":"a@b.c","password":"x","extra":true}`,
		`{"email":"a@b.c"}{"email":"d@e.f"}`,
	} {
		rec := postJSON(t, api.handleLogin, "/v1/auth/login", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/login", nil)
	rec := httptest.NewRecorder()
	api.handleLogin(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET login: status = %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow = %q", allow)
	}
}

func TestHandleRefresh(t *testing.T) {
	api := New(&fakeSessions{
		refreshFn: func(_ context.Context, refreshToken string) (auth.TokenPair, *auth.User, error) {
			if refreshToken != "id.secret" {
				return auth.TokenPair{}, nil, auth.ErrAuthenticationFailed
			}
			return testPair(), &auth.User{ID: "u-1", Role: auth.RoleStaff}, nil
		},
	}, ReadyProbe{}, "test")

	rec := postJSON(t, api.handleRefresh, "/v1/auth/refresh", `{"refresh_token":"id.secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, api.handleRefresh, "/v1/auth/refresh", `{"refresh_token":"spent.value"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d", rec.Code)
	}
}

func TestHandleLogout(t *testing.T) {
	var gotToken, gotUser string
	api := New(&fakeSessions{
		logoutFn: func(_ context.Context, refreshToken, userID string) error {
			gotToken, gotUser = refreshToken, userID
			return nil
		},
	}, ReadyProbe{}, "test")

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", strings.NewReader(`{"refresh_token":"id.secret"}`))
	req = req.WithContext(auth.ContextWithActor(req.Context(), auth.Actor{UserID: "u-1"}))
	rec := httptest.NewRecorder()
	api.handleLogout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotToken != "id.secret" || gotUser != "u-1" {
		t.Fatalf("logout args = %q %q", gotToken, gotUser)
	}
}

func TestHandleLogoutEverywhere(t *testing.T) {
	var gotUser string
	api := New(&fakeSessions{
		logoutAllFn: func(_ context.Context, userID string) error {
			gotUser = userID
			return nil
		},
	}, ReadyProbe{}, "test")

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", strings.NewReader(`{"refresh_token":"id.secret","everywhere":true}`))
	req = req.WithContext(auth.ContextWithActor(req.Context(), auth.Actor{UserID: "u-1"}))
	rec := httptest.NewRecorder()
	api.handleLogout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotUser != "u-1" {
		t.Fatalf("logout-all user = %q", gotUser)
	}
}

func TestHandleLogoutRequiresActor(t *testing.T) {
	api := New(&fakeSessions{}, ReadyProbe{}, "test")
	rec := postJSON(t, api.handleLogout, "/v1/auth/logout", `{"refresh_token":"id.secret"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleMe(t *testing.T) {
	api := New(&fakeSessions{}, ReadyProbe{}, "test")

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req = req.WithContext(auth.ContextWithActor(req.Context(), auth.Actor{
		UserID: "u-1",
		Roles:  []string{auth.RoleStaff},
	}))
	rec := httptest.NewRecorder()
	api.handleMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != "u-1" || len(resp.Roles) != 1 || resp.Roles[0] != auth.RoleStaff {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
