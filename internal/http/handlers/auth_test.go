package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/geocoder89/learnhub/internal/domain/user"
	"github.com/geocoder89/learnhub/internal/http/handlers"
	"github.com/geocoder89/learnhub/internal/services"
)

type fakeAuthService struct {
	registerFn func(ctx context.Context, email, password string) (user.PublicUser, error)
	loginFn    func(ctx context.Context, email, password string) (services.LoginResult, error)
}

func (f *fakeAuthService) Register(ctx context.Context, email, password string) (user.PublicUser, error) {
	if f.registerFn != nil {
		return f.registerFn(ctx, email, password)
	}
	return user.PublicUser{}, nil
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (services.LoginResult, error) {
	if f.loginFn != nil {
		return f.loginFn(ctx, email, password)
	}
	return services.LoginResult{}, nil
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		registerFn func(ctx context.Context, email, password string) (user.PublicUser, error)
		wantStatus int
		wantCode   string
	}{
		{
			name: "created",
			body: `{"email":"a@example.com","password":"secret123"}`,
			registerFn: func(_ context.Context, email, _ string) (user.PublicUser, error) {
				return user.PublicUser{ID: "u1", Email: email, Role: user.RoleUser}, nil
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid email",
			body:       `{"email":"nope","password":"secret123"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "short password",
			body:       `{"email":"a@example.com","password":"123"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "password over 72 characters",
			body:       `{"email":"a@example.com","password":"` + strings.Repeat("x", 80) + `"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name: "password over 72 bytes",
			body: `{"email":"a@example.com","password":"` + strings.Repeat("é", 40) + `"}`,
			registerFn: func(context.Context, string, string) (user.PublicUser, error) {
				return user.PublicUser{}, services.ErrPasswordTooLong
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name: "duplicate",
			body: `{"email":"a@example.com","password":"secret123"}`,
			registerFn: func(context.Context, string, string) (user.PublicUser, error) {
				return user.PublicUser{}, services.ErrDuplicateAccount
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "email_taken",
		},
		{
			name: "store failure",
			body: `{"email":"a@example.com","password":"secret123"}`,
			registerFn: func(context.Context, string, string) (user.PublicUser, error) {
				return user.PublicUser{}, fmt.Errorf("create user: %w", errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewAuthHandler(&fakeAuthService{registerFn: tt.registerFn})
			r := setupRouter(http.MethodPost, "/auth/register", h.Register, "", "")

			w := doJSON(r, http.MethodPost, "/auth/register", tt.body, nil)

			if w.Code != tt.wantStatus {
				t.Fatalf("got %d want %d body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				var resp bindErrorResponse
				_ = json.Unmarshal(w.Body.Bytes(), &resp)
				if resp.Error.Code != tt.wantCode {
					t.Fatalf("got code %q want %q", resp.Error.Code, tt.wantCode)
				}
				return
			}

			var resp struct {
				User map[string]any `json:"user"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.User["id"] != "u1" || resp.User["role"] != "user" {
				t.Fatalf("unexpected user: %v", resp.User)
			}
			if _, leaked := resp.User["passwordHash"]; leaked {
				t.Fatalf("password hash must not be serialized")
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		loginFn    func(ctx context.Context, email, password string) (services.LoginResult, error)
		wantStatus int
		wantCode   string
	}{
		{
			name: "ok",
			body: `{"email":"a@example.com","password":"secret123"}`,
			loginFn: func(_ context.Context, email, _ string) (services.LoginResult, error) {
				return services.LoginResult{
					User:  user.PublicUser{ID: "u1", Email: email, Role: user.RoleUser},
					Token: "signed.jwt.token",
				}, nil
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "bad credentials",
			body: `{"email":"a@example.com","password":"wrong"}`,
			loginFn: func(context.Context, string, string) (services.LoginResult, error) {
				return services.LoginResult{}, services.ErrInvalidCredentials
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_credentials",
		},
		{
			name:       "missing password",
			body:       `{"email":"a@example.com"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewAuthHandler(&fakeAuthService{loginFn: tt.loginFn})
			r := setupRouter(http.MethodPost, "/auth/login", h.Login, "", "")

			w := doJSON(r, http.MethodPost, "/auth/login", tt.body, nil)

			if w.Code != tt.wantStatus {
				t.Fatalf("got %d want %d body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				var resp bindErrorResponse
				_ = json.Unmarshal(w.Body.Bytes(), &resp)
				if resp.Error.Code != tt.wantCode {
					t.Fatalf("got code %q want %q", resp.Error.Code, tt.wantCode)
				}
				return
			}

			var resp services.LoginResult
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Token == "" || resp.User.ID != "u1" {
				t.Fatalf("unexpected login response: %+v", resp)
			}
		})
	}
}
