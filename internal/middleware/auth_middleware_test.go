package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rangganata/ai-manager/internal/auth"
	appctx "github.com/rangganata/ai-manager/internal/context"
	"github.com/rangganata/ai-manager/internal/repository"
)

// fakeUserRepo resolves a single known user
type fakeUserRepo struct {
	user *repository.User
	err  error
}

func (f *fakeUserRepo) Create(ctx context.Context, user *repository.User) error {
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (f *fakeUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return false, nil
}

func newAuthTestSetup(user *repository.User) (*AuthMiddleware, *auth.TokenService) {
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret: "test-secret",
		Expiry: time.Hour,
		Issuer: "ai-manager-test",
	})
	return NewAuthMiddleware(tokenService, &fakeUserRepo{user: user}), tokenService
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Code
}

func TestAuthenticateInjectsUserIdentity(t *testing.T) {
	user := &repository.User{ID: uuid.New(), Email: "user@example.com", IsActive: true}
	mw, tokenService := newAuthTestSetup(user)

	token, err := tokenService.GenerateAccessToken(user.ID.String(), user.Email)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	var gotUserID, gotEmail string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = appctx.ExtractUserID(r.Context())
		gotEmail, _ = appctx.ExtractEmail(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Authenticate(next).ServeHTTP(rec, r)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if gotUserID != user.ID.String() {
		t.Errorf("context user ID = %q, want %q", gotUserID, user.ID)
	}
	if gotEmail != user.Email {
		t.Errorf("context email = %q, want %q", gotEmail, user.Email)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	user := &repository.User{ID: uuid.New(), Email: "user@example.com", IsActive: true}
	mw, tokenService := newAuthTestSetup(user)

	validToken, err := tokenService.GenerateAccessToken(user.ID.String(), user.Email)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	strayToken, err := tokenService.GenerateAccessToken(uuid.New().String(), "ghost@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	nonUUIDToken, err := tokenService.GenerateAccessToken("not-a-uuid", "x@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	cases := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", "AUTH_TOKEN_MISSING"},
		{"not bearer", "Basic dXNlcjpwYXNz", "AUTH_TOKEN_INVALID"},
		{"empty token", "Bearer ", "AUTH_TOKEN_INVALID"},
		{"garbage token", "Bearer not.a.jwt", "AUTH_TOKEN_INVALID"},
		{"non-uuid subject", "Bearer " + nonUUIDToken, "AUTH_TOKEN_INVALID"},
		{"unknown user", "Bearer " + strayToken, "AUTH_USER_NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("next handler must not run")
			})

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			mw.Authenticate(next).ServeHTTP(rec, r)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if code := errorCode(t, rec); code != tc.wantCode {
				t.Errorf("error code = %q, want %q", code, tc.wantCode)
			}
		})
	}

	t.Run("inactive user", func(t *testing.T) {
		user.IsActive = false
		defer func() { user.IsActive = true }()

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+validToken)
		rec := httptest.NewRecorder()
		mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("next handler must not run")
		})).ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if code := errorCode(t, rec); code != "AUTH_USER_NOT_FOUND" {
			t.Errorf("error code = %q", code)
		}
	})
}
