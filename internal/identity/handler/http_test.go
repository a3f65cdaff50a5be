package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"clinic-messaging/backend/internal/identity/domain"
	"clinic-messaging/backend/internal/identity/service"
	"clinic-messaging/backend/internal/revocation"
	"clinic-messaging/backend/internal/security"
)

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*domain.User{}, byEmail: map[string]*domain.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byEmail[email], nil
}

func (r *memUserRepo) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	return nil
}

func newFixture(t *testing.T) (*httptest.Server, revocation.Store, *security.TokenProvider) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("test token provider: %v", err)
	}
	revoked := revocation.NewMemoryStore(revocation.DefaultBounds)
	svc := service.NewAuthService(newMemUserRepo(), security.NewHasher(4), tokens, revoked)
	mux := http.NewServeMux()
	NewHTTP(svc, tokens, nil, zerolog.Nop()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, revoked, tokens
}

func post(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

const testPassword = "correct-horse-battery"

func registerAndLogin(t *testing.T, srv *httptest.Server, email, role string) tokenResponse {
	t.Helper()
	resp := post(t, srv.URL+"/api/auth/register", registerRequest{
		Email: email, Password: testPassword, Role: role, FullName: "Test Person",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	resp2 := post(t, srv.URL+"/api/auth/login", loginRequest{Email: email, Password: testPassword}, nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp2.StatusCode)
	}
	var out tokenResponse
	if err := json.NewDecoder(resp2.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out
}

func TestRegisterLoginFlow(t *testing.T) {
	srv, _, _ := newFixture(t)
	out := registerAndLogin(t, srv, "doc@example.com", domain.RoleDoctor)
	if out.AccessToken == "" || out.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if out.User == nil || out.User.Role != domain.RoleDoctor {
		t.Fatalf("unexpected user: %+v", out.User)
	}
}

func TestDuplicateRegisterConflicts(t *testing.T) {
	srv, _, _ := newFixture(t)
	registerAndLogin(t, srv, "doc@example.com", domain.RoleDoctor)

	resp := post(t, srv.URL+"/api/auth/register", registerRequest{
		Email: "doc@example.com", Password: testPassword, Role: domain.RoleDoctor, FullName: "Dup",
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	srv, _, _ := newFixture(t)
	registerAndLogin(t, srv, "doc@example.com", domain.RoleDoctor)

	resp := post(t, srv.URL+"/api/auth/login", loginRequest{Email: "doc@example.com", Password: "nope-nope-nope"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRefreshRotatesAndInvalidatesOld(t *testing.T) {
	srv, _, _ := newFixture(t)
	out := registerAndLogin(t, srv, "pat@example.com", domain.RolePatient)

	resp := post(t, srv.URL+"/api/auth/refresh", refreshRequest{RefreshToken: out.RefreshToken}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	var rotated tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&rotated); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if rotated.RefreshToken == out.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	resp2 := post(t, srv.URL+"/api/auth/refresh", refreshRequest{RefreshToken: out.RefreshToken}, nil)
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", resp2.StatusCode)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	srv, revoked, tokens := newFixture(t)
	out := registerAndLogin(t, srv, "pat@example.com", domain.RolePatient)

	resp := post(t, srv.URL+"/api/auth/logout", refreshRequest{RefreshToken: out.RefreshToken}, map[string]string{
		"Authorization": "Bearer " + out.AccessToken,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	info, err := tokens.ValidateAccess(out.AccessToken)
	if err != nil {
		t.Fatalf("access token should still parse: %v", err)
	}
	if !revoked.IsRevoked(context.Background(), info.JTI) {
		t.Fatal("access jti not revoked after logout")
	}
}
