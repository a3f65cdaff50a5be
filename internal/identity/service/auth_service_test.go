package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"clinic-messaging/backend/internal/identity/domain"
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

func newTestAuthService(t *testing.T) (*AuthService, *memUserRepo, revocation.Store) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("test token provider: %v", err)
	}
	repo := newMemUserRepo()
	revoked := revocation.NewMemoryStore(revocation.DefaultBounds)
	return NewAuthService(repo, security.NewHasher(4), tokens, revoked), repo, revoked
}

const testPassword = "correct-horse-battery"

func registerUser(t *testing.T, svc *AuthService, email, role string) *domain.User {
	t.Helper()
	user, err := svc.Register(context.Background(), email, testPassword, role, "Test Person")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return user
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	user := registerUser(t, svc, "doc@example.com", domain.RoleDoctor)
	if user.Role != domain.RoleDoctor {
		t.Fatalf("unexpected role %q", user.Role)
	}
	if user.PasswordHash == testPassword {
		t.Fatal("password stored in plaintext")
	}

	res, err := svc.Login(ctx, "Doc@Example.com", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if res.User.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, res.User.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	registerUser(t, svc, "doc@example.com", domain.RoleDoctor)
	if _, err := svc.Register(ctx, "doc@example.com", testPassword, domain.RoleDoctor, "Dup"); err != ErrEmailAlreadyRegistered {
		t.Fatalf("expected ErrEmailAlreadyRegistered, got %v", err)
	}
	if _, err := svc.Register(ctx, "not-an-email", testPassword, domain.RoleDoctor, "X"); err == nil {
		t.Fatal("expected email validation error")
	}
	if _, err := svc.Register(ctx, "a@example.com", "short", domain.RoleDoctor, "X"); err == nil {
		t.Fatal("expected password validation error")
	}
	if _, err := svc.Register(ctx, "b@example.com", testPassword, "admin", "X"); err == nil {
		t.Fatal("expected role validation error")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	registerUser(t, svc, "doc@example.com", domain.RoleDoctor)
	if _, err := svc.Login(ctx, "doc@example.com", "wrong-password-here"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "ghost@example.com", testPassword); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	registerUser(t, svc, "pat@example.com", domain.RolePatient)
	res, err := svc.Login(ctx, "pat@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rotated, err := svc.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == res.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// The old refresh token is single-use.
	if _, err := svc.Refresh(ctx, res.RefreshToken); err != ErrInvalidRefreshToken {
		t.Fatalf("expected ErrInvalidRefreshToken on reuse, got %v", err)
	}
	// The new one still works.
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("Refresh with rotated token: %v", err)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	svc, _, revoked := newTestAuthService(t)
	ctx := context.Background()

	user := registerUser(t, svc, "pat@example.com", domain.RolePatient)
	res, err := svc.Login(ctx, "pat@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	accessJTI := "access-jti-1"
	svc.Logout(ctx, res.RefreshToken, accessJTI, time.Now().Add(15*time.Minute), user.ID)

	if !revoked.IsRevoked(ctx, accessJTI) {
		t.Fatal("access jti not revoked")
	}
	if _, err := svc.Refresh(ctx, res.RefreshToken); err != ErrInvalidRefreshToken {
		t.Fatalf("expected refresh token revoked after logout, got %v", err)
	}

	// Logout with garbage input must not panic or error the flow.
	svc.Logout(ctx, "garbage", "", time.Time{}, "")
}
