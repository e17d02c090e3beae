package authpw

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lifeblocks/api/internal/auth"
	"lifeblocks/api/internal/store"
)

// mockUserStore is an in-memory implementation of UserStore for testing
type mockUserStore struct {
	users     map[string]store.User
	lookupErr error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]store.User)}
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	if m.lookupErr != nil {
		return store.User{}, m.lookupErr
	}
	if user, ok := m.users[strings.ToLower(email)]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) UpsertUser(_ context.Context, user store.User) (store.User, error) {
	m.users[strings.ToLower(user.Email)] = user
	return user, nil
}

type mockRevoker struct {
	revoked map[string]time.Time
}

func (m *mockRevoker) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	m.revoked[jti] = expiresAt
	return nil
}

var testSecret = []byte("test-secret")

func newTestService() (*Service, *mockUserStore, *mockRevoker) {
	users := newMockUserStore()
	revoker := &mockRevoker{revoked: map[string]time.Time{}}
	issuer := auth.NewIssuer(testSecret, time.Hour, "", "", func() string { return "jti-test" })
	svc := NewService(users, issuer, revoker)
	svc.cost = bcrypt.MinCost
	return svc, users, revoker
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newTestService()

	t.Run("successful sign up", func(t *testing.T) {
		sess, err := svc.SignUp(ctx, SignUpRequest{Email: "test@example.com", Password: "password123"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(sess.User.ID, "usr_") {
			t.Errorf("expected usr_ id, got %q", sess.User.ID)
		}
		if sess.User.DisplayName != "test" {
			t.Errorf("expected display name from email, got %q", sess.User.DisplayName)
		}
		if sess.User.PasswordHash == "password123" {
			t.Error("password stored in clear")
		}
		userID, err := auth.NewLocalVerifier(testSecret, "", "").UserID(ctx, "Bearer "+sess.AccessToken)
		if err != nil || userID != sess.User.ID {
			t.Fatalf("token does not resolve to user: %q %v", userID, err)
		}
		if _, ok := users.users["test@example.com"]; !ok {
			t.Error("user not stored")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{Email: "TEST@example.com", Password: "password123"})
		if !errors.Is(err, ErrEmailTaken) {
			t.Fatalf("expected ErrEmailTaken, got %v", err)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		tests := []SignUpRequest{
			{Email: "not-an-email", Password: "password123"},
			{Email: "short@example.com", Password: "short"},
		}
		for _, req := range tests {
			if _, err := svc.SignUp(ctx, req); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("SignUp(%q) expected ErrInvalidInput, got %v", req.Email, err)
			}
		}
	})
}

func TestSignUpStoreFailure(t *testing.T) {
	svc, users, _ := newTestService()
	users.lookupErr = errors.New("db down")
	_, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@example.com", Password: "password123"})
	if err == nil || errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected lookup failure, got %v", err)
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newTestService()
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "login@example.com", Password: "password123", DisplayName: "Login"}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	users.users["hosted@example.com"] = store.User{ID: "usr_hosted", Email: "hosted@example.com"}

	sess, err := svc.SignIn(ctx, SignInRequest{Email: "login@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.AccessToken == "" || sess.User.DisplayName != "Login" {
		t.Fatalf("unexpected session %+v", sess)
	}

	tests := []struct {
		name string
		req  SignInRequest
	}{
		{"wrong password", SignInRequest{Email: "login@example.com", Password: "wrong-password"}},
		{"unknown email", SignInRequest{Email: "nobody@example.com", Password: "password123"}},
		{"empty", SignInRequest{}},
		{"no local password", SignInRequest{Email: "hosted@example.com", Password: "password123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SignIn(ctx, tt.req); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestSignOutRevokesTokenID(t *testing.T) {
	ctx := context.Background()
	svc, _, revoker := newTestService()
	sess, err := svc.SignUp(ctx, SignUpRequest{Email: "out@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	claims, err := auth.NewLocalVerifier(testSecret, "", "").Parse(ctx, sess.AccessToken)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := svc.SignOut(ctx, claims); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, ok := revoker.revoked["jti-test"]; !ok {
		t.Fatal("expected token id to be revoked")
	}

	if err := NewService(newMockUserStore(), nil, nil).SignOut(ctx, claims); err != nil {
		t.Fatalf("SignOut without revoker: %v", err)
	}
}
