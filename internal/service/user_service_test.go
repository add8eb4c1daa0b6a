package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func setupUserService(t *testing.T, name string) *UserService {
	t.Helper()
	return NewUserService(setupServiceTestDB(t, name)).WithHashCost(bcrypt.MinCost)
}

func TestUserServiceSignupAndAuthenticate(t *testing.T) {
	svc := setupUserService(t, "user-signup")
	ctx := context.Background()

	user, err := svc.Signup(ctx, SignupInput{Fullname: "Jane Doe", Email: " Jane@Example.com ", Password: "Secret#123"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Email != "jane@example.com" || user.Username != "jane" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Password == "Secret#123" {
		t.Fatalf("password must be hashed")
	}

	if _, err := svc.Authenticate(ctx, "JANE@example.com", "Secret#123"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "jane@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "Secret#123"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestUserServiceSignupUsernameCollision(t *testing.T) {
	svc := setupUserService(t, "user-collision")
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupInput{Fullname: "Jane Doe", Email: "jane@example.com", Password: "Secret#123"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	other, err := svc.Signup(ctx, SignupInput{Fullname: "Jane Roe", Email: "jane@other.org", Password: "Secret#123"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if !strings.HasPrefix(other.Username, "jane") || len(other.Username) != len("jane")+16 {
		t.Fatalf("expected suffixed username, got %q", other.Username)
	}
}

func TestUserServiceSignupRejects(t *testing.T) {
	svc := setupUserService(t, "user-reject")
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{Fullname: "J0", Email: "not-an-email", Password: "weak"})
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 3 {
		t.Fatalf("expected three field errors, got %v", err)
	}

	if _, err := svc.Signup(ctx, SignupInput{Fullname: "Jane Doe", Email: "jane@example.com", Password: "Secret#123"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, err = svc.Signup(ctx, SignupInput{Fullname: "Jane Doe", Email: "JANE@example.com", Password: "Secret#123"})
	if !errors.Is(err, ErrEmailTaken) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected email conflict, got %v", err)
	}
}

func TestUserServiceUpdateProfile(t *testing.T) {
	svc := setupUserService(t, "user-profile")
	ctx := context.Background()

	jane, err := svc.Signup(ctx, SignupInput{Fullname: "Jane Doe", Email: "jane@example.com", Password: "Secret#123"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Signup(ctx, SignupInput{Fullname: "John Doe", Email: "john@example.com", Password: "Secret#123"}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	img := "https://cdn.example.com/jane.png"
	updated, err := svc.UpdateProfile(ctx, jane.ID, ProfileUpdate{ProfileImg: &img})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.ProfileImg != img || updated.Fullname != "Jane Doe" {
		t.Fatalf("unexpected profile: %+v", updated)
	}

	taken := "john"
	if _, err := svc.UpdateProfile(ctx, jane.ID, ProfileUpdate{Username: &taken}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected username conflict, got %v", err)
	}

	bad := "x"
	if _, err := svc.UpdateProfile(ctx, jane.ID, ProfileUpdate{Username: &bad}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	if _, err := svc.UpdateProfile(ctx, 999, ProfileUpdate{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestUserServiceEnsureUser(t *testing.T) {
	svc := setupUserService(t, "user-ensure")
	ctx := context.Background()
	input := SignupInput{Fullname: "Admin User", Email: "admin@example.com", Password: "Admin#1234"}

	first, created, err := svc.EnsureUser(ctx, input)
	if err != nil || !created {
		t.Fatalf("expected user created, got created=%v err=%v", created, err)
	}
	second, created, err := svc.EnsureUser(ctx, input)
	if err != nil || created {
		t.Fatalf("expected existing user, got created=%v err=%v", created, err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same user, got %d and %d", first.ID, second.ID)
	}
}

func TestStrongPassword(t *testing.T) {
	cases := map[string]bool{
		"Secret#123": true,
		"secret#123": false,
		"SECRET#123": false,
		"Secret1234": false,
		"Se#1":       false,
		"Pass word1": true,
	}
	for password, want := range cases {
		if got := StrongPassword(password); got != want {
			t.Errorf("StrongPassword(%q) = %v, want %v", password, got, want)
		}
	}
}
