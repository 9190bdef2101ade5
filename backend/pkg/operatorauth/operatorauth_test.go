package operatorauth

import (
	"context"
	"errors"
	"testing"

	"github.com/centralbank/bankcore/backend/pkg/store"
)

func TestRegisterThenLoginIssuesVerifiableToken(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemStore(), "test-secret")

	if err := svc.Register(ctx, "alice", "s3cret", "admin"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	token, err := svc.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Username != "alice" || claims.Role != "admin" {
		t.Fatalf("claims = %+v, want username=alice role=admin", claims)
	}
}

func TestRegisterDuplicateUsernameFails(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemStore(), "test-secret")

	if err := svc.Register(ctx, "alice", "s3cret", "admin"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Register(ctx, "alice", "other", "admin"); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("duplicate Register: got %v, want ErrOperatorExists", err)
	}
}

func TestLoginWrongPasswordFails(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemStore(), "test-secret")

	if err := svc.Register(ctx, "alice", "s3cret", "admin"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login with wrong password: got %v, want ErrInvalidCredentials", err)
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	svc := NewService(store.NewMemStore(), "test-secret")
	if _, err := svc.VerifyToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("VerifyToken(garbage): got %v, want ErrInvalidToken", err)
	}
}
