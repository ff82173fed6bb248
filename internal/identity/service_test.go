package identity

import (
	"context"
	"errors"
	"testing"
)

func newTestService() *Service {
	s := NewService(NewMemoryRepo())
	s.keygen = func() (string, string, error) { return "priv-pem", "pub-pem", nil }
	return s
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	u, err := s.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if u.PublicKey != "pub-pem" || u.PrivateKey != "priv-pem" {
		t.Fatalf("expected key pair on record")
	}
	if u.PasswordHash == "hunter22" || u.PasswordHash == "" {
		t.Fatalf("password must be stored hashed")
	}

	got, err := s.Authenticate(ctx, "alice", "hunter22")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected user %d, got %d", u.ID, got.ID)
	}

	if _, err := s.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "nobody", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	if _, err := s.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := s.Register(ctx, RegisterRequest{Username: "alice", Email: "other@example.com", Password: "pw"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegisterRejectsEmptyFields(t *testing.T) {
	s := newTestService()
	if _, err := s.Register(context.Background(), RegisterRequest{Username: " ", Email: "a@b.c", Password: "pw"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestResolveUser(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	u, err := s.Register(ctx, RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ok, err := s.ResolveUser(ctx, u.ID)
	if err != nil || !ok {
		t.Fatalf("expected user to resolve, ok=%v err=%v", ok, err)
	}
	ok, err = s.ResolveUser(ctx, 9999)
	if err != nil || ok {
		t.Fatalf("expected unknown user, ok=%v err=%v", ok, err)
	}
}

func TestListExcludesRequester(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	a, _ := s.Register(ctx, RegisterRequest{Username: "alice", Email: "a@example.com", Password: "pw"})
	b, _ := s.Register(ctx, RegisterRequest{Username: "bob", Email: "b@example.com", Password: "pw"})

	out, err := s.List(ctx, a.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].ID != b.ID {
		t.Fatalf("expected only bob, got %+v", out)
	}
}

func TestGenerateKeyPairProducesPEM(t *testing.T) {
	if testing.Short() {
		t.Skip("rsa generation is slow")
	}
	priv, pub, err := generateKeyPair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if len(priv) == 0 || len(pub) == 0 {
		t.Fatalf("expected PEM output")
	}
}
