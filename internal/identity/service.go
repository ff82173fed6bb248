package identity

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAlreadyExists      = errors.New("identity: username or email already exists")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrInvalidInput       = errors.New("identity: invalid input")
)

// dummyHash is a throwaway bcrypt hash compared against when the username
// does not exist, keeping the failure path timing uniform.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Service owns account registration and credential checks.
//
// Key generation happens here because the original product attaches a key
// pair to every account; the signaling core treats the keys as opaque.
type Service struct {
	repo Repository

	// keygen is injectable so tests skip the expensive RSA generation.
	keygen func() (privatePEM, publicPEM string, err error)
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, keygen: generateKeyPair}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" || req.Password == "" {
		return User{}, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	priv, pub, err := s.keygen()
	if err != nil {
		return User{}, err
	}

	return s.repo.Insert(ctx, User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		PublicKey:    pub,
		PrivateKey:   priv,
	})
}

// Authenticate checks a username/password pair and returns the account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, found, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if !found {
		// Burn a comparison anyway so missing users and wrong passwords
		// take the same time.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// ResolveUser reports whether a user id refers to an existing account.
// The session service uses this to validate call participants.
func (s *Service) ResolveUser(ctx context.Context, id int64) (bool, error) {
	_, found, err := s.repo.GetByID(ctx, id)
	return found, err
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, bool, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns every account except the requester, for the call picker.
func (s *Service) List(ctx context.Context, excludeID int64) ([]User, error) {
	return s.repo.ListExcept(ctx, excludeID)
}
