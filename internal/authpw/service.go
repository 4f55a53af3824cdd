// Package authpw provides email/password accounts with email verification
// and password reset flows.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"commons/api/internal/store"
	"commons/api/internal/util"
)

const (
	minPasswordLength  = 8
	verificationExpiry = 24 * time.Hour
	resetExpiry        = time.Hour
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type UserStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	SetVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyEmail(ctx context.Context, token string, now time.Time) (store.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, token, userID string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, token string, now time.Time) (string, error)
}

type Service struct {
	store UserStore
	now   func() time.Time
}

func NewService(users UserStore) *Service {
	return &Service{store: users, now: time.Now}
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

type SignUpResult struct {
	User              store.User
	VerificationToken string
}

// SignUp registers a new member account. The account stays unverified until
// the emailed token comes back through VerifyEmail.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (SignUpResult, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	name := strings.TrimSpace(req.DisplayName)
	if email == "" || req.Password == "" || name == "" {
		return SignUpResult{}, fmt.Errorf("%w: email, password, and display name are required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return SignUpResult{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("hash password: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return SignUpResult{}, fmt.Errorf("generate verification token: %w", err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(verificationExpiry)
	user := store.User{
		ID:                    util.NewID("user"),
		DisplayName:           name,
		Email:                 email,
		PasswordHash:          string(hash),
		Role:                  "member",
		VerificationToken:     token,
		VerificationExpiresAt: &expiresAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return SignUpResult{}, ErrEmailTaken
		}
		return SignUpResult{}, fmt.Errorf("create user: %w", err)
	}

	return SignUpResult{User: user, VerificationToken: token}, nil
}

// SignIn checks credentials and returns the account. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return store.User{}, ErrEmailNotVerified
	}
	return user, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, fmt.Errorf("%w: verification token required", ErrInvalidInput)
	}
	user, err := s.store.VerifyEmail(ctx, token, s.now().UTC())
	if err != nil {
		return store.User{}, ErrInvalidToken
	}
	return user, nil
}

// RequestPasswordReset issues a reset token for the account behind email. An
// unknown email returns an empty token and no error, so the endpoint cannot
// be used to probe which addresses have accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (store.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, "", nil
	}

	token, err := randomToken()
	if err != nil {
		return store.User{}, "", fmt.Errorf("generate reset token: %w", err)
	}
	if err := s.store.CreatePasswordReset(ctx, token, user.ID, s.now().UTC().Add(resetExpiry)); err != nil {
		return store.User{}, "", fmt.Errorf("save password reset: %w", err)
	}
	return user, token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return fmt.Errorf("%w: token and new password are required", ErrInvalidInput)
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	userID, err := s.store.ConsumePasswordReset(ctx, token, s.now().UTC())
	if err != nil {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
