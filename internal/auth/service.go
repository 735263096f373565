package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pauljones0/dealboard/internal/models"
	"github.com/pauljones0/dealboard/internal/storage"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type Service struct {
	users    storage.UserStore
	tokens   *TokenManager
	verifier *Verifier
	admins   map[string]bool
}

// NewService builds the account service. Emails listed in adminEmails get
// the ADMIN role when they register.
func NewService(users storage.UserStore, tokens *TokenManager, verifier *Verifier, adminEmails []string) *Service {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &Service{users: users, tokens: tokens, verifier: verifier, admins: admins}
}

func (s *Service) Register(ctx context.Context, name, email, password string) (models.User, error) {
	name, email = strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return models.User{}, fmt.Errorf("%w: name, email and password are required", models.ErrMissingRequiredField)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	role := models.RoleUser
	if s.admins[email] {
		role = models.RoleAdmin
	}

	user, err := s.users.CreateUser(ctx, models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         role,
	})
	if err != nil {
		return models.User{}, err
	}

	if s.verifier != nil {
		if err := s.verifier.Issue(ctx, user); err != nil {
			slog.Warn("Failed to send verification email", "user", user.ID, "error", err)
		}
	}
	return user, nil
}

// Login checks credentials and returns a signed access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, models.User, error) {
	user, err := s.users.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", models.User{}, ErrInvalidCredentials
		}
		return "", models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.User{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		return "", models.User{}, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, user, nil
}

// ResendVerification mails a new link to an unverified user.
func (s *Service) ResendVerification(ctx context.Context, userID string) error {
	if s.verifier == nil {
		return errors.New("email verification is not configured")
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.verifier.Issue(ctx, user)
}

// Verify redeems an emailed token.
func (s *Service) Verify(ctx context.Context, token string) (models.User, error) {
	if s.verifier == nil {
		return models.User{}, ErrInvalidVerificationToken
	}
	return s.verifier.Verify(ctx, token)
}

func (s *Service) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.users.GetUser(ctx, id)
}

func (s *Service) Tokens() *TokenManager {
	return s.tokens
}
