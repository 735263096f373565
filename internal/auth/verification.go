package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/dealboard/internal/cache"
	"github.com/pauljones0/dealboard/internal/models"
	"github.com/pauljones0/dealboard/internal/storage"
)

const (
	verifyKeyPrefix = "verify:"
	verifyTTL       = 24 * time.Hour
)

var (
	ErrInvalidVerificationToken = errors.New("verification link is invalid or expired")
	ErrAlreadyVerified          = errors.New("email already verified")
)

// Verifier issues and redeems one-time email verification links.
type Verifier struct {
	keys    cache.KeyStore
	mailer  Mailer
	users   storage.UserStore
	baseURL string
}

func NewVerifier(keys cache.KeyStore, mailer Mailer, users storage.UserStore, baseURL string) *Verifier {
	return &Verifier{keys: keys, mailer: mailer, users: users, baseURL: baseURL}
}

// Issue stores a fresh token for the user and mails the link.
func (v *Verifier) Issue(ctx context.Context, user models.User) error {
	if user.EmailVerified {
		return ErrAlreadyVerified
	}
	token := uuid.NewString()
	if err := v.keys.Set(ctx, verifyKeyPrefix+token, user.ID, verifyTTL); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}

	link := fmt.Sprintf("%s/api/auth/verify?token=%s", v.baseURL, token)
	body := fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening the link below. It expires in 24 hours.\n\n%s\n", user.Name, link)
	if err := v.mailer.Send(ctx, user.Email, "Verify your email", body); err != nil {
		_ = v.keys.Del(ctx, verifyKeyPrefix+token)
		return err
	}
	return nil
}

// Verify redeems a token and marks its user verified.
func (v *Verifier) Verify(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrInvalidVerificationToken
	}
	userID, err := v.keys.GetDel(ctx, verifyKeyPrefix+token)
	if errors.Is(err, cache.ErrKeyNotFound) {
		return models.User{}, ErrInvalidVerificationToken
	}
	if err != nil {
		return models.User{}, err
	}
	if err := v.users.MarkEmailVerified(ctx, userID); err != nil {
		return models.User{}, fmt.Errorf("failed to verify user %s: %w", userID, err)
	}
	user, err := v.users.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}
