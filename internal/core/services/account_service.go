package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/pkg/utils"
	"novaled/pkg/validation"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AccountConfig holds account limits.
type AccountConfig struct {
	BcryptCost     int
	MaxAvatarBytes int
}

// AccountService registers users, checks credentials and edits profiles.
type AccountService struct {
	users  ports.UserRepository
	auth   AuthService
	clock  clockwork.Clock
	config AccountConfig
	logger *zap.SugaredLogger
}

// NewAccountService creates an account service.
func NewAccountService(
	users ports.UserRepository,
	auth AuthService,
	clock clockwork.Clock,
	config AccountConfig,
	logger *zap.SugaredLogger,
) *AccountService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.MaxAvatarBytes == 0 {
		config.MaxAvatarBytes = 2 << 20
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AccountService{
		users:  users,
		auth:   auth,
		clock:  clock,
		config: config,
		logger: logger,
	}
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}

// checkUsername applies the format rules and the owner-only emoji rule.
func checkUsername(username string) error {
	if err := validation.ValidateUsername(username); err != nil {
		return invalidInput(err)
	}
	if domain.ContainsEmoji(username) && !domain.CanUseEmoji(username) {
		return domain.ErrEmojiNotAllowed
	}
	return nil
}

// Register creates an account and its public profile.
func (s *AccountService) Register(ctx context.Context, username, email, password, confirm string) (*domain.User, *TokenPair, error) {
	username = strings.TrimSpace(username)
	email = utils.NormalizeEmail(email)

	if err := checkUsername(username); err != nil {
		return nil, nil, err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, nil, invalidInput(err)
	}
	if err := validation.ValidatePasswordPair(password, confirm); err != nil {
		return nil, nil, invalidInput(err)
	}

	if err := s.ensureUnique(ctx, "", username, email); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:        domain.UserID(utils.NewUserID()),
		Username:  username,
		Email:     email,
		IsOwner:   domain.IsOwnerName(username),
		Avatar:    domain.DefaultAvatar,
		CreatedAt: s.clock.Now().UTC(),
	}
	account := &domain.Account{Email: email, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, user, account); err != nil {
		return nil, nil, err
	}

	tokens, err := s.auth.GenerateTokens(user.ID, user.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	s.logger.Infow("user registered",
		"user_id", user.ID,
		"email", utils.MaskEmail(email),
		"owner", user.IsOwner,
	)
	return user, tokens, nil
}

// Login checks credentials and returns the user.
func (s *AccountService) Login(ctx context.Context, username, password string) (*domain.User, *TokenPair, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	if err := s.checkPassword(ctx, user.ID, password); err != nil {
		return nil, nil, err
	}
	if user.Banned {
		s.logger.Infow("banned user refused", "user_id", user.ID)
		return nil, nil, domain.ErrBanned
	}

	tokens, err := s.auth.GenerateTokens(user.ID, user.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}
	return user, tokens, nil
}

// Refresh exchanges a refresh token for a new pair. The old refresh token is revoked.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.auth.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user.Banned {
		return nil, domain.ErrBanned
	}

	s.auth.Revoke(claims.ID, claims.ExpiresAt.Time)
	return s.auth.GenerateTokens(user.ID, user.Username)
}

// Logout revokes the access token described by claims.
func (s *AccountService) Logout(claims *Claims) {
	if claims == nil || claims.ExpiresAt == nil {
		return
	}
	s.auth.Revoke(claims.ID, claims.ExpiresAt.Time)
	s.logger.Infow("user logged out", "user_id", claims.UserID)
}

// Profile returns the public profile of id.
func (s *AccountService) Profile(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// ChangePassword re-authenticates with the current password before replacing it.
func (s *AccountService) ChangePassword(ctx context.Context, id domain.UserID, current, next, confirm string) error {
	if err := validation.ValidatePasswordPair(next, confirm); err != nil {
		return invalidInput(err)
	}
	if err := s.checkPassword(ctx, id, current); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, id, string(hash)); err != nil {
		return err
	}

	s.logger.Infow("password changed", "user_id", id)
	return nil
}

// UpdateUsername renames the user and recomputes the owner flag.
func (s *AccountService) UpdateUsername(ctx context.Context, id domain.UserID, username string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if err := checkUsername(username); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, id, username, ""); err != nil {
		return nil, err
	}

	err := s.users.Update(ctx, id, map[string]any{
		"username": username,
		"isOwner":  domain.IsOwnerName(username),
	})
	if err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

// UpdateAvatar replaces the avatar with an image data URL.
func (s *AccountService) UpdateAvatar(ctx context.Context, id domain.UserID, dataURL string) (*domain.User, error) {
	if _, err := validation.ParseDataURL(dataURL, s.config.MaxAvatarBytes, "image/"); err != nil {
		return nil, invalidInput(err)
	}
	if err := s.users.Update(ctx, id, map[string]any{"avatar": dataURL}); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

func (s *AccountService) checkPassword(ctx context.Context, id domain.UserID, password string) error {
	account, err := s.users.GetAccount(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return domain.ErrInvalidCredentials
	}
	return nil
}

// ensureUnique fails when another user already holds the username or email.
// Empty values are not checked.
func (s *AccountService) ensureUnique(ctx context.Context, self domain.UserID, username, email string) error {
	users, err := s.users.List(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.ID == self {
			continue
		}
		if username != "" && strings.EqualFold(u.Username, username) {
			return domain.ErrUsernameTaken
		}
		if email != "" && u.Email == email {
			return domain.ErrEmailTaken
		}
	}
	return nil
}
