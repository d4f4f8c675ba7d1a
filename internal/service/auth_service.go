package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/apperror"
)

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	profileRepo ports.ProfileRepository
	hashSvc     ports.HashService
	tokenSvc    ports.TokenService
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	profileRepo ports.ProfileRepository,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		profileRepo: profileRepo,
		hashSvc:     hashSvc,
		tokenSvc:    tokenSvc,
	}
}

// Register creates a login for a peer ID. Both the peer ID and the username
// must be unused.
func (s *AuthServiceImpl) Register(ctx context.Context, req ports.RegisterRequest) (*domain.Profile, error) {
	existing, err := s.profileRepo.GetByID(ctx, req.PeerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check peer id: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrProfileExists()
	}

	existing, err = s.profileRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check username: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrUsernameExists()
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	now := time.Now().UTC()
	profile := &domain.Profile{
		ID:           req.PeerID,
		Username:     req.Username,
		PasswordHash: passwordHash,
		Handle:       req.Handle,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create profile: %w", err))
	}

	return profile, nil
}

// Login validates credentials and returns a JWT whose subject is the peer ID.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	profile, err := s.profileRepo.GetByUsername(ctx, username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("find profile: %w", err))
	}
	if profile == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, profile.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(profile.ID)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	return token, expiry, nil
}
