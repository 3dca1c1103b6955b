package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joshua-takyi/staybook/internal/apperrors"
	"github.com/joshua-takyi/staybook/internal/helpers"
	"github.com/joshua-takyi/staybook/internal/models"
)

type profileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// UserService resolves a bearer credential into the caller identity. The
// role always comes from the profiles table; a token cannot grant itself
// admin.
type UserService struct {
	verifier helpers.TokenVerifier
	profiles profileStore
	logger   *slog.Logger
}

func NewUserService(verifier helpers.TokenVerifier, profiles profileStore, logger *slog.Logger) *UserService {
	return &UserService{
		verifier: verifier,
		profiles: profiles,
		logger:   logger,
	}
}

func (us *UserService) Authenticate(ctx context.Context, token string) (*helpers.EnhancedClaims, error) {
	claims, err := us.verifier.Verify(ctx, token)
	if err != nil {
		us.logger.Debug("Token rejected", "error", err)
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, err)
	}
	userID, err := claims.SubjectID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, err)
	}

	enhanced := &helpers.EnhancedClaims{
		CustomClaims: claims,
		Role:         models.RoleGuest,
		UserID:       userID,
		Email:        claims.Email,
		Fullname:     claims.FullName(),
	}

	profile, err := us.profiles.GetProfile(ctx, userID)
	switch {
	case err == nil:
		if profile.Role != "" {
			enhanced.Role = profile.Role
		}
		if profile.FullName != "" {
			enhanced.Fullname = profile.FullName
		}
		if enhanced.Email == "" {
			enhanced.Email = profile.Email
		}
		enhanced.Phone = profile.Phone
	case errors.Is(err, models.ErrNoRows):
		// signed up but no profile row yet
	default:
		us.logger.Error("Failed to load profile", "user_id", userID, "error", err)
		return nil, apperrors.Internal(err)
	}

	return enhanced, nil
}

func (us *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, err := us.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNoRows) {
			return nil, apperrors.New(apperrors.KindNotFound, apperrors.CodeNotFound, "profile not found", nil)
		}
		return nil, apperrors.Internal(err)
	}
	return profile, nil
}
