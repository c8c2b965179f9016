package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crowd-labeling-api/internal/auth"
	"github.com/crowd-labeling-api/internal/models"
	"github.com/crowd-labeling-api/internal/repository"
	"github.com/crowd-labeling-api/internal/validation"
	"github.com/rs/zerolog"
)

// userService is the concrete implementation of UserService
type userService struct {
	repos  *repository.Repositories
	issuer *auth.Issuer
	log    zerolog.Logger
}

// newUserService creates a new UserService
func newUserService(repos *repository.Repositories, issuer *auth.Issuer, log zerolog.Logger) *userService {
	return &userService{
		repos:  repos,
		issuer: issuer,
		log:    log.With().Str("service", "user").Logger(),
	}
}

// Login returns a token for the client, creating its user on first sight
func (s *userService) Login(ctx context.Context, clientID string) (string, *models.User, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", nil, validation.Errors{{Field: "client_id", Message: "client_id is required"}}
	}

	user, err := getOrCreateUser(ctx, s.repos.User, clientID, models.ClientTypeNormal)
	if err != nil {
		return "", nil, err
	}
	if user.IsBanned() {
		return "", nil, fmt.Errorf("user %d is banned: %w", user.ID, ErrForbidden)
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return "", nil, err
	}

	s.log.Debug().Int64("user_id", user.ID).Msg("User logged in")
	return token, user, nil
}

// getOrCreateUser looks a user up by client ID and creates it when missing.
// A concurrent creation of the same client ID is resolved by reading again.
func getOrCreateUser(ctx context.Context, users repository.UserRepository, clientID string, clientType models.ClientType) (*models.User, error) {
	user, err := users.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user = &models.User{ClientID: clientID, ClientType: clientType}
	err = users.Create(ctx, user)
	if errors.Is(err, repository.ErrConflict) {
		user, err = users.GetByClientID(ctx, clientID)
		if err == nil && user == nil {
			err = fmt.Errorf("user %q vanished after conflict", clientID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate resolves a token to its current user
func (s *userService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.issuer.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := s.repos.User.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", claims.UserID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", claims.UserID, ErrNotFound)
	}
	if user.IsBanned() {
		return nil, fmt.Errorf("user %d is banned: %w", user.ID, ErrForbidden)
	}
	return user, nil
}

// List returns all users
func (s *userService) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.repos.User.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// SetClientType changes the permission level of a user
func (s *userService) SetClientType(ctx context.Context, userID int64, clientType models.ClientType) (*models.User, error) {
	if !clientType.Valid() {
		return nil, validation.Errors{{
			Field:   "client_type",
			Message: "invalid client_type, must be one of: -1, 0, 1",
			Value:   int(clientType),
		}}
	}

	updated, err := s.repos.User.UpdateClientType(ctx, userID, clientType)
	if err != nil {
		return nil, fmt.Errorf("update user %d: %w", userID, err)
	}
	if !updated {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	user, err := s.repos.User.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	s.log.Info().
		Int64("user_id", userID).
		Str("client_type", clientType.String()).
		Msg("User client type changed")

	return user, nil
}
