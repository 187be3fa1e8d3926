package service

import (
	"context"
	"fmt"

	"policychat/internal/agent"
	"policychat/internal/model"
)

// ProfileService exposes the stored profile with its derived fields
type ProfileService struct {
	store agent.ProfileStore
}

// NewProfileService creates a new profile service
func NewProfileService(store agent.ProfileStore) *ProfileService {
	return &ProfileService{store: store}
}

// GetProfile loads the profile and the user's favorited listings.
func (s *ProfileService) GetProfile(ctx context.Context, userID int64) (*model.ProfileResponse, error) {
	profile, err := s.store.LoadProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	favorites, err := s.store.GetFavorites(ctx, userID, favoritesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	profile.PropertyInterests = favorites

	return &model.ProfileResponse{
		UserID:        userID,
		Profile:       profile,
		Completeness:  profile.Completeness(),
		MissingFields: profile.MissingFields(),
	}, nil
}
