package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"sicklecare/internal/crisis"
)

var (
	ErrNoAPIKey      = errors.New("API key not set")
	ErrNotConfigured = errors.New("service not configured")
)

const mapsTimeout = 5 * time.Second

// MapsService finds healthcare facilities near a free-form location
type MapsService struct {
	client *maps.Client
	logger *zap.Logger
}

// NewMapsService initializes the Google Maps client
func NewMapsService(apiKey string, logger *zap.Logger, opts ...maps.ClientOption) (*MapsService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google maps: %w", ErrNoAPIKey)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &MapsService{client: client, logger: logger}, nil
}

// FindNearby runs a hospital text search around location and returns the top
// results, filling in phone numbers from place details where available
func (s *MapsService) FindNearby(ctx context.Context, location string) ([]crisis.Facility, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, mapsTimeout)
	defer cancel()

	response, err := s.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query: "hospital near " + location,
		Type:  maps.PlaceTypeHospital,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search facilities near %q: %w", location, err)
	}

	results := response.Results
	if len(results) > crisis.MaxFacilities {
		results = results[:crisis.MaxFacilities]
	}

	facilities := make([]crisis.Facility, 0, len(results))
	for _, r := range results {
		facilities = append(facilities, crisis.Facility{
			Name:    r.Name,
			Address: r.FormattedAddress,
			Phone:   s.phone(ctx, r.PlaceID),
		})
	}
	return facilities, nil
}

// phone looks up a place's phone number; lookup errors leave it blank
func (s *MapsService) phone(ctx context.Context, placeID string) string {
	if placeID == "" {
		return ""
	}

	details, err := s.client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
		PlaceID: placeID,
		Fields: []maps.PlaceDetailsFieldMask{
			maps.PlaceDetailsFieldMaskFormattedPhoneNumber,
			maps.PlaceDetailsFieldMaskInternationalPhoneNumber,
		},
	})
	if err != nil {
		s.logger.Warn("[FindNearby] err client.PlaceDetails", zap.String("place_id", placeID), zap.Error(err))
		return ""
	}
	if details.InternationalPhoneNumber != "" {
		return details.InternationalPhoneNumber
	}
	return details.FormattedPhoneNumber
}
