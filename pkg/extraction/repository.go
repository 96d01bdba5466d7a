package extraction

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrEpisodeNotFound   = errors.New("episode not found")
	ErrNoApprovedRequest = errors.New("no approved product requests found")
)

// EpisodeStore loads the entities an extraction reads.
type EpisodeStore interface {
	// FindEpisode returns the episode with its patient, or ErrEpisodeNotFound.
	FindEpisode(ctx context.Context, id string) (*Episode, error)
	// LatestApprovedRequest returns the newest approved request with provider,
	// facility and product, or ErrNoApprovedRequest.
	LatestApprovedRequest(ctx context.Context, episodeID string) (*ProductRequest, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Patient{}, &Provider{}, &Facility{}, &Product{}, &Episode{}, &ProductRequest{})
}

func (r *Repository) FindEpisode(ctx context.Context, id string) (*Episode, error) {
	var episode Episode
	result := r.db.WithContext(ctx).
		Preload("Patient").
		Where("id = ?", id).
		First(&episode)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrEpisodeNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &episode, nil
}

func (r *Repository) LatestApprovedRequest(ctx context.Context, episodeID string) (*ProductRequest, error) {
	var request ProductRequest
	result := r.db.WithContext(ctx).
		Preload("Provider").
		Preload("Facility").
		Preload("Product").
		Where("episode_id = ? AND status = ?", episodeID, StatusApproved).
		Order("created_at DESC").
		First(&request)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNoApprovedRequest
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &request, nil
}
