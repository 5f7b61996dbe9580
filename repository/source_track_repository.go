package repository

import (
	"context"
	"errors"
	"fmt"

	"MiniMixLab/db"
	"MiniMixLab/model"

	"gorm.io/gorm"
)

// SourceTrackRepository defines the interface for source track data operations.
type SourceTrackRepository interface {
	Create(ctx context.Context, track *model.SourceTrack) error
	GetByID(ctx context.Context, id string) (*model.SourceTrack, error)
	ListByUserID(ctx context.Context, userID int64) ([]*model.SourceTrack, error)
	Delete(ctx context.Context, id string, userID int64) error
}

// gormSourceTrackRepository implements SourceTrackRepository with GORM.
type gormSourceTrackRepository struct {
	db *gorm.DB
}

// NewSourceTrackRepository creates a repository backed by the global GORM connection.
func NewSourceTrackRepository() SourceTrackRepository {
	return &gormSourceTrackRepository{db: db.GormDB}
}

// Create registers a new source track.
func (r *gormSourceTrackRepository) Create(ctx context.Context, track *model.SourceTrack) error {
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return fmt.Errorf("failed to create source track %s: %w", track.ID, err)
	}
	return nil
}

// GetByID retrieves a source track by its ID. Returns (nil, nil) when not found.
func (r *gormSourceTrackRepository) GetByID(ctx context.Context, id string) (*model.SourceTrack, error) {
	var track model.SourceTrack
	err := r.db.WithContext(ctx).First(&track, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // Source track not found
		}
		return nil, fmt.Errorf("failed to query source track %s: %w", id, err)
	}
	return &track, nil
}

// ListByUserID retrieves all source tracks owned by a user, newest first.
func (r *gormSourceTrackRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.SourceTrack, error) {
	var tracks []*model.SourceTrack
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list source tracks for user %d: %w", userID, err)
	}
	return tracks, nil
}

// Delete removes a source track owned by the given user.
func (r *gormSourceTrackRepository) Delete(ctx context.Context, id string, userID int64) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&model.SourceTrack{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete source track %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
