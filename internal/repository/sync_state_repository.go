package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/mailstash/mailstash/interfaces"
	mailstash_errors "github.com/mailstash/mailstash/internal/errors"
	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/tracing"
	"github.com/mailstash/mailstash/internal/utils"
)

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) interfaces.SyncStateRepository {
	return &syncStateRepository{db: db}
}

// GetState retrieves the sync state for a folder. A missing record yields a
// freshly initialized state, never a not-found error.
func (r *syncStateRepository) GetState(ctx context.Context, folderURL string) (*models.FolderSyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.GetState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var state models.FolderSyncState
	result := r.db.WithContext(ctx).
		Where("id = ?", utils.FolderKey(folderURL)).
		First(&state)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return &models.FolderSyncState{
				ID:        utils.FolderKey(folderURL),
				FolderURL: folderURL,
				LastUID:   1,
				Exists:    true,
			}, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get sync state: %w", result.Error)
	}

	return &state, nil
}

// SaveState persists the sync state for a folder. Failures wrap
// ErrPersistence; callers must not advance the watermark past a failed save.
func (r *syncStateRepository) SaveState(ctx context.Context, state *models.FolderSyncState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.SaveState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if state.ID == "" {
		state.ID = utils.FolderKey(state.FolderURL)
	}
	state.UpdatedAt = utils.Now()

	// Try to update first
	result := r.db.WithContext(ctx).
		Model(&models.FolderSyncState{}).
		Where("id = ?", state.ID).
		Updates(map[string]interface{}{
			"uid_validity":     state.UIDValidity,
			"last_uid":         state.LastUID,
			"last_schedule":    state.LastSchedule,
			"last_indexed":     state.LastIndexed,
			"last_took_millis": state.LastTookMillis,
			"last_count":       state.LastCount,
			"exists":           state.Exists,
			"updated_at":       state.UpdatedAt,
		})

	// If no record was updated, create a new one
	if result.Error == nil && result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(state)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return errors.Wrapf(mailstash_errors.ErrPersistence, "folder %s: %v", state.FolderURL, result.Error)
	}

	return nil
}

// AllStates returns every tracked folder state.
func (r *syncStateRepository) AllStates(ctx context.Context) ([]models.FolderSyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.AllStates")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var states []models.FolderSyncState
	if err := r.db.WithContext(ctx).Find(&states).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get sync states: %w", err)
	}

	return states, nil
}
