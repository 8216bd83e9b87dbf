package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/tracing"
)

type syncErrorRepository struct {
	db *gorm.DB
}

func NewSyncErrorRepository(db *gorm.DB) interfaces.SyncErrorRepository {
	return &syncErrorRepository{db: db}
}

func (r *syncErrorRepository) Record(ctx context.Context, syncError *models.SyncError) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncErrorRepository.Record")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if syncError.ID == "" {
		syncError.ID = uuid.New().String()
	}

	if err := r.db.WithContext(ctx).Create(syncError).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to record sync error: %w", err)
	}

	return nil
}
