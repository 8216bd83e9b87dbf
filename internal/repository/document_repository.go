package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/models"
	"github.com/mailstash/mailstash/internal/tracing"
)

const upsertBatchSize = 200

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) interfaces.DocumentRepository {
	return &documentRepository{db: db}
}

// EnsureSchema creates the documents table if it is missing. Idempotent.
func (r *documentRepository) EnsureSchema(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.EnsureSchema")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).AutoMigrate(&models.MailDocument{}); err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to ensure document schema: %w", err)
	}
	return nil
}

// UpsertBatch writes documents by primary key, updating on conflict. Returns
// the number of documents written.
func (r *documentRepository) UpsertBatch(ctx context.Context, docs []*models.MailDocument) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.UpsertBatch")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("batch.size", len(docs))

	if len(docs) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		CreateInBatches(docs, upsertBatchSize)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, fmt.Errorf("failed to upsert documents: %w", result.Error)
	}

	return len(docs), nil
}

// DeleteByUids removes documents by UID set scoped to a folder. IMAP keys are
// numeric uid values, POP-style keys match the pop_id column.
func (r *documentRepository) DeleteByUids(ctx context.Context, folderName string, uids []string, isPopStyleKey bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.DeleteByUids")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("uids.count", len(uids))

	if len(uids) == 0 {
		return nil
	}

	query := r.db.WithContext(ctx).Where("folder_name = ?", folderName)

	if isPopStyleKey {
		query = query.Where("pop_id IN ?", uids)
	} else {
		numeric := make([]int64, 0, len(uids))
		for _, uid := range uids {
			n, err := strconv.ParseInt(uid, 10, 64)
			if err != nil {
				continue
			}
			numeric = append(numeric, n)
		}
		query = query.Where("uid IN ?", numeric)
	}

	result := query.Delete(&models.MailDocument{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete documents: %w", result.Error)
	}

	return nil
}

// ClearFolder tombstones all documents for a folder.
func (r *documentRepository) ClearFolder(ctx context.Context, folderName string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.ClearFolder")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagFolder(span, folderName)

	result := r.db.WithContext(ctx).
		Where("folder_name = ?", folderName).
		Delete(&models.MailDocument{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to clear folder data: %w", result.Error)
	}

	return nil
}

// StoredUids returns the UID set currently indexed for a folder.
func (r *documentRepository) StoredUids(ctx context.Context, folderName string, isPopStyleKey bool) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.StoredUids")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagFolder(span, folderName)

	var uids []string
	column := "uid"
	if isPopStyleKey {
		column = "pop_id"
	}

	err := r.db.WithContext(ctx).
		Model(&models.MailDocument{}).
		Where("folder_name = ?", folderName).
		Pluck(column, &uids).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get stored uids: %w", err)
	}

	return uids, nil
}

// FlagHash returns the stored flag hash for a document id, or -1 when the
// document is not indexed.
func (r *documentRepository) FlagHash(ctx context.Context, docID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.FlagHash")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var doc models.MailDocument
	result := r.db.WithContext(ctx).
		Select("flag_hash").
		Where("id = ?", docID).
		First(&doc)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return -1, nil
		}
		tracing.TraceErr(span, result.Error)
		return -1, fmt.Errorf("failed to get flag hash: %w", result.Error)
	}

	return doc.FlagHash, nil
}

// FolderNames returns the distinct folder names present in the store.
func (r *documentRepository) FolderNames(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.FolderNames")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var names []string
	err := r.db.WithContext(ctx).
		Model(&models.MailDocument{}).
		Distinct("folder_name").
		Pluck("folder_name", &names).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get folder names: %w", err)
	}

	return names, nil
}

func (r *documentRepository) CountForFolder(ctx context.Context, folderName string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "documentRepository.CountForFolder")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagFolder(span, folderName)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MailDocument{}).
		Where("folder_name = ?", folderName).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count folder documents: %w", err)
	}

	return count, nil
}
