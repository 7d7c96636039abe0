package repository

import (
	"context"
	"errors"
	"strings"

	"kinship/internal/cache"
	"kinship/internal/models"
	"kinship/internal/observability"

	"gorm.io/gorm"
)

// NewGormStore returns a Store backed by db. postCache may be nil.
func NewGormStore(db *gorm.DB, postCache *cache.Cache) *Store {
	return &Store{
		Users:         NewUserRepository(db),
		Messages:      NewMessageRepository(db),
		Posts:         NewPostRepository(db, postCache),
		Comments:      NewCommentRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

// gormBase carries what every gorm repository needs for one collection.
type gormBase struct {
	db         *gorm.DB
	collection string
	resource   string
	log        *observability.RepoLogger
}

func newGormBase(db *gorm.DB, collection, resource string) gormBase {
	return gormBase{
		db:         db,
		collection: collection,
		resource:   resource,
		log:        observability.NewRepoLogger(collection),
	}
}

func (b gormBase) track(operation string) func() {
	return observability.TrackStore(b.collection, operation)
}

// fail converts a driver error into an AppError and logs it.
func (b gormBase) fail(ctx context.Context, operation string, id interface{}, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(b.resource, id)
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	b.log.LogError(ctx, err, operation)
	return models.NewStoreError(err)
}

func gormFirst[T any](ctx context.Context, b gormBase, id uint) (*T, error) {
	defer b.track("get")()
	var rec T
	if err := b.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, b.fail(ctx, "get", id, err)
	}
	return &rec, nil
}

func gormCreate[T any](ctx context.Context, b gormBase, rec *T, id func() uint) error {
	defer b.track("create")()
	if err := b.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError(b.resource + " already exists")
		}
		return b.fail(ctx, "create", nil, err)
	}
	b.log.LogCreate(ctx, map[string]interface{}{"id": id()})
	return nil
}

// gormSave writes every column of an existing row; a missing row is NotFound.
func gormSave[T any](ctx context.Context, tx *gorm.DB, b gormBase, rec *T, id uint) error {
	res := tx.WithContext(ctx).Model(rec).Select("*").Omit("created_at").Updates(rec)
	if res.Error != nil {
		return b.fail(ctx, "update", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(b.resource, id)
	}
	b.log.LogUpdate(ctx, map[string]interface{}{"id": id})
	return nil
}

func gormDelete[T any](ctx context.Context, b gormBase, id uint) error {
	defer b.track("delete")()
	var model T
	res := b.db.WithContext(ctx).Delete(&model, id)
	if res.Error != nil {
		return b.fail(ctx, "delete", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError(b.resource, id)
	}
	b.log.LogDelete(ctx, map[string]interface{}{"id": id})
	return nil
}

func paginate(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}
