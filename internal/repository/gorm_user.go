package repository

import (
	"context"
	"fmt"

	"kinship/internal/models"

	"gorm.io/gorm"
)

type userRepository struct {
	gormBase
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{gormBase: newGormBase(db, models.CollectionUser, "User")}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.SyncCounts()
	return gormCreate(ctx, r.gormBase, user, user.RecordID)
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return gormFirst[models.User](ctx, r.gormBase, id)
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	defer r.track("get")()
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, r.fail(ctx, "get", username, err)
	}
	return &user, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []uint) ([]*models.User, error) {
	defer r.track("list")()
	users := make([]*models.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&users).Error; err != nil {
		return nil, r.fail(ctx, "list", nil, err)
	}
	return users, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	defer r.track("list")()
	var users []*models.User
	if err := paginate(r.db.WithContext(ctx).Order("id"), limit, offset).Find(&users).Error; err != nil {
		return nil, r.fail(ctx, "list", nil, err)
	}
	return users, nil
}

// ListRequestedBy narrows with LIKE on the serialized id set, then checks
// membership exactly.
func (r *userRepository) ListRequestedBy(ctx context.Context, requesterID uint) ([]*models.User, error) {
	defer r.track("list")()
	var candidates []*models.User
	if err := r.db.WithContext(ctx).
		Where("pending_requests LIKE ?", fmt.Sprintf("%%%d%%", requesterID)).
		Order("id").
		Find(&candidates).Error; err != nil {
		return nil, r.fail(ctx, "list", nil, err)
	}
	users := make([]*models.User, 0, len(candidates))
	for _, u := range candidates {
		if u.PendingRequests.Contains(requesterID) {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	defer r.track("update")()
	user.SyncCounts()
	return gormSave(ctx, r.db, r.gormBase, user, user.ID)
}

func (r *userRepository) UpdatePair(ctx context.Context, a, b *models.User) error {
	defer r.track("update_pair")()
	a.SyncCounts()
	b.SyncCounts()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := gormSave(ctx, tx, r.gormBase, a, a.ID); err != nil {
			return err
		}
		return gormSave(ctx, tx, r.gormBase, b, b.ID)
	})
	if err != nil {
		return r.fail(ctx, "update_pair", nil, err)
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uint) error {
	return gormDelete[models.User](ctx, r.gormBase, id)
}
