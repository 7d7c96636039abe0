package repository

import (
	"context"

	"kinship/internal/cache"
	"kinship/internal/models"

	"gorm.io/gorm"
)

type postRepository struct {
	gormBase
	cache *cache.Cache
}

// NewPostRepository returns a PostRepository that reads single posts
// through postCache when one is given.
func NewPostRepository(db *gorm.DB, postCache *cache.Cache) PostRepository {
	return &postRepository{gormBase: newGormBase(db, models.CollectionPost, "Post"), cache: postCache}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if post.Reactions == nil {
		post.Reactions = models.Reactions{}
	}
	return gormCreate(ctx, r.gormBase, post, post.RecordID)
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		found, err := gormFirst[models.Post](ctx, r.gormBase, id)
		if err != nil {
			return err
		}
		post = *found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	defer r.track("list")()
	var posts []*models.Post
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if err := paginate(q, limit, offset).Find(&posts).Error; err != nil {
		return nil, r.fail(ctx, "list", nil, err)
	}
	return posts, nil
}

func (r *postRepository) ListByAuthors(ctx context.Context, authorIDs []uint, limit, offset int) ([]*models.Post, error) {
	defer r.track("list")()
	posts := make([]*models.Post, 0)
	if len(authorIDs) == 0 {
		return posts, nil
	}
	q := r.db.WithContext(ctx).Where("author_id IN ?", authorIDs).Order("created_at DESC, id DESC")
	if err := paginate(q, limit, offset).Find(&posts).Error; err != nil {
		return nil, r.fail(ctx, "list", nil, err)
	}
	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	defer r.track("update")()
	if err := gormSave(ctx, r.db, r.gormBase, post, post.ID); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.PostKey(post.ID))
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	if err := gormDelete[models.Post](ctx, r.gormBase, id); err != nil {
		return err
	}
	r.cache.Invalidate(ctx, cache.PostKey(id))
	return nil
}

type commentRepository struct {
	gormBase
}

// NewCommentRepository returns a new CommentRepository implementation.
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{gormBase: newGormBase(db, models.CollectionComment, "Comment")}
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return gormCreate(ctx, r.gormBase, comment, comment.RecordID)
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	return gormFirst[models.Comment](ctx, r.gormBase, id)
}

func (r *commentRepository) ListByPost(ctx context.Context, postID uint) ([]*models.Comment, error) {
	defer r.track("list")()
	var comments []*models.Comment
	if err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error; err != nil {
		return nil, r.fail(ctx, "list", nil, err)
	}
	return comments, nil
}

func (r *commentRepository) Update(ctx context.Context, comment *models.Comment) error {
	defer r.track("update")()
	return gormSave(ctx, r.db, r.gormBase, comment, comment.ID)
}

func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	return gormDelete[models.Comment](ctx, r.gormBase, id)
}
