package service

import (
	"context"
	"time"

	"kinship/internal/lock"
	"kinship/internal/models"
	"kinship/internal/repository"
)

type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	users    repository.UserRepository
	locker   lock.Locker
	now      func() time.Time
}

type CreateCommentInput struct {
	PostID   uint
	AuthorID uint
	Content  string
}

type UpdateCommentInput struct {
	UserID    uint
	CommentID uint
	Content   string
}

func NewCommentService(comments repository.CommentRepository, posts repository.PostRepository, users repository.UserRepository, locker lock.Locker) *CommentService {
	return &CommentService{comments: comments, posts: posts, users: users, locker: locker, now: time.Now}
}

// WithClock replaces the timestamp source for new comments.
func (s *CommentService) WithClock(now func() time.Time) *CommentService {
	s.now = now
	return s
}

func (s *CommentService) withAuthors(ctx context.Context, comments ...*models.Comment) error {
	ids := make([]uint, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.AuthorID)
	}
	summaries, err := attachSummaries(ctx, s.users, ids)
	if err != nil {
		return err
	}
	for _, c := range comments {
		c.Author = summaries[c.AuthorID]
	}
	return nil
}

// ListComments returns a post's comments, oldest first.
func (s *CommentService) ListComments(ctx context.Context, postID uint) ([]*models.Comment, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.withAuthors(ctx, comments...); err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment adds a comment and bumps the post's comment count.
func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, *models.Post, error) {
	content, err := cleanContent(in.Content, MaxPostLength, "Comment")
	if err != nil {
		return nil, nil, err
	}
	author, err := s.users.GetByID(ctx, in.AuthorID)
	if err != nil {
		return nil, nil, err
	}

	var comment *models.Comment
	var post *models.Post
	err = withLock(ctx, s.locker, []string{lock.PostKey(in.PostID)}, func() error {
		var err error
		post, err = s.posts.GetByID(ctx, in.PostID)
		if err != nil {
			return err
		}
		comment = &models.Comment{
			PostID:    in.PostID,
			AuthorID:  in.AuthorID,
			Content:   content,
			Likes:     models.IDSet{},
			CreatedAt: s.now(),
		}
		if err := s.comments.Create(ctx, comment); err != nil {
			return err
		}
		post.CommentCount++
		return s.posts.Update(ctx, post)
	})
	if err != nil {
		return nil, nil, err
	}
	comment.Author = author.Summary()
	return comment, post, nil
}

// DeleteComment removes the author's comment and decrements the post's
// comment count, never below zero.
func (s *CommentService) DeleteComment(ctx context.Context, userID, commentID uint) error {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != userID {
		return models.NewForbiddenError("You can only delete your own comments")
	}
	return withLock(ctx, s.locker, []string{lock.PostKey(comment.PostID)}, func() error {
		if err := s.comments.Delete(ctx, commentID); err != nil {
			return err
		}
		post, err := s.posts.GetByID(ctx, comment.PostID)
		if models.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if post.CommentCount > 0 {
			post.CommentCount--
		}
		return s.posts.Update(ctx, post)
	})
}

// UpdateComment replaces the text of the author's comment. Unchanged text
// leaves EditedAt alone.
func (s *CommentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	content, err := cleanContent(in.Content, MaxPostLength, "Comment")
	if err != nil {
		return nil, err
	}
	var comment *models.Comment
	err = withLock(ctx, s.locker, []string{lock.CommentKey(in.CommentID)}, func() error {
		var err error
		comment, err = s.comments.GetByID(ctx, in.CommentID)
		if err != nil {
			return err
		}
		if comment.AuthorID != in.UserID {
			return models.NewForbiddenError("You can only edit your own comments")
		}
		if comment.Content == content {
			return nil
		}
		edited := s.now()
		comment.Content = content
		comment.EditedAt = &edited
		return s.comments.Update(ctx, comment)
	})
	if err != nil {
		return nil, err
	}
	if err := s.withAuthors(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) setLike(ctx context.Context, userID, commentID uint, like bool) (*models.Comment, error) {
	var comment *models.Comment
	err := withLock(ctx, s.locker, []string{lock.CommentKey(commentID)}, func() error {
		var err error
		comment, err = s.comments.GetByID(ctx, commentID)
		if err != nil {
			return err
		}
		changed := false
		if like {
			changed = comment.Likes.Add(userID)
		} else {
			changed = comment.Likes.Remove(userID)
		}
		if !changed {
			return nil
		}
		return s.comments.Update(ctx, comment)
	})
	if err != nil {
		return nil, err
	}
	if err := s.withAuthors(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) LikeComment(ctx context.Context, userID, commentID uint) (*models.Comment, error) {
	return s.setLike(ctx, userID, commentID, true)
}

func (s *CommentService) UnlikeComment(ctx context.Context, userID, commentID uint) (*models.Comment, error) {
	return s.setLike(ctx, userID, commentID, false)
}
