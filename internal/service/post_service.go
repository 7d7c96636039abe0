package service

import (
	"context"
	"time"
	"unicode"
	"unicode/utf8"

	"kinship/internal/lock"
	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/repository"
)

// maxEmojiRunes covers flags, skin tones and ZWJ sequences.
const maxEmojiRunes = 8

type PostService struct {
	posts  repository.PostRepository
	users  repository.UserRepository
	locker lock.Locker
	now    func() time.Time
}

type CreatePostInput struct {
	AuthorID uint
	Content  string
	ImageURL string
}

type UpdatePostInput struct {
	UserID   uint
	PostID   uint
	Content  string
	ImageURL string
}

type ListPostsInput struct {
	Limit  int
	Offset int
}

func NewPostService(posts repository.PostRepository, users repository.UserRepository, locker lock.Locker) *PostService {
	return &PostService{posts: posts, users: users, locker: locker, now: time.Now}
}

// WithClock replaces the timestamp source for new posts.
func (s *PostService) WithClock(now func() time.Time) *PostService {
	s.now = now
	return s
}

// ValidateEmoji accepts a short printable symbol sequence. Words and
// whitespace are rejected.
func ValidateEmoji(emoji string) error {
	if emoji == "" || !utf8.ValidString(emoji) || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return models.NewValidationError("Invalid emoji")
	}
	for _, r := range emoji {
		if unicode.IsSpace(r) || unicode.IsControl(r) || (r < utf8.RuneSelf && unicode.IsLetter(r)) {
			return models.NewValidationError("Invalid emoji")
		}
	}
	return nil
}

func (s *PostService) withAuthors(ctx context.Context, posts ...*models.Post) error {
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.AuthorID)
	}
	summaries, err := attachSummaries(ctx, s.users, ids)
	if err != nil {
		return err
	}
	for _, p := range posts {
		p.Author = summaries[p.AuthorID]
	}
	return nil
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	content, err := cleanContent(in.Content, MaxPostLength, "Post")
	if err != nil {
		return nil, err
	}
	author, err := s.users.GetByID(ctx, in.AuthorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	post := &models.Post{
		AuthorID:  in.AuthorID,
		Content:   content,
		ImageURL:  in.ImageURL,
		Likes:     models.IDSet{},
		Reactions: models.Reactions{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	post.Author = author.Summary()
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.withAuthors(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) ([]*models.Post, error) {
	posts, err := s.posts.List(ctx, in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	if err := s.withAuthors(ctx, posts...); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetUserPosts returns the author's posts, newest first.
func (s *PostService) GetUserPosts(ctx context.Context, authorID uint, in ListPostsInput) ([]*models.Post, error) {
	if _, err := s.users.GetByID(ctx, authorID); err != nil {
		return nil, err
	}
	posts, err := s.posts.ListByAuthors(ctx, []uint{authorID}, in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	if err := s.withAuthors(ctx, posts...); err != nil {
		return nil, err
	}
	return posts, nil
}

// Feed returns posts by the user and the user's friends, newest first.
func (s *PostService) Feed(ctx context.Context, userID uint, in ListPostsInput) ([]*models.Post, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	authors := user.Friends.Clone()
	authors.Add(user.ID)
	posts, err := s.posts.ListByAuthors(ctx, authors, in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	if err := s.withAuthors(ctx, posts...); err != nil {
		return nil, err
	}
	return posts, nil
}

// mutate runs edit on a fresh copy of the post under the post lock and saves
// it when edit reports a change.
func (s *PostService) mutate(ctx context.Context, postID uint, edit func(*models.Post) (bool, error)) (*models.Post, error) {
	var post *models.Post
	err := withLock(ctx, s.locker, []string{lock.PostKey(postID)}, func() error {
		var err error
		post, err = s.posts.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if post.Reactions == nil {
			post.Reactions = models.Reactions{}
		}
		changed, err := edit(post)
		if err != nil || !changed {
			return err
		}
		post.UpdatedAt = s.now()
		return s.posts.Update(ctx, post)
	})
	if err != nil {
		return nil, err
	}
	if err := s.withAuthors(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	var content string
	if in.Content != "" {
		var err error
		if content, err = cleanContent(in.Content, MaxPostLength, "Post"); err != nil {
			return nil, err
		}
	}
	return s.mutate(ctx, in.PostID, func(post *models.Post) (bool, error) {
		if post.AuthorID != in.UserID {
			return false, models.NewForbiddenError("You can only update your own posts")
		}
		changed := false
		if content != "" && content != post.Content {
			post.Content = content
			changed = true
		}
		if in.ImageURL != "" && in.ImageURL != post.ImageURL {
			post.ImageURL = in.ImageURL
			changed = true
		}
		return changed, nil
	})
}

// DeletePost removes a post. Only its author or an admin may delete it.
func (s *PostService) DeletePost(ctx context.Context, userID, postID uint) error {
	return withLock(ctx, s.locker, []string{lock.PostKey(postID)}, func() error {
		post, err := s.posts.GetByID(ctx, postID)
		if err != nil {
			return err
		}
		if post.AuthorID != userID {
			user, err := s.users.GetByID(ctx, userID)
			if err != nil {
				return err
			}
			if !user.IsAdmin {
				return models.NewForbiddenError("You can only delete your own posts")
			}
		}
		return s.posts.Delete(ctx, postID)
	})
}

func (s *PostService) LikePost(ctx context.Context, userID, postID uint) (*models.Post, error) {
	return s.mutate(ctx, postID, func(post *models.Post) (bool, error) {
		return post.Likes.Add(userID), nil
	})
}

func (s *PostService) UnlikePost(ctx context.Context, userID, postID uint) (*models.Post, error) {
	return s.mutate(ctx, postID, func(post *models.Post) (bool, error) {
		return post.Likes.Remove(userID), nil
	})
}

// SetReaction gives the user exactly one reaction on the post, replacing any
// other. The transition carries the emoji held before and after ("" for
// none).
func (s *PostService) SetReaction(ctx context.Context, postID, userID uint, emoji string) (*models.Post, models.Transition[string], error) {
	if err := ValidateEmoji(emoji); err != nil {
		return nil, models.Transition[string]{}, err
	}
	var previous string
	post, err := s.mutate(ctx, postID, func(post *models.Post) (bool, error) {
		previous = post.Reactions.EmojiOf(userID)
		if previous == emoji {
			return false, nil
		}
		post.Reactions.Set(userID, emoji)
		return true, nil
	})
	if err != nil {
		return nil, models.Unchanged(previous), err
	}
	observability.ReactionChanges.WithLabelValues("set").Inc()
	return post, models.Changed(previous, emoji), nil
}

// ClearReaction removes the user's reaction from the post, if any.
func (s *PostService) ClearReaction(ctx context.Context, postID, userID uint) (*models.Post, models.Transition[string], error) {
	var previous string
	post, err := s.mutate(ctx, postID, func(post *models.Post) (bool, error) {
		previous = post.Reactions.Clear(userID)
		return previous != "", nil
	})
	if err != nil {
		return nil, models.Unchanged(previous), err
	}
	observability.ReactionChanges.WithLabelValues("clear").Inc()
	return post, models.Changed(previous, ""), nil
}
