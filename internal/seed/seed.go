// Package seed populates a record store with demo data for development and
// tests. Generated data keeps the friend graph mutual and holds at most one
// reaction per user per post.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/repository"
	"kinship/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password of every generated account.
const DefaultPassword = "Kinship-Seed-1"

var reactionPalette = []string{"👍", "❤️", "😂", "🎉", "😮", "😢"}

// Options configures a seeding run.
type Options struct {
	Users int
	Posts int
	// Seed makes a run reproducible; 0 picks one from the clock.
	Seed int64
	// FriendRate and PendingRate are percentages applied per user pair.
	FriendRate  int
	PendingRate int
	// MaxDays spreads post and message timestamps over the past MaxDays.
	MaxDays  int
	Password string
	HashCost int
	Now      func() time.Time
}

func (o *Options) withDefaults() {
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.FriendRate == 0 {
		o.FriendRate = 30
	}
	if o.PendingRate == 0 {
		o.PendingRate = 10
	}
	if o.MaxDays <= 0 {
		o.MaxDays = 30
	}
	if o.Password == "" {
		o.Password = DefaultPassword
	}
	if o.HashCost == 0 {
		o.HashCost = bcrypt.DefaultCost
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Summary counts what a run created.
type Summary struct {
	Users         int
	Friendships   int
	Requests      int
	Posts         int
	Comments      int
	Messages      int
	Notifications int
}

// Seeder generates users and engagement into a store.
type Seeder struct {
	store *repository.Store
	opts  Options
	faker *gofakeit.Faker
	hash  string
}

// NewSeeder returns a Seeder writing to store.
func NewSeeder(store *repository.Store, opts Options) *Seeder {
	opts.withDefaults()
	return &Seeder{store: store, opts: opts, faker: gofakeit.New(opts.Seed)}
}

// Run seeds opts.Users users wired into a friend graph, then opts.Posts
// posts with likes, reactions, comments, messages and notifications.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	users, err := s.SeedSocialMesh(ctx, s.opts.Users, sum)
	if err != nil {
		return sum, err
	}
	if err := s.SeedEngagement(ctx, users, s.opts.Posts, sum); err != nil {
		return sum, err
	}
	observability.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", sum.Users),
		slog.Int("friendships", sum.Friendships),
		slog.Int("requests", sum.Requests),
		slog.Int("posts", sum.Posts),
		slog.Int("comments", sum.Comments),
		slog.Int("messages", sum.Messages),
		slog.Int("notifications", sum.Notifications))
	return sum, nil
}

func (s *Seeder) passwordHash() (string, error) {
	if s.hash != "" {
		return s.hash, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(s.opts.Password), s.opts.HashCost)
	if err != nil {
		return "", err
	}
	s.hash = string(hash)
	return s.hash, nil
}

func (s *Seeder) chance(percent int) bool {
	return s.faker.Number(0, 99) < percent
}

func (s *Seeder) pastTime() time.Time {
	now := s.opts.Now()
	return s.faker.DateRange(now.Add(-time.Duration(s.opts.MaxDays)*24*time.Hour), now)
}

// username builds a valid, unique handle from a fake name.
func (s *Seeder) username(i int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s.faker.FirstName() + s.faker.LastName()) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > 20 {
		name = name[:20]
	}
	if name == "" {
		name = "user"
	}
	return fmt.Sprintf("%s%d", name, i+1)
}

// NewUser builds an unsaved user with a fake profile.
func (s *Seeder) NewUser(i int) (*models.User, error) {
	hash, err := s.passwordHash()
	if err != nil {
		return nil, err
	}
	created := s.pastTime()
	name := s.faker.Name()
	if len(name) > 50 {
		name = name[:50]
	}
	return &models.User{
		Username:        s.username(i),
		DisplayName:     name,
		PasswordHash:    hash,
		Bio:             s.faker.Sentence(10),
		ProfilePicture:  fmt.Sprintf("https://i.pravatar.cc/150?u=%s", s.faker.UUID()),
		Online:          s.chance(20),
		Friends:         models.IDSet{},
		PendingRequests: models.IDSet{},
		CreatedAt:       created,
		UpdatedAt:       created,
	}, nil
}

// SeedSocialMesh creates n users and links every pair as friends, as a
// pending request in one direction, or not at all.
func (s *Seeder) SeedSocialMesh(ctx context.Context, n int, sum *Summary) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		u, err := s.NewUser(i)
		if err != nil {
			return nil, err
		}
		if err := s.store.Users.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("create user %s: %w", u.Username, err)
		}
		users = append(users, u)
		sum.Users++
	}

	for i := 0; i < len(users); i++ {
		for j := i + 1; j < len(users); j++ {
			a, b := users[i], users[j]
			switch {
			case s.chance(s.opts.FriendRate):
				a.Friends.Add(b.ID)
				b.Friends.Add(a.ID)
				sum.Friendships++
			case s.chance(s.opts.PendingRate):
				from, to := a, b
				if s.faker.Bool() {
					from, to = b, a
				}
				to.PendingRequests.Add(from.ID)
				sum.Requests++
				if err := s.notify(ctx, to.ID, from, models.NotificationFriendRequest, from.Username+" sent you a friend request", nil, sum); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, u := range users {
		u.SyncCounts()
		if err := s.store.Users.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("link user %s: %w", u.Username, err)
		}
	}
	return users, nil
}

// SeedEngagement creates n posts by random users with likes, reactions and
// comments, then conversations between some friends.
func (s *Seeder) SeedEngagement(ctx context.Context, users []*models.User, n int, sum *Summary) error {
	if len(users) == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		author := users[s.faker.Number(0, len(users)-1)]
		if err := s.seedPost(ctx, author, users, sum); err != nil {
			return err
		}
	}

	byID := make(map[uint]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, u := range users {
		for _, friendID := range u.Friends {
			// Each friendship once.
			if friendID < u.ID || !s.chance(50) {
				continue
			}
			if friend, ok := byID[friendID]; ok {
				if err := s.seedConversation(ctx, u, friend, sum); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Seeder) seedPost(ctx context.Context, author *models.User, users []*models.User, sum *Summary) error {
	content := s.faker.Paragraph(1, 3, 12, " ")
	if len(content) > service.MaxPostLength {
		content = content[:service.MaxPostLength]
	}
	created := s.pastTime()
	post := &models.Post{
		AuthorID:  author.ID,
		Content:   content,
		Likes:     models.IDSet{},
		Reactions: models.Reactions{},
		CreatedAt: created,
		UpdatedAt: created,
	}
	if s.chance(40) {
		post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", s.faker.UUID())
	}
	for _, u := range users {
		if s.chance(25) {
			post.Likes.Add(u.ID)
		}
		if s.chance(20) {
			post.Reactions.Set(u.ID, s.faker.RandomString(reactionPalette))
		}
	}
	if err := s.store.Posts.Create(ctx, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	sum.Posts++

	comments := s.faker.Number(0, 3)
	for i := 0; i < comments; i++ {
		commenter := users[s.faker.Number(0, len(users)-1)]
		comment := &models.Comment{
			PostID:    post.ID,
			AuthorID:  commenter.ID,
			Content:   s.faker.Sentence(8),
			Likes:     models.IDSet{},
			CreatedAt: created.Add(time.Duration(i+1) * time.Minute),
		}
		if err := s.store.Comments.Create(ctx, comment); err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		post.CommentCount++
		sum.Comments++
		postID := post.ID
		if err := s.notify(ctx, post.AuthorID, commenter, models.NotificationComment, "commented on your post", &postID, sum); err != nil {
			return err
		}
	}
	if post.CommentCount > 0 {
		if err := s.store.Posts.Update(ctx, post); err != nil {
			return fmt.Errorf("update post: %w", err)
		}
	}
	return nil
}

func (s *Seeder) seedConversation(ctx context.Context, a, b *models.User, sum *Summary) error {
	convID := models.DeriveConversationID(a.ID, b.ID)
	at := s.pastTime()
	count := s.faker.Number(1, 6)
	for i := 0; i < count; i++ {
		sender := a
		if s.faker.Bool() {
			sender = b
		}
		msg := &models.Message{
			ConversationID: convID,
			SenderID:       sender.ID,
			Content:        s.faker.Sentence(s.faker.Number(3, 12)),
			Read:           i < count-1 || s.faker.Bool(),
			CreatedAt:      at.Add(time.Duration(i) * time.Minute),
		}
		if err := s.store.Messages.Create(ctx, msg); err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		sum.Messages++
	}
	return nil
}

// notify records a notification unless actor and recipient coincide.
func (s *Seeder) notify(ctx context.Context, userID uint, actor *models.User, kind models.NotificationType, content string, postID *uint, sum *Summary) error {
	if userID == actor.ID {
		return nil
	}
	n := &models.Notification{
		UserID:    userID,
		ActorID:   actor.ID,
		Type:      kind,
		Content:   content,
		PostID:    postID,
		Read:      s.chance(50),
		CreatedAt: s.pastTime(),
	}
	if err := s.store.Notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	sum.Notifications++
	return nil
}
