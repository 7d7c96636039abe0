package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"kinship/internal/models"
	"kinship/internal/repository"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Fixture is a hand-written data set. Records carry explicit ids so they can
// reference each other; the store keeps them.
type Fixture struct {
	Users         []FixtureUser          `yaml:"users"`
	Posts         []*models.Post         `yaml:"posts"`
	Comments      []*models.Comment      `yaml:"comments"`
	Messages      []*models.Message      `yaml:"messages"`
	Notifications []*models.Notification `yaml:"notifications"`
}

// FixtureUser adds a clear-text password to a user record.
type FixtureUser struct {
	models.User `yaml:",inline"`
	Password    string `yaml:"password"`
}

// ReadFixture decodes a YAML fixture and validates it. Unknown keys are
// rejected.
func ReadFixture(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ReadFixtureFile reads a fixture from path.
func ReadFixtureFile(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFixture(file)
}

// Validate checks ids are unique and references resolve, and that the
// friend graph is consistent: friendship is mutual, never with oneself, and
// never alongside a pending request between the same pair.
func (f *Fixture) Validate() error {
	users := make(map[uint]*models.User, len(f.Users))
	names := make(map[string]bool, len(f.Users))
	for i := range f.Users {
		u := &f.Users[i].User
		if u.ID == 0 {
			return fmt.Errorf("user %q: id is required", u.Username)
		}
		if _, dup := users[u.ID]; dup {
			return fmt.Errorf("user %d: duplicate id", u.ID)
		}
		if u.Username == "" || names[u.Username] {
			return fmt.Errorf("user %d: username missing or duplicated", u.ID)
		}
		users[u.ID] = u
		names[u.Username] = true
	}

	for _, u := range users {
		for _, id := range u.Friends {
			other, ok := users[id]
			switch {
			case id == u.ID:
				return fmt.Errorf("user %d: cannot befriend itself", u.ID)
			case !ok:
				return fmt.Errorf("user %d: unknown friend %d", u.ID, id)
			case !other.Friends.Contains(u.ID):
				return fmt.Errorf("friendship %d-%d is one-sided", u.ID, id)
			case u.PendingRequests.Contains(id) || other.PendingRequests.Contains(u.ID):
				return fmt.Errorf("friends %d and %d also have a pending request", u.ID, id)
			}
		}
		for _, id := range u.PendingRequests {
			if id == u.ID {
				return fmt.Errorf("user %d: cannot request itself", u.ID)
			}
			if _, ok := users[id]; !ok {
				return fmt.Errorf("user %d: request from unknown user %d", u.ID, id)
			}
		}
	}

	posts := make(map[uint]bool, len(f.Posts))
	for _, p := range f.Posts {
		if _, ok := users[p.AuthorID]; !ok {
			return fmt.Errorf("post %d: unknown author %d", p.ID, p.AuthorID)
		}
		for _, id := range p.Likes {
			if _, ok := users[id]; !ok {
				return fmt.Errorf("post %d: like by unknown user %d", p.ID, id)
			}
		}
		if p.ID != 0 {
			posts[p.ID] = true
		}
	}
	for _, c := range f.Comments {
		if !posts[c.PostID] {
			return fmt.Errorf("comment %d: unknown post %d", c.ID, c.PostID)
		}
		if _, ok := users[c.AuthorID]; !ok {
			return fmt.Errorf("comment %d: unknown author %d", c.ID, c.AuthorID)
		}
	}
	for _, m := range f.Messages {
		a, b, err := models.ParseConversationID(m.ConversationID)
		if err != nil {
			return fmt.Errorf("message %d: %w", m.ID, err)
		}
		if _, ok := users[a]; !ok {
			return fmt.Errorf("message %d: unknown participant %d", m.ID, a)
		}
		if _, ok := users[b]; !ok {
			return fmt.Errorf("message %d: unknown participant %d", m.ID, b)
		}
		if _, ok := models.ConversationPeer(m.ConversationID, m.SenderID); !ok {
			return fmt.Errorf("message %d: sender %d is not a participant", m.ID, m.SenderID)
		}
	}
	for _, n := range f.Notifications {
		if _, ok := users[n.UserID]; !ok {
			return fmt.Errorf("notification %d: unknown recipient %d", n.ID, n.UserID)
		}
		if _, ok := users[n.ActorID]; !ok {
			return fmt.Errorf("notification %d: unknown actor %d", n.ID, n.ActorID)
		}
	}
	return nil
}

// Load writes the fixture into store. Passwords are hashed with cost;
// users without one get DefaultPassword. Post comment counts are derived
// from the fixture's comments.
func (f *Fixture) Load(ctx context.Context, store *repository.Store, cost int) (*Summary, error) {
	sum := &Summary{}
	hashes := make(map[string]string)
	for i := range f.Users {
		fu := &f.Users[i]
		password := fu.Password
		if password == "" {
			password = DefaultPassword
		}
		hash, ok := hashes[password]
		if !ok {
			raw, err := bcrypt.GenerateFromPassword([]byte(password), cost)
			if err != nil {
				return sum, err
			}
			hash = string(raw)
			hashes[password] = hash
		}

		u := fu.User
		u.PasswordHash = hash
		if u.DisplayName == "" {
			u.DisplayName = u.Username
		}
		if u.Friends == nil {
			u.Friends = models.IDSet{}
		}
		if u.PendingRequests == nil {
			u.PendingRequests = models.IDSet{}
		}
		u.SyncCounts()
		u.UpdatedAt = u.CreatedAt
		if err := store.Users.Create(ctx, &u); err != nil {
			return sum, fmt.Errorf("create user %s: %w", u.Username, err)
		}
		sum.Users++
		sum.Friendships += u.Friends.Len()
		sum.Requests += u.PendingRequests.Len()
	}
	sum.Friendships /= 2

	commentCounts := make(map[uint]int)
	for _, c := range f.Comments {
		commentCounts[c.PostID]++
	}
	for _, p := range f.Posts {
		post := p.Clone()
		post.CommentCount = commentCounts[post.ID]
		post.UpdatedAt = post.CreatedAt
		if err := store.Posts.Create(ctx, post); err != nil {
			return sum, fmt.Errorf("create post %d: %w", p.ID, err)
		}
		sum.Posts++
	}
	for _, c := range f.Comments {
		comment := c.Clone()
		if comment.Likes == nil {
			comment.Likes = models.IDSet{}
		}
		if err := store.Comments.Create(ctx, comment); err != nil {
			return sum, fmt.Errorf("create comment %d: %w", c.ID, err)
		}
		sum.Comments++
	}
	for _, m := range f.Messages {
		if err := store.Messages.Create(ctx, m.Clone()); err != nil {
			return sum, fmt.Errorf("create message %d: %w", m.ID, err)
		}
		sum.Messages++
	}
	for _, n := range f.Notifications {
		if err := store.Notifications.Create(ctx, n.Clone()); err != nil {
			return sum, fmt.Errorf("create notification %d: %w", n.ID, err)
		}
		sum.Notifications++
	}
	return sum, nil
}
