package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"kinship/internal/lock"
	"kinship/internal/models"
	"kinship/internal/repository"
	"kinship/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	userRepo repository.UserRepository
	locker   lock.Locker
	cost     int
	now      func() time.Time
}

type RegisterInput struct {
	Username    string
	DisplayName string
	Password    string
}

type UpdateProfileInput struct {
	UserID         uint
	DisplayName    string
	Bio            string
	ProfilePicture string
	Online         *bool
}

func NewUserService(userRepo repository.UserRepository, locker lock.Locker) *UserService {
	return &UserService{userRepo: userRepo, locker: locker, cost: bcrypt.DefaultCost, now: time.Now}
}

// WithHashCost sets the bcrypt cost; tests use bcrypt.MinCost.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.cost = cost
	return s
}

// Register creates an account with empty friend and request sets.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, models.NewValidationError("Username and password are required")
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = in.Username
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	if _, err := s.userRepo.GetByUsername(ctx, in.Username); err == nil {
		return nil, models.NewConflictError("Username already taken")
	} else if !models.IsNotFound(err) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, models.NewStoreError(err)
	}

	now := s.now()
	user := &models.User{
		Username:        in.Username,
		DisplayName:     displayName,
		PasswordHash:    string(hash),
		Online:          true,
		Friends:         models.IDSet{},
		PendingRequests: models.IDSet{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks the credentials. Unknown users and wrong passwords
// give the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if models.IsNotFound(err) {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrHashTooShort) {
			return nil, models.NewUnauthorizedError("Invalid credentials")
		}
		return nil, models.NewStoreError(err)
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	if err := validation.ValidateDisplayName(in.DisplayName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateBio(in.Bio); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	var user *models.User
	err := withLock(ctx, s.locker, []string{lock.UserKey(in.UserID)}, func() error {
		var err error
		user, err = s.userRepo.GetByID(ctx, in.UserID)
		if err != nil {
			return err
		}
		if name := strings.TrimSpace(in.DisplayName); name != "" {
			user.DisplayName = name
		}
		if in.Bio != "" {
			user.Bio = in.Bio
		}
		if in.ProfilePicture != "" {
			user.ProfilePicture = in.ProfilePicture
		}
		if in.Online != nil {
			user.Online = *in.Online
		}
		user.UpdatedAt = s.now()
		return s.userRepo.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SetOnline records presence. Unknown users are ignored.
func (s *UserService) SetOnline(ctx context.Context, userID uint, online bool) error {
	_, err := s.UpdateProfile(ctx, UpdateProfileInput{UserID: userID, Online: &online})
	if models.IsNotFound(err) {
		return nil
	}
	return err
}

// DeleteUser removes target. Only admins or the user themself may do it.
// The user is first detached from every friend and request set that names
// them.
func (s *UserService) DeleteUser(ctx context.Context, actorID, targetID uint) error {
	if actorID != targetID {
		actor, err := s.userRepo.GetByID(ctx, actorID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin {
			return models.NewForbiddenError("Admin access required")
		}
	}

	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	requested, err := s.userRepo.ListRequestedBy(ctx, targetID)
	if err != nil {
		return err
	}

	related := target.Friends.Clone()
	for _, u := range requested {
		related.Add(u.ID)
	}
	for _, otherID := range related {
		err := withLock(ctx, s.locker, []string{lock.UserKey(targetID), lock.UserKey(otherID)}, func() error {
			other, err := s.userRepo.GetByID(ctx, otherID)
			if models.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			changed := other.Friends.Remove(targetID)
			changed = other.PendingRequests.Remove(targetID) || changed
			if !changed {
				return nil
			}
			return s.userRepo.Update(ctx, other)
		})
		if err != nil {
			return err
		}
	}

	return withLock(ctx, s.locker, []string{lock.UserKey(targetID)}, func() error {
		return s.userRepo.Delete(ctx, targetID)
	})
}

func (s *UserService) resolve(ctx context.Context, ids models.IDSet) ([]*models.User, error) {
	return s.userRepo.GetByIDs(ctx, ids)
}

// Friends resolves the user's friend set.
func (s *UserService) Friends(ctx context.Context, userID uint) ([]*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, user.Friends)
}

// PendingRequests resolves the users who asked to befriend userID.
func (s *UserService) PendingRequests(ctx context.Context, userID uint) ([]*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, user.PendingRequests)
}

// SentRequests lists the users userID has asked to befriend.
func (s *UserService) SentRequests(ctx context.Context, userID uint) ([]*models.User, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.userRepo.ListRequestedBy(ctx, userID)
}
