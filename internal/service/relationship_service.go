package service

import (
	"context"

	"kinship/internal/lock"
	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// RelationshipService runs the friend-request state machine over user
// records. Every mutation locks both users and writes both records together.
type RelationshipService struct {
	users  repository.UserRepository
	locker lock.Locker
}

// NewRelationshipService returns a new RelationshipService.
func NewRelationshipService(users repository.UserRepository, locker lock.Locker) *RelationshipService {
	return &RelationshipService{users: users, locker: locker}
}

// RelationshipResult is the outcome of a relationship mutation, seen from the
// acting user. On failure Actor and Other hold the records as last read.
type RelationshipResult struct {
	Transition models.Transition[models.RelationshipStatus]
	Actor      *models.User
	Other      *models.User
}

// pairEdit mutates actor and other in place and reports whether anything
// changed.
type pairEdit func(actor, other *models.User) bool

func (s *RelationshipService) apply(ctx context.Context, operation string, actorID, otherID uint, edit pairEdit) (*RelationshipResult, error) {
	ctx, end := observability.StartSpan(ctx, "relationship."+operation,
		attribute.Int64("actor_id", int64(actorID)),
		attribute.Int64("other_id", int64(otherID)),
	)
	var result *RelationshipResult
	err := withLock(ctx, s.locker, []string{lock.UserKey(actorID), lock.UserKey(otherID)}, func() error {
		actor, err := s.users.GetByID(ctx, actorID)
		if err != nil {
			return err
		}
		other, err := s.users.GetByID(ctx, otherID)
		if err != nil {
			return err
		}

		previous := models.DeriveRelationship(actor, other)
		result = &RelationshipResult{Transition: models.Unchanged(previous), Actor: actor, Other: other}

		nextActor, nextOther := actor.Clone(), other.Clone()
		if !edit(nextActor, nextOther) {
			return nil
		}
		if err := s.users.UpdatePair(ctx, nextActor, nextOther); err != nil {
			return err
		}
		result.Transition = models.Changed(previous, models.DeriveRelationship(nextActor, nextOther))
		result.Actor, result.Other = nextActor, nextOther
		return nil
	})
	end(err)
	if err != nil {
		observability.Logger.WarnContext(ctx, "relationship operation failed",
			"operation", operation, "actor_id", actorID, "other_id", otherID, "error", err)
		return result, err
	}
	observability.RelationshipTransitions.WithLabelValues(operation, string(result.Transition.Current)).Inc()
	return result, nil
}

func befriend(a, b *models.User) bool {
	changed := a.Friends.Add(b.ID)
	changed = b.Friends.Add(a.ID) || changed
	a.SyncCounts()
	b.SyncCounts()
	return changed
}

// Propose records from's friend request to to. Repeating it is a no-op, as is
// proposing to an existing friend. When to has already proposed to from the
// two requests meet and the users become friends.
func (s *RelationshipService) Propose(ctx context.Context, fromID, toID uint) (*RelationshipResult, error) {
	if fromID == toID {
		return nil, models.NewValidationError("Cannot send friend request to yourself")
	}
	return s.apply(ctx, "propose", fromID, toID, func(from, to *models.User) bool {
		if models.DeriveRelationship(from, to) == models.RelationshipFriends {
			return false
		}
		if from.PendingRequests.Contains(to.ID) {
			from.PendingRequests.Remove(to.ID)
			befriend(from, to)
			return true
		}
		return to.PendingRequests.Add(from.ID)
	})
}

// Accept makes user and requester friends and clears the request in either
// direction. It does not require a pending request.
func (s *RelationshipService) Accept(ctx context.Context, userID, requesterID uint) (*RelationshipResult, error) {
	if userID == requesterID {
		return nil, models.NewValidationError("Cannot befriend yourself")
	}
	return s.apply(ctx, "accept", userID, requesterID, func(user, requester *models.User) bool {
		changed := user.PendingRequests.Remove(requester.ID)
		changed = requester.PendingRequests.Remove(user.ID) || changed
		return befriend(user, requester) || changed
	})
}

// Reject drops requester's pending request to user. A missing request is a
// no-op.
func (s *RelationshipService) Reject(ctx context.Context, userID, requesterID uint) (*RelationshipResult, error) {
	return s.apply(ctx, "reject", userID, requesterID, func(user, requester *models.User) bool {
		return user.PendingRequests.Remove(requester.ID)
	})
}

// Cancel withdraws from's pending request to to. A missing request is a
// no-op.
func (s *RelationshipService) Cancel(ctx context.Context, fromID, toID uint) (*RelationshipResult, error) {
	return s.apply(ctx, "cancel", fromID, toID, func(from, to *models.User) bool {
		return to.PendingRequests.Remove(from.ID)
	})
}

// Remove ends the friendship between a and b in both directions.
func (s *RelationshipService) Remove(ctx context.Context, aID, bID uint) (*RelationshipResult, error) {
	return s.apply(ctx, "remove", aID, bID, func(a, b *models.User) bool {
		changed := a.Friends.Remove(b.ID)
		changed = b.Friends.Remove(a.ID) || changed
		a.SyncCounts()
		b.SyncCounts()
		return changed
	})
}

// RelationshipOf reports subject's status as seen by viewer.
func (s *RelationshipService) RelationshipOf(ctx context.Context, viewerID, subjectID uint) (models.RelationshipStatus, error) {
	viewer, err := s.users.GetByID(ctx, viewerID)
	if err != nil {
		return models.RelationshipNone, err
	}
	subject, err := s.users.GetByID(ctx, subjectID)
	if err != nil {
		return models.RelationshipNone, err
	}
	return models.DeriveRelationship(viewer, subject), nil
}
