package server

import (
	"context"

	"kinship/internal/models"
	"kinship/internal/notifications"
	"kinship/internal/service"

	"github.com/gofiber/fiber/v2"
)

type relationshipResponse struct {
	Status     models.RelationshipStatus                    `json:"status"`
	Transition models.Transition[models.RelationshipStatus] `json:"transition"`
	User       *models.UserSummary                          `json:"user,omitempty"`
}

type relationshipErrorResponse struct {
	models.ErrorResponse
	Transition *models.Transition[models.RelationshipStatus] `json:"transition,omitempty"`
}

type relationshipOp func(ctx context.Context, actorID, otherID uint) (*service.RelationshipResult, error)

// runRelationship applies op between the caller and :userId. Failures carry
// the unchanged transition so a client that updated optimistically can revert.
func (s *Server) runRelationship(c *fiber.Ctx, op relationshipOp) (*service.RelationshipResult, error) {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil, err
	}
	otherID, err := s.parseID(c, "userId")
	if err != nil {
		return nil, err
	}

	result, err := op(c.UserContext(), userID, otherID)
	if err != nil {
		body := relationshipErrorResponse{ErrorResponse: models.NewErrorResponse(err)}
		if result != nil {
			body.Transition = &result.Transition
		}
		_ = c.Status(models.StatusFor(err)).JSON(body)
		return nil, errResponseWritten
	}
	return result, nil
}

func respondRelationship(c *fiber.Ctx, status int, result *service.RelationshipResult) error {
	return c.Status(status).JSON(relationshipResponse{
		Status:     result.Transition.Current,
		Transition: result.Transition,
		User:       result.Other.Summary(),
	})
}

// GetFriends handles GET /api/friends
func (s *Server) GetFriends(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	friends, err := s.userService.Friends(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(friends)
}

// GetPendingRequests handles GET /api/friends/requests
func (s *Server) GetPendingRequests(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	requests, err := s.userService.PendingRequests(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(requests)
}

// GetSentRequests handles GET /api/friends/requests/sent
func (s *Server) GetSentRequests(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	requests, err := s.userService.SentRequests(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(requests)
}

// SendFriendRequest handles POST /api/friends/requests/:userId
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	result, err := s.runRelationship(c, s.relationshipService.Propose)
	if err != nil {
		return nil
	}

	ctx := c.UserContext()
	actor, target := result.Actor, result.Other
	switch {
	case result.Transition.Current == models.RelationshipFriends && result.Transition.Previous != models.RelationshipFriends:
		// The target had already asked; the two requests met.
		s.notify(ctx, service.CreateNotificationInput{
			UserID:  target.ID,
			ActorID: actor.ID,
			Type:    models.NotificationFriendAccept,
			Content: actor.Username + " accepted your friend request",
		})
		s.events.ToUser(ctx, target.ID, notifications.EventFriendRequestAccepted, fiber.Map{"friend": actor.Summary()})
		s.events.ToUser(ctx, actor.ID, notifications.EventFriendRequestAccepted, fiber.Map{"friend": target.Summary()})
	case result.Transition.Current != result.Transition.Previous:
		s.notify(ctx, service.CreateNotificationInput{
			UserID:  target.ID,
			ActorID: actor.ID,
			Type:    models.NotificationFriendRequest,
			Content: actor.Username + " sent you a friend request",
		})
		s.events.ToUser(ctx, target.ID, notifications.EventFriendRequestReceived, fiber.Map{"from_user": actor.Summary()})
	}

	return respondRelationship(c, fiber.StatusCreated, result)
}

// AcceptFriendRequest handles POST /api/friends/requests/:userId/accept
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	result, err := s.runRelationship(c, s.relationshipService.Accept)
	if err != nil {
		return nil
	}

	ctx := c.UserContext()
	if result.Transition.Previous != models.RelationshipFriends {
		s.notify(ctx, service.CreateNotificationInput{
			UserID:  result.Other.ID,
			ActorID: result.Actor.ID,
			Type:    models.NotificationFriendAccept,
			Content: result.Actor.Username + " accepted your friend request",
		})
		s.events.ToUser(ctx, result.Other.ID, notifications.EventFriendRequestAccepted, fiber.Map{"friend": result.Actor.Summary()})
	}
	return respondRelationship(c, fiber.StatusOK, result)
}

// RejectFriendRequest handles POST /api/friends/requests/:userId/reject
func (s *Server) RejectFriendRequest(c *fiber.Ctx) error {
	result, err := s.runRelationship(c, s.relationshipService.Reject)
	if err != nil {
		return nil
	}
	if result.Transition.Previous != result.Transition.Current {
		s.events.ToUser(c.UserContext(), result.Other.ID, notifications.EventFriendRequestRejected, fiber.Map{"by_user": result.Actor.Summary()})
	}
	return respondRelationship(c, fiber.StatusOK, result)
}

// CancelFriendRequest handles DELETE /api/friends/requests/:userId
func (s *Server) CancelFriendRequest(c *fiber.Ctx) error {
	result, err := s.runRelationship(c, s.relationshipService.Cancel)
	if err != nil {
		return nil
	}
	if result.Transition.Previous != result.Transition.Current {
		s.events.ToUser(c.UserContext(), result.Other.ID, notifications.EventFriendRequestCancelled, fiber.Map{"from_user": result.Actor.Summary()})
	}
	return respondRelationship(c, fiber.StatusOK, result)
}

// RemoveFriend handles DELETE /api/friends/:userId
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	result, err := s.runRelationship(c, s.relationshipService.Remove)
	if err != nil {
		return nil
	}
	if result.Transition.Previous == models.RelationshipFriends {
		s.events.ToUser(c.UserContext(), result.Other.ID, notifications.EventFriendRemoved, fiber.Map{"user": result.Actor.Summary()})
	}
	return respondRelationship(c, fiber.StatusOK, result)
}

// GetFriendshipStatus handles GET /api/friends/status/:userId
func (s *Server) GetFriendshipStatus(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	otherID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	status, err := s.relationshipService.RelationshipOf(c.UserContext(), userID, otherID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"status": status})
}
