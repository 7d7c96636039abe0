package server

import (
	"kinship/internal/models"
	"kinship/internal/notifications"

	"github.com/gofiber/fiber/v2"
)

// conversationParam reads :id and checks the caller takes part in it.
func (s *Server) conversationParam(c *fiber.Ctx, viewerID uint) (string, uint, error) {
	convID := c.Params("id")
	if _, _, err := models.ParseConversationID(convID); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid conversation ID"))
		return "", 0, errResponseWritten
	}
	peerID, ok := models.ConversationPeer(convID, viewerID)
	if !ok {
		_ = models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("You are not a participant in this conversation"))
		return "", 0, errResponseWritten
	}
	return convID, peerID, nil
}

// GetConversations handles GET /api/conversations
func (s *Server) GetConversations(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	convs, err := s.conversationService.ListConversations(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(convs)
}

// GetUnreadMessageCount handles GET /api/conversations/unread-count
func (s *Server) GetUnreadMessageCount(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	n, err := s.conversationService.UnreadTotal(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

// GetConversationWith handles GET /api/conversations/with/:userId and
// returns the id a conversation with that user has, whether or not any
// message exists yet.
func (s *Server) GetConversationWith(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	otherID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	if otherID == userID {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Cannot start a conversation with yourself"))
	}
	other, err := s.userService.GetUserByID(c.UserContext(), otherID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"conversation_id": s.conversationService.DeriveConversationID(userID, otherID),
		"other_user":      other.Summary(),
	})
}

// GetMessages handles GET /api/conversations/:id/messages
func (s *Server) GetMessages(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	msgs, err := s.conversationService.Messages(c.UserContext(), c.Params("id"), userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(msgs)
}

// SendMessage handles POST /api/conversations/:id/messages
func (s *Server) SendMessage(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	ctx := c.UserContext()
	msg, err := s.conversationService.SendMessage(ctx, c.Params("id"), userID, req.Content)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	if peerID, ok := models.ConversationPeer(msg.ConversationID, userID); ok {
		s.events.ToUser(ctx, peerID, notifications.EventMessageReceived, msg)
	}
	// The sender's other devices see the message too.
	s.events.ToUser(ctx, userID, notifications.EventMessageReceived, msg)

	return c.Status(fiber.StatusCreated).JSON(msg)
}

// MarkConversationRead handles POST /api/conversations/:id/read
func (s *Server) MarkConversationRead(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	convID, peerID, err := s.conversationParam(c, userID)
	if err != nil {
		return nil
	}

	ctx := c.UserContext()
	n, err := s.conversationService.MarkConversationRead(ctx, convID, userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	if n > 0 {
		// Read receipt for the peer.
		s.events.ToUser(ctx, peerID, notifications.EventConversationRead, fiber.Map{
			"conversation_id": convID,
			"reader_id":       userID,
			"count":           n,
		})
	}
	return c.JSON(fiber.Map{"conversation_id": convID, "marked_read": n})
}

// MarkMessageRead handles POST /api/messages/:id/read
func (s *Server) MarkMessageRead(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	changed, err := s.conversationService.MarkMessageRead(c.UserContext(), id, userID)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "changed": changed})
}

// DeleteMessage handles DELETE /api/messages/:id (admin only)
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.conversationService.DeleteMessage(c.UserContext(), id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
