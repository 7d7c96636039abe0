package server

import (
	"kinship/internal/models"
	"kinship/internal/notifications"
	"kinship/internal/service"

	"github.com/gofiber/fiber/v2"
)

type reactionResponse struct {
	Post       *models.Post              `json:"post"`
	Transition models.Transition[string] `json:"transition"`
}

type reactionErrorResponse struct {
	models.ErrorResponse
	Transition models.Transition[string] `json:"transition"`
}

// GetPosts handles GET /api/posts
func (s *Server) GetPosts(c *fiber.Ctx) error {
	posts, err := s.postService.ListPosts(c.UserContext(), parsePagination(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetFeed handles GET /api/posts/feed
func (s *Server) GetFeed(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	posts, err := s.postService.Feed(c.UserContext(), userID, parsePagination(c))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postService.GetPost(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	var req struct {
		Content  string `json:"content"`
		ImageURL string `json:"image_url"`
	}
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	ctx := c.UserContext()
	post, err := s.postService.CreatePost(ctx, service.CreatePostInput{
		AuthorID: userID,
		Content:  req.Content,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	s.events.ToAll(ctx, notifications.EventPostCreated, post)
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Content  string `json:"content"`
		ImageURL string `json:"image_url"`
	}
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		UserID:   userID,
		PostID:   id,
		Content:  req.Content,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.postService.DeletePost(c.UserContext(), userID, id); err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LikePost handles POST /api/posts/:id/like
func (s *Server) LikePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	ctx := c.UserContext()
	before, err := s.postService.GetPost(ctx, id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	post, err := s.postService.LikePost(ctx, userID, id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	if !before.Likes.Contains(userID) {
		postID := post.ID
		s.notify(ctx, service.CreateNotificationInput{
			UserID:  post.AuthorID,
			ActorID: userID,
			Type:    models.NotificationLike,
			Content: "liked your post",
			PostID:  &postID,
		})
	}
	return c.JSON(post)
}

// UnlikePost handles DELETE /api/posts/:id/like
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postService.UnlikePost(c.UserContext(), userID, id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

// SetReaction handles PUT /api/posts/:id/reaction
func (s *Server) SetReaction(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := bindJSON(c, &req); err != nil {
		return nil
	}

	ctx := c.UserContext()
	post, transition, err := s.postService.SetReaction(ctx, id, userID, req.Emoji)
	if err != nil {
		return c.Status(models.StatusFor(err)).JSON(reactionErrorResponse{
			ErrorResponse: models.NewErrorResponse(err),
			Transition:    transition,
		})
	}

	if transition.Previous != transition.Current {
		if transition.Previous == "" {
			postID := post.ID
			s.notify(ctx, service.CreateNotificationInput{
				UserID:  post.AuthorID,
				ActorID: userID,
				Type:    models.NotificationReaction,
				Content: "reacted " + transition.Current + " to your post",
				PostID:  &postID,
			})
		}
		s.broadcastReaction(c, post, userID, transition)
	}
	return c.JSON(reactionResponse{Post: post, Transition: transition})
}

// ClearReaction handles DELETE /api/posts/:id/reaction
func (s *Server) ClearReaction(c *fiber.Ctx) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return nil
	}
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	post, transition, err := s.postService.ClearReaction(c.UserContext(), id, userID)
	if err != nil {
		return c.Status(models.StatusFor(err)).JSON(reactionErrorResponse{
			ErrorResponse: models.NewErrorResponse(err),
			Transition:    transition,
		})
	}
	if transition.Previous != transition.Current {
		s.broadcastReaction(c, post, userID, transition)
	}
	return c.JSON(reactionResponse{Post: post, Transition: transition})
}

func (s *Server) broadcastReaction(c *fiber.Ctx, post *models.Post, userID uint, transition models.Transition[string]) {
	s.events.ToAll(c.UserContext(), notifications.EventPostReactionUpdated, fiber.Map{
		"post_id":    post.ID,
		"user_id":    userID,
		"reactions":  post.Reactions,
		"transition": transition,
	})
}
