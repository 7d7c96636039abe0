package server

import (
	"context"
	"log/slog"

	"kinship/internal/notifications"
	"kinship/internal/observability"
	"kinship/internal/service"

	"github.com/gofiber/fiber/v2"
)

// notify stores a notification and pushes it to the recipient. Failures are
// logged and never fail the request that caused them.
func (s *Server) notify(ctx context.Context, in service.CreateNotificationInput) {
	n, err := s.notificationService.Create(ctx, in)
	if err != nil {
		observability.Logger.WarnContext(ctx, "failed to create notification",
			slog.Uint64("user_id", uint64(in.UserID)),
			slog.String("type", string(in.Type)),
			slog.String("error", err.Error()))
		return
	}
	if n == nil {
		return
	}
	s.events.ToUser(ctx, n.UserID, notifications.EventNotificationCreated, n)
}

// setPresence records a user's first connection or last disconnection and
// tells their friends. It runs from hub callbacks, outside any request.
func (s *Server) setPresence(userID uint, online bool) {
	ctx := context.Background()
	if err := s.userService.SetOnline(ctx, userID, online); err != nil {
		observability.Logger.Warn("failed to update presence",
			slog.Uint64("user_id", uint64(userID)),
			slog.Bool("online", online),
			slog.String("error", err.Error()))
		return
	}
	friends, err := s.userService.Friends(ctx, userID)
	if err != nil {
		observability.Logger.Warn("failed to load friends for presence",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()))
		return
	}
	payload := fiber.Map{"user_id": userID, "online": online}
	for _, f := range friends {
		s.events.ToUser(ctx, f.ID, notifications.EventFriendPresenceChanged, payload)
	}
}
