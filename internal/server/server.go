// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kinship/internal/cache"
	"kinship/internal/config"
	"kinship/internal/database"
	"kinship/internal/lock"
	"kinship/internal/middleware"
	"kinship/internal/models"
	"kinship/internal/notifications"
	"kinship/internal/observability"
	"kinship/internal/repository"
	"kinship/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const lockWait = 5 * time.Second

// Deps are the already-initialized dependencies a Server runs on. Store and
// Locker are required; DB and Redis are optional.
type Deps struct {
	Store  *repository.Store
	Locker lock.Locker
	DB     *gorm.DB
	Redis  *redis.Client
	// HashCost overrides the bcrypt cost when non-zero.
	HashCost int
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	tokens         *middleware.TokenAuth
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	notifier *notifications.Notifier
	hub      *notifications.Hub
	events   *notifications.Publisher

	userService         *service.UserService
	relationshipService *service.RelationshipService
	conversationService *service.ConversationService
	postService         *service.PostService
	commentService      *service.CommentService
	notificationService *service.NotificationService
}

// NewServer connects the store, Redis and locker described by cfg and
// builds a Server on them.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		switch {
		case err == nil:
			rdb = client
		case cfg.LockBackend == config.LockRedis:
			return nil, fmt.Errorf("redis connection failed: %w", err)
		default:
			observability.Logger.Warn("redis unavailable, continuing without cache and pub/sub",
				slog.String("error", err.Error()))
		}
	}

	deps := Deps{Redis: rdb}
	if cfg.StoreDriver == config.StoreMemory {
		deps.Store = repository.NewMemoryStore()
	} else {
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		deps.DB = db
		deps.Store = repository.NewGormStore(db, cache.New(rdb))
	}

	if cfg.LockBackend == config.LockRedis {
		deps.Locker = lock.NewRedisLocker(rdb, time.Duration(cfg.LockTTLSeconds)*time.Second, lockWait)
	} else {
		deps.Locker = lock.NewLocalLocker(lockWait)
	}

	return NewServerWithDeps(cfg, deps)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes the store itself.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Locker == nil {
		return nil, errors.New("server requires a store and a locker")
	}

	store := deps.Store
	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("kinship-api"),
		tokens:         middleware.NewTokenAuth(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour),
		notifier:       notifications.NewNotifier(deps.Redis),
		hub:            notifications.NewHub(),
	}
	s.events = notifications.NewPublisher(s.hub, s.notifier)

	s.userService = service.NewUserService(store.Users, deps.Locker)
	if deps.HashCost != 0 {
		s.userService.WithHashCost(deps.HashCost)
	}
	s.relationshipService = service.NewRelationshipService(store.Users, deps.Locker)
	s.conversationService = service.NewConversationService(store.Messages, store.Users, deps.Locker, cfg.MaxMessageLength)
	s.postService = service.NewPostService(store.Posts, store.Users, deps.Locker)
	s.commentService = service.NewCommentService(store.Comments, store.Posts, store.Users, deps.Locker)
	s.notificationService = service.NewNotificationService(store.Notifications, store.Users)

	s.hub.SetPresenceCallbacks(
		func(userID uint) { s.setPresence(userID, true) },
		func(userID uint) { s.setPresence(userID, false) },
	)

	return s, nil
}

// throttled reports whether request rate limiting is active. Local
// development and tests are never throttled.
func (s *Server) throttled() bool {
	switch s.config.Env {
	case "", "development", "test":
		return false
	}
	return true
}

// limit builds a per-route rate limit; it passes everything through when
// throttling is off or Redis is absent.
func (s *Server) limit(max int, window time.Duration, name string) fiber.Handler {
	if !s.throttled() || s.redis == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return middleware.RateLimit(s.redis, max, window, name)
}

// NewApp creates the fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Kinship API",
		BodyLimit: 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			observability.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithAppError(c, err)
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Propagates request, trace and correlation ids into the request context.
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before middlewares that can short-circuit (e.g. limiter) so
	// browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, " + middleware.CorrelationIDHeader,
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return !s.throttled() || c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/signup", s.limit(3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", s.limit(10, 5*time.Minute, "login"), s.Login)

	// Realtime events; browsers pass the token as a query parameter.
	api.Get("/ws", s.tokens.WebSocketRequired(), s.WebsocketUpgrade, s.WebsocketHandler())

	// The feed is personal, so it must be matched before the public /posts/:id.
	api.Get("/posts/feed", s.tokens.Required(), s.GetFeed)

	// Public post routes
	publicPosts := api.Group("/posts")
	publicPosts.Get("/", s.GetPosts)
	publicPosts.Get("/:id/comments", s.GetComments)
	publicPosts.Get("/:id", s.GetPost)

	protected := api.Group("", s.tokens.Required())

	users := protected.Group("/users")
	users.Get("/", s.GetAllUsers)
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Delete("/me", s.DeleteMyAccount)
	users.Get("/:id/posts", s.GetUserPosts)
	users.Get("/:id", s.GetUserProfile)
	users.Delete("/:id", s.DeleteUser)

	friends := protected.Group("/friends")
	friends.Get("/", s.GetFriends)
	// Specific /requests routes before generic /:userId
	friends.Get("/requests", s.GetPendingRequests)
	friends.Get("/requests/sent", s.GetSentRequests)
	friends.Post("/requests/:userId", s.limit(5, 5*time.Minute, "friend_request"), s.SendFriendRequest)
	friends.Post("/requests/:userId/accept", s.AcceptFriendRequest)
	friends.Post("/requests/:userId/reject", s.RejectFriendRequest)
	friends.Delete("/requests/:userId", s.CancelFriendRequest)
	friends.Get("/status/:userId", s.GetFriendshipStatus)
	// Generic /:userId route must be last
	friends.Delete("/:userId", s.RemoveFriend)

	conversations := protected.Group("/conversations")
	conversations.Get("/", s.GetConversations)
	conversations.Get("/unread-count", s.GetUnreadMessageCount)
	conversations.Get("/with/:userId", s.GetConversationWith)
	conversations.Get("/:id/messages", s.GetMessages)
	conversations.Post("/:id/messages", s.limit(15, time.Minute, "send_chat"), s.SendMessage)
	conversations.Post("/:id/read", s.MarkConversationRead)

	messages := protected.Group("/messages")
	messages.Post("/:id/read", s.MarkMessageRead)
	messages.Delete("/:id", s.AdminRequired(), s.DeleteMessage)

	posts := protected.Group("/posts")
	posts.Post("/", s.limit(5, 5*time.Minute, "create_post"), s.CreatePost)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts.Post("/:id/like", s.LikePost)
	posts.Delete("/:id/like", s.UnlikePost)
	posts.Put("/:id/reaction", s.SetReaction)
	posts.Delete("/:id/reaction", s.ClearReaction)
	posts.Post("/:id/comments", s.limit(10, time.Minute, "create_comment"), s.CreateComment)
	posts.Put("/:id/comments/:commentId", s.UpdateComment)
	posts.Delete("/:id/comments/:commentId", s.DeleteComment)
	posts.Post("/:id/comments/:commentId/like", s.LikeComment)
	posts.Delete("/:id/comments/:commentId/like", s.UnlikeComment)
	posts.Put("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	notes := protected.Group("/notifications")
	notes.Get("/", s.GetNotifications)
	notes.Get("/unread-count", s.GetUnreadNotificationCount)
	notes.Post("/read-all", s.MarkAllNotificationsRead)
	notes.Post("/:id/read", s.MarkNotificationRead)
	notes.Delete("/:id", s.DeleteNotification)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports the health of the store and Redis.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "memory"
	if s.db != nil {
		dbStatus = "healthy"
		sqlDB, err := s.db.DB()
		if err != nil {
			dbStatus = "unhealthy"
		} else if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus = "unhealthy"
		}
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"store": dbStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after the auth middleware so that userID is available.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := s.currentUserID(c)
		if err != nil {
			return nil
		}
		user, err := s.userService.GetUserByID(c.UserContext(), userID)
		if err != nil {
			return models.RespondWithAppError(c, err)
		}
		if !user.IsAdmin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// Start wires the hub to Redis pub/sub and serves HTTP until shut down.
func (s *Server) Start() error {
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	s.app = s.NewApp()

	if s.notifier.Enabled() {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			observability.Logger.Error("failed to start notification wiring", slog.String("error", err.Error()))
		}
	}

	observability.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	var errs []error
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			if cerr := sqlDB.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close database: %w", cerr))
			}
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", rerr))
		}
	}

	observability.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
