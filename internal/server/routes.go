package server

import (
	"github.com/nfrund/chatroom/internal/handlers"
	"github.com/nfrund/chatroom/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	cfg := s.App.Config
	authHandler := handlers.NewAuthHandler(s.App.Store, cfg.GetSessionName())
	chatHandler := handlers.NewChatHandler(s.App.Store, s.App.Chat)
	rateLimiter := middleware.RateLimiter()
	requireAuth := middleware.Auth(s.App.Store, cfg.GetSessionName())

	s.E.GET("/health", handlers.Health)

	s.E.POST("/api/register", authHandler.Register, rateLimiter)
	s.E.POST("/api/login", authHandler.Login, rateLimiter)
	s.E.POST("/api/logout", authHandler.Logout)

	api := s.E.Group("/api", requireAuth)
	api.GET("/user", authHandler.Me)
	api.PATCH("/user", chatHandler.UpdateUser)
	api.GET("/users", chatHandler.ListUsers)
	api.GET("/messages", chatHandler.ListMessages)
	api.POST("/messages", chatHandler.PostMessage)

	// The handshake authenticates itself and closes with 4001 on failure.
	s.E.GET("/ws", s.App.Socket.Serve)
}
