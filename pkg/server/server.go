// Package server exposes the engine over HTTP with gin.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillmesh/skillgraph"
	"github.com/skillmesh/skillgraph/pkg/config"
	"github.com/skillmesh/skillgraph/pkg/server/handlers"
	"github.com/skillmesh/skillgraph/pkg/store"
	"github.com/skillmesh/skillgraph/pkg/types"
)

// Server represents the HTTP server
type Server struct {
	config *config.Config
	router *gin.Engine
	engine skillgraph.SkillGraph
	store  store.Store
	server *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, engine skillgraph.SkillGraph, st store.Store) *Server {
	return &Server{
		config: cfg,
		engine: engine,
		store:  st,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	// Set gin mode
	gin.SetMode(s.config.Server.Mode)

	// Create router
	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// Router returns the configured gin router. Setup must have been called.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.store)
	embeddingsHandler := handlers.NewEmbeddingsHandler(s.engine)
	graphHandler := handlers.NewGraphHandler(s.engine, s.engine)
	searchHandler := handlers.NewSearchHandler(s.engine)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck) // Kubernetes liveness probe

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/embeddings", embeddingsHandler.Upsert)
		v1.DELETE("/embeddings/:artifact_id", embeddingsHandler.Delete)

		orgs := v1.Group("/orgs/:org_id")
		{
			orgs.POST("/detect", graphHandler.Detect)
			orgs.GET("/topology", graphHandler.Topology)
		}

		v1.POST("/search", searchHandler.Search)
	}
}

// Start starts the server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Principal-ID, X-Org-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextMiddleware extracts identity headers into the request context so
// telemetry can attribute errors.
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if orgID := c.GetHeader("X-Org-ID"); orgID != "" {
			ctx = context.WithValue(ctx, types.ContextKeyOrgID, orgID)
		}
		if principalID := c.GetHeader("X-Principal-ID"); principalID != "" {
			ctx = context.WithValue(ctx, types.ContextKeyPrincipalID, principalID)
		}
		ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "server")

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
