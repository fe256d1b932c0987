package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/skillforge/skill-badges/internal/config"
	"github.com/skillforge/skill-badges/internal/database"
	"github.com/skillforge/skill-badges/internal/services"
)

type Server struct {
	router       *gin.Engine
	config       *config.Config
	db           *database.Database
	badgeService *services.BadgeService
	logger       zerolog.Logger
	httpServer   *http.Server
}

func NewServer(cfg *config.Config, db *database.Database, badgeService *services.BadgeService, logger zerolog.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	if len(cfg.HTTP.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.AllowOrigins
	} else {
		// Default origins for development
		corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://localhost:5173", "http://127.0.0.1:3000", "http://127.0.0.1:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "Content-Type"}
	corsConfig.MaxAge = 12 * time.Hour

	router.Use(cors.New(corsConfig))

	server := &Server{
		router:       router,
		config:       cfg,
		db:           db,
		badgeService: badgeService,
		logger:       logger,
	}

	server.setupRoutes()

	return server, nil
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthHandler)

	// Swagger documentation
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// On-demand schema provisioning
	s.router.GET("/create-skill-badges-table", s.provisionTableHandler)

	// Badge resource
	badges := s.router.Group("/badges")
	{
		badges.POST("", s.createBadgeHandler)
		badges.GET("", s.listBadgesHandler)
		badges.GET("/:id", s.getBadgeHandler)
		badges.PUT("/:id", s.updateBadgeHandler)
		badges.PATCH("/:id/verify", s.verifyBadgeHandler)
		badges.DELETE("/:id", s.deleteBadgeHandler)
	}

	// Student-scoped listing
	s.router.GET("/students/:studentId/badges", s.listStudentBadgesHandler)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func LoggerMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		clientIP := c.ClientIP()
		method := c.Request.Method
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		if raw != "" {
			path = path + "?" + raw
		}

		logger.Info().
			Str("client_ip", clientIP).
			Str("method", method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("error", errorMessage).
			Msg("HTTP request")
	}
}

// healthHandler godoc
// @Summary Health check
// @Description Check if the service is healthy
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()

	dbHealthy := true
	var dbError string
	if err := s.db.Health(ctx); err != nil {
		dbHealthy = false
		dbError = err.Error()
	}

	status := "healthy"
	if !dbHealthy {
		status = "unhealthy"
	}

	response := gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"database": gin.H{
			"healthy": dbHealthy,
			"error":   dbError,
		},
	}

	if !dbHealthy {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}
