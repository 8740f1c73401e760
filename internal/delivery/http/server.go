package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ilindan-dev/notifyhub/internal/breaker"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/rs/zerolog"
)

// Server wraps the configured HTTP server, generalizing the teacher's single
// `/health` handler into the `/health`, `/health/live`, `/health/ready`,
// `/health/detailed` family (§6 "Supplemented features").
type Server struct {
	*http.Server
	logger zerolog.Logger
}

// NewServer builds and configures the gin engine.
func NewServer(cfg *config.Config, handlers *Handlers, breakers *breaker.Registry, logger *zerolog.Logger) *Server {
	log := logger.With().Str("layer", "http_server").Logger()
	log.Info().Msg("initializing http server")

	log.Info().Str("mode", cfg.HTTP.GinMode).Msg("setting gin mode")
	gin.SetMode(cfg.HTTP.GinMode)

	router := gin.New()
	log.Info().Msg("initializing middleware: recovery")
	router.Use(gin.Recovery())

	log.Info().Msg("registering api routes")
	handlers.RegisterRoutes(router)

	log.Info().Msg("registering health check endpoints")
	registerHealthRoutes(router, breakers)

	server := &http.Server{
		Addr:    cfg.HTTP.Port,
		Handler: router,
	}
	return &Server{server, log}
}

func registerHealthRoutes(router *gin.Engine, breakers *breaker.Registry) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health/detailed", func(c *gin.Context) {
		breakerStates := map[string]any{}
		for _, name := range breakers.Names() {
			cb := breakers.For(name)
			stats := cb.GetStats()
			breakerStates[name] = gin.H{
				"state":         stats.State,
				"totalRequests": stats.TotalRequests,
				"failures":      stats.Failures,
				"errorRate":     stats.ErrorRate,
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"breakers":  breakerStates,
		})
	})
}
