package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/logger"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"

	"github.com/smartscale/scale-server/internal/config"
)

const shutdownGrace = 3 * time.Second

// Server couples the gin engine with its http.Server so the run command can
// start and stop them as one unit.
type Server struct {
	ginEngine *gin.Engine
	inner     *http.Server
}

func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(getGinMode(cfg.Environment))

	engine := newEngine(cfg)
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	return &Server{
		ginEngine: engine,
		inner:     &http.Server{Addr: addr, Handler: engine},
	}, nil
}

func newEngine(cfg *config.Config) *gin.Engine {
	engine := gin.New()

	engine.Use(logger.SetLogger(
		logger.WithUTC(true),
		logger.WithSkipPath([]string{"/healthz"}),
	))

	engine.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"*"},
		AllowCredentials: true,
		MaxAge:           300 * time.Second,
	}))

	// Serve the bundled scale UI when one is configured.
	if cfg.PublicDir != "" {
		engine.Use(static.Serve("/", static.LocalFile(cfg.PublicDir, true)))
	}
	engine.Use(gin.Recovery())

	return engine
}

func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	return s.inner.Shutdown(ctx)
}

func getGinMode(env string) string {
	switch env {
	case "dev":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
