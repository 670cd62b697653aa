package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/adityadhimaann/brocode-realtime/internal/backend"
	appconfig "github.com/adityadhimaann/brocode-realtime/internal/config"
	apphttp "github.com/adityadhimaann/brocode-realtime/internal/http"
	applogger "github.com/adityadhimaann/brocode-realtime/internal/logger"
	"github.com/adityadhimaann/brocode-realtime/internal/ws"
)

// Server wires config, logging, the backend client and the HTTP surface
// into one runnable unit. Embedders construct it with a config path and
// drive Run/Shutdown themselves.
type Server struct {
	cfg    appconfig.Config
	logger *zap.Logger
	server *http.Server
}

// New loads configuration and assembles the server.
func New(configPath string) (*Server, error) {
	cfg, err := appconfig.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load brocode config: %w", err)
	}

	logger, err := applogger.New(cfg.Log)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	logger.Info("logger configured",
		zap.String("level", cfg.Log.Level),
		zap.Bool("stdout", cfg.Log.Stdout),
		zap.Bool("file_enabled", cfg.Log.File.Enabled),
	)
	logger.Info("config loaded",
		zap.String("config_path", configPath),
		zap.String("root_dir", cfg.RootDir),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("backend_url", cfg.Backend.BaseURL),
	)

	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build backend client: %w", err)
	}

	wsHandler := ws.NewHandler(logger, cfg, client)
	router := apphttp.NewRouter(cfg, wsHandler, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		server: httpServer,
	}, nil
}

// Logger returns the configured logger.
func (s *Server) Logger() *zap.Logger {
	if s == nil {
		return zap.NewNop()
	}
	return s.logger
}

// Run serves until Shutdown is called or the listener fails.
func (s *Server) Run() error {
	if s == nil || s.server == nil {
		return nil
	}
	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	if s == nil || s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Shutdown drains in-flight requests and stops serving.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
