package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	fiberSwagger "github.com/swaggo/fiber-swagger"
	"go.uber.org/zap"

	"github.com/openkaarten-service/internal/config"
	"github.com/openkaarten-service/internal/delivery/http/handler"
	"github.com/openkaarten-service/internal/delivery/http/middleware"
	"github.com/openkaarten-service/internal/pkg/errors"
	"github.com/openkaarten-service/internal/pkg/utils"
)

// Server - HTTP сервер на основе Fiber
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *zap.Logger

	datasetHandler *handler.DatasetHandler
	adminHandler   *handler.AdminHandler
	healthHandler  *handler.HealthHandler
}

// NewServer - создание нового HTTP сервера
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	datasetHandler *handler.DatasetHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "OpenKaarten Service",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    20 << 20,
		ErrorHandler: customErrorHandler(logger),
	})

	s := &Server{
		app:            app,
		config:         cfg,
		logger:         logger,
		datasetHandler: datasetHandler,
		adminHandler:   adminHandler,
		healthHandler:  healthHandler,
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// App - доступ к fiber.App (используется в тестах)
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) setupMiddlewares() {
	s.app.Use(middleware.Recovery(s.logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.logger))
	s.app.Use(middleware.CORS(s.config.Server.AllowedOrigins))
	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/swagger/*", fiberSwagger.WrapHandler)

	api := s.app.Group("/api/v1")

	api.Get("/health", s.healthHandler.Health)
	api.Get("/formats", s.datasetHandler.GetFormats)

	// Публичное чтение
	api.Get("/datasets", s.datasetHandler.ListDatasets)
	api.Get("/datasets/id/:id", s.datasetHandler.GetDataset)
	api.Get("/datasets/id/:id/:format", s.datasetHandler.GetDatasetFormat)

	// Управление
	admin := api.Group("/admin")
	admin.Post("/datasets", s.adminHandler.CreateDataset)
	admin.Get("/datasets/:id", s.adminHandler.GetDataset)
	admin.Put("/datasets/:id", s.adminHandler.UpdateDataset)
	admin.Delete("/datasets/:id", s.adminHandler.DeleteDataset)
	admin.Post("/datasets/:id/sync", s.adminHandler.SyncDataset)
	admin.Get("/datasets/:id/source-fields", s.adminHandler.GetSourceFields)
	admin.Post("/datasets/:id/schema/resync", s.adminHandler.ResyncSchema)
	admin.Put("/datasets/:id/fields", s.adminHandler.UpdateFields)
	admin.Patch("/features/:id/geometry", s.adminHandler.UpdateFeatureGeometry)
	admin.Put("/features/:id/address", s.adminHandler.UpdateFeatureAddress)
	admin.Put("/features/:id/thumbnail", s.adminHandler.SetFeatureThumbnail)
}

// Start - запуск HTTP сервера
func (s *Server) Start() error {
	addr := s.config.GetServerAddr()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown - graceful shutdown HTTP сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler переводит ошибки fiber (404 маршрута, 405, лимит тела)
// в формат AppError
func customErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if _, ok := errors.As(err); ok {
			return utils.SendError(c, err)
		}

		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("HTTP Error",
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err),
			)
		}

		return utils.SendError(c, errors.New(httpErrorCode(code), err.Error(), code))
	}
}

func httpErrorCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "REQUEST_TOO_LARGE"
	case fiber.StatusBadRequest:
		return errors.ErrInvalidRequest.Code
	}
	return errors.ErrInternalServer.Code
}
