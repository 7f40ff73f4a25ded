package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jerit-Baiju/caelium/internal/config"
	"github.com/Jerit-Baiju/caelium/internal/database"
	"github.com/Jerit-Baiju/caelium/internal/handlers"
	"github.com/Jerit-Baiju/caelium/internal/middleware"
	"github.com/Jerit-Baiju/caelium/internal/services"
	"github.com/Jerit-Baiju/caelium/internal/storage"
	"github.com/Jerit-Baiju/caelium/pkg/logger"
	"github.com/Jerit-Baiju/caelium/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	localStore, err := storage.NewLocalStore(cfg.Storage.BlobDir, cfg.Storage.ScratchDir)
	if err != nil {
		log.Fatalf("local storage initialization failed: %v", err)
	}

	remoteStore, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := remoteStore.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	readCache, err := services.NewReadCache(cfg.Cache)
	if err != nil {
		log.Fatalf("read cache initialization failed: %v", err)
	}

	eventService := services.NewEventService(db, cfg.Migrator.QueueSize)
	dirService := services.NewDirectoryService(db)
	entryService := services.NewEntryService(db, dirService, eventService)
	migrationService := services.NewMigrationService(db, localStore, remoteStore, eventService, cfg.Migrator)
	uploadService := services.NewUploadService(db, localStore, remoteStore, readCache, dirService, entryService, eventService, migrationService, cfg.Storage)
	sessionService := services.NewSessionService(db, localStore, uploadService, cfg.Sessions, cfg.Storage)

	stop := make(chan struct{})
	readCache.StartSweeper(stop)
	sessionService.StartReaper(stop)

	authHandler := handlers.NewAuthHandler(db)
	dirsHandler := handlers.NewDirectoriesHandler(dirService)
	filesHandler := handlers.NewFilesHandler(entryService, uploadService)
	uploadsHandler := handlers.NewUploadsHandler(uploadService, sessionService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	cloud := api.Group("/cloud")

	cloud.Get("/explorer", authMiddleware.RequireAuth, filesHandler.Explorer)

	dirRoutes := cloud.Group("/directories", authMiddleware.RequireAuth)
	dirRoutes.Post("/", dirsHandler.Create)
	dirRoutes.Get("/:id/path", dirsHandler.Breadcrumbs)
	dirRoutes.Post("/:id/rename", dirsHandler.Rename)
	dirRoutes.Post("/:id/move", dirsHandler.Move)
	dirRoutes.Delete("/:id", dirsHandler.Delete)

	uploadRoutes := cloud.Group("/upload", authMiddleware.RequireAuth)
	uploadRoutes.Post("/", uploadsHandler.Upload)
	uploadRoutes.Post("/batch", uploadsHandler.UploadBatch)
	uploadRoutes.Post("/initiate", uploadsHandler.Initiate)
	uploadRoutes.Post("/:id/chunk", uploadsHandler.Chunk)
	uploadRoutes.Post("/:id/finalize", uploadsHandler.Finalize)

	// Downloads allow anonymous access to public blobs.
	cloud.Get("/files/:id/download", authMiddleware.OptionalAuth, filesHandler.Download)
	cloud.Get("/files/:id/preview", authMiddleware.OptionalAuth, filesHandler.Preview)

	fileRoutes := cloud.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/:id/rename", filesHandler.Rename)
	fileRoutes.Post("/:id/move", filesHandler.Move)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
		close(stop)
		migrationService.Close()
		eventService.Close()
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
