package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Jerit-Baiju/caelium/internal/config"
	"github.com/Jerit-Baiju/caelium/internal/middleware"
	"github.com/Jerit-Baiju/caelium/internal/models"
	"github.com/Jerit-Baiju/caelium/internal/services"
	"github.com/Jerit-Baiju/caelium/internal/storage"
	"github.com/Jerit-Baiju/caelium/pkg/logger"
	"github.com/Jerit-Baiju/caelium/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	remote   *fakeRemoteStore
	migrator *services.MigrationService
	uploads  *services.UploadService
}

// fakeRemoteStore keeps uploaded objects in memory.
type fakeRemoteStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func newFakeRemoteStore() *fakeRemoteStore {
	return &fakeRemoteStore{objects: map[string][]byte{}}
}

func (f *fakeRemoteStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("remote store unavailable")
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[objectName] = data
	return nil
}

func (f *fakeRemoteStore) Download(ctx context.Context, objectName string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, 0, fmt.Errorf("remote store unavailable")
	}
	data, ok := f.objects[objectName]
	if !ok {
		return nil, 0, fmt.Errorf("object %s not found", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (f *fakeRemoteStore) Delete(ctx context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectName)
	return nil
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	err = db.AutoMigrate(
		&models.User{},
		&models.Directory{},
		&models.MediaBlob{},
		&models.FileEntry{},
		&models.UploadSession{},
		&models.UploadChunk{},
		&models.Event{},
	)
	if err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	root := t.TempDir()
	localStore, err := storage.NewLocalStore(filepath.Join(root, "blobs"), filepath.Join(root, "scratch"))
	if err != nil {
		t.Fatalf("failed creating local store: %v", err)
	}

	readCache, err := services.NewReadCache(config.CacheConfig{
		Dir:      filepath.Join(root, "cache"),
		MaxBytes: 64 * 1024 * 1024,
		TTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed creating read cache: %v", err)
	}

	remote := newFakeRemoteStore()
	storageCfg := config.StorageConfig{
		BlobDir:       filepath.Join(root, "blobs"),
		ScratchDir:    filepath.Join(root, "scratch"),
		AssetsDir:     filepath.Join(root, "assets"),
		MaxUploadSize: 64 * 1024 * 1024,
	}

	eventService := services.NewEventService(db, 10)
	t.Cleanup(eventService.Close)
	dirService := services.NewDirectoryService(db)
	entryService := services.NewEntryService(db, dirService, eventService)
	migrationService := services.NewMigrationService(db, localStore, remote, eventService, config.MigratorConfig{
		QueueSize:     10,
		Workers:       1,
		UploadTimeout: 10 * time.Second,
	})
	t.Cleanup(migrationService.Close)
	uploadService := services.NewUploadService(db, localStore, remote, readCache, dirService, entryService, eventService, nil, storageCfg)
	sessionService := services.NewSessionService(db, localStore, uploadService, config.SessionConfig{TTL: time.Hour}, storageCfg)

	authHandler := NewAuthHandler(db)
	dirsHandler := NewDirectoriesHandler(dirService)
	filesHandler := NewFilesHandler(entryService, uploadService)
	uploadsHandler := NewUploadsHandler(uploadService, sessionService)
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

	cloud.Get("/files/:id/download", authMiddleware.OptionalAuth, filesHandler.Download)
	cloud.Get("/files/:id/preview", authMiddleware.OptionalAuth, filesHandler.Preview)

	fileRoutes := cloud.Group("/files", authMiddleware.RequireAuth)
	fileRoutes.Post("/:id/rename", filesHandler.Rename)
	fileRoutes.Post("/:id/move", filesHandler.Move)
	fileRoutes.Delete("/:id", filesHandler.Delete)

	return &testEnv{
		app:      app,
		db:       db,
		remote:   remote,
		migrator: migrationService,
		uploads:  uploadService,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

// performMultipartUpload sends files plus form fields to path.
func performMultipartUpload(t *testing.T, app *fiber.App, path string, fileField string, files map[string][]byte, fields map[string]string, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := writer.CreateFormFile(fileField, name)
		if err != nil {
			t.Fatalf("failed creating form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("failed writing form file: %v", err)
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing form field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{"Content-Type": writer.FormDataContentType()}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	return performRequest(t, app, http.MethodPost, path, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func dataField(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	if success, _ := body["success"].(bool); !success {
		t.Fatalf("expected success=true, got %+v", body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %+v", body["data"])
	}
	return data
}
