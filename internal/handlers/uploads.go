package handlers

import (
	"errors"
	"mime/multipart"
	"strconv"

	"github.com/Jerit-Baiju/caelium/internal/apperr"
	"github.com/Jerit-Baiju/caelium/internal/middleware"
	"github.com/Jerit-Baiju/caelium/internal/services"
	"github.com/Jerit-Baiju/caelium/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type UploadsHandler struct {
	Uploads  *services.UploadService
	Sessions *services.SessionService
}

func NewUploadsHandler(uploads *services.UploadService, sessions *services.SessionService) *UploadsHandler {
	return &UploadsHandler{Uploads: uploads, Sessions: sessions}
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func (h *UploadsHandler) optionsFromForm(c *fiber.Ctx) (services.UploadOptions, error) {
	parentID, err := parseOptionalParent(c.FormValue("directory"))
	if err != nil {
		return services.UploadOptions{}, errors.New("invalid directory id")
	}
	return services.UploadOptions{
		Encrypt:      parseBool(c.FormValue("encrypt")),
		Public:       parseBool(c.FormValue("public")),
		ParentID:     parentID,
		CustomName:   c.FormValue("name"),
		AutoOrganize: parseBool(c.FormValue("auto_organize")),
	}, nil
}

func (h *UploadsHandler) uploadFile(c *fiber.Ctx, ownerID uuid.UUID, fh *multipart.FileHeader, opts services.UploadOptions) (interface{}, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return h.Uploads.Upload(c.Context(), ownerID, services.UploadedBytes{
		Reader:      f,
		Size:        fh.Size,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
	}, opts)
}

type sourceUploadRequest struct {
	URL          string `json:"url"`
	Asset        string `json:"asset"`
	Name         string `json:"name"`
	Encrypt      bool   `json:"encrypt"`
	Public       bool   `json:"public"`
	Directory    string `json:"directory"`
	AutoOrganize bool   `json:"auto_organize"`
}

// Upload ingests a single file. The bytes come from a multipart "file"
// field, or, with a JSON body, from a remote URL or a bundled default asset.
func (h *UploadsHandler) Upload(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	if fh, err := c.FormFile("file"); err == nil {
		opts, err := h.optionsFromForm(c)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
		entry, err := h.uploadFile(c, user.ID, fh, opts)
		if err != nil {
			return respondErr(c, err)
		}
		return utils.Success(c, fiber.StatusCreated, entry)
	}

	var req sourceUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file field or json body required")
	}
	parentID, err := parseOptionalParent(req.Directory)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid directory id")
	}
	opts := services.UploadOptions{
		Encrypt:      req.Encrypt,
		Public:       req.Public,
		ParentID:     parentID,
		CustomName:   req.Name,
		AutoOrganize: req.AutoOrganize,
	}

	var source services.UploadSource
	switch {
	case req.URL != "":
		source = services.RemoteURL{URL: req.URL, Filename: req.Name}
	case req.Asset != "":
		source = services.NamedDefaultAsset{Name: req.Asset}
	default:
		return utils.Error(c, fiber.StatusBadRequest, "one of file, url, or asset is required")
	}

	entry, err := h.Uploads.Upload(c.Context(), user.ID, source, opts)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, entry)
}

// UploadBatch ingests every file in the multipart "files" field. Files are
// processed independently; the response pairs each filename with its result.
func (h *UploadsHandler) UploadBatch(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	form, err := c.MultipartForm()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "multipart form required")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "files field is required")
	}

	opts, err := h.optionsFromForm(c)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}
	// Batch uploads never share a custom name.
	opts.CustomName = ""

	results := make([]fiber.Map, 0, len(files))
	for _, fh := range files {
		entry, err := h.uploadFile(c, user.ID, fh, opts)
		if err != nil {
			results = append(results, fiber.Map{
				"filename": fh.Filename,
				"success":  false,
				"error":    err.Error(),
			})
			continue
		}
		results = append(results, fiber.Map{
			"filename": fh.Filename,
			"success":  true,
			"entry":    entry,
		})
	}
	return utils.Success(c, fiber.StatusOK, results)
}

type initiateRequest struct {
	Filename    string `json:"filename"`
	FileSize    int64  `json:"file_size"`
	TotalChunks int    `json:"total_chunks"`
	Encrypt     bool   `json:"encrypt"`
	Directory   string `json:"directory"`
}

func (h *UploadsHandler) Initiate(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	parentID, err := parseOptionalParent(req.Directory)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid directory id")
	}

	session, err := h.Sessions.Initiate(user.ID, req.Filename, req.FileSize, req.TotalChunks, req.Encrypt, parentID)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"upload_id":    session.ID,
		"total_chunks": session.TotalChunks,
		"expires_at":   session.ExpiresAt,
	})
}

// Chunk receives one chunk as the multipart "chunk" field with its index in
// "chunk_number". Chunks may arrive in any order; retries are idempotent.
func (h *UploadsHandler) Chunk(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	sessionID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	index, err := strconv.Atoi(c.FormValue("chunk_number"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "chunk_number is required")
	}

	fh, err := c.FormFile("chunk")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "chunk field is required")
	}
	f, err := fh.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "unreadable chunk")
	}
	defer f.Close()

	received, total, err := h.Sessions.AppendChunk(user.ID, sessionID, index, f)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"chunks_received": received,
		"total_chunks":    total,
	})
}

type finalizeRequest struct {
	Public       bool   `json:"public"`
	Directory    string `json:"directory"`
	Name         string `json:"name"`
	AutoOrganize bool   `json:"auto_organize"`
}

// Finalize assembles the session and ingests the file. A session with
// missing chunks reports its progress alongside the error.
func (h *UploadsHandler) Finalize(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	sessionID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	var req finalizeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	parentID, err := parseOptionalParent(req.Directory)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid directory id")
	}

	entry, received, total, err := h.Sessions.Finalize(c.Context(), user.ID, sessionID, services.UploadOptions{
		Public:       req.Public,
		ParentID:     parentID,
		CustomName:   req.Name,
		AutoOrganize: req.AutoOrganize,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrIncomplete) {
			return utils.ErrorWithDetails(c, apperr.StatusCode(err), err.Error(), fiber.Map{
				"chunks_received": received,
				"total_chunks":    total,
			})
		}
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, entry)
}
