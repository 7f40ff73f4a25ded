package handlers

import (
	"fmt"

	"github.com/Jerit-Baiju/caelium/internal/middleware"
	"github.com/Jerit-Baiju/caelium/internal/services"
	"github.com/Jerit-Baiju/caelium/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type FilesHandler struct {
	Entries *services.EntryService
	Uploads *services.UploadService
}

func NewFilesHandler(entries *services.EntryService, uploads *services.UploadService) *FilesHandler {
	return &FilesHandler{Entries: entries, Uploads: uploads}
}

// Explorer lists one directory level: subdirectories, live files, and the
// breadcrumb trail. ?parent= selects the directory, empty means root.
func (h *FilesHandler) Explorer(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	parentID, err := parseOptionalParent(c.Query("parent"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid parent id")
	}

	listing, err := h.Entries.ListChildren(user.ID, parentID)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusOK, listing)
}

func (h *FilesHandler) requester(c *fiber.Ctx) *uuid.UUID {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return nil
	}
	id := user.ID
	return &id
}

func (h *FilesHandler) serve(c *fiber.Ctx, entryID uuid.UUID, disposition string) error {
	rc, entry, err := h.Uploads.Download(c.Context(), h.requester(c), entryID)
	if err != nil {
		return respondErr(c, err)
	}

	c.Set(fiber.HeaderContentType, entry.Blob.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`%s; filename="%s"`, disposition, entry.Name))
	c.Set(fiber.HeaderContentLength, fmt.Sprintf("%d", entry.Blob.Size))
	return c.SendStream(rc, int(entry.Blob.Size))
}

// Download streams the decrypted plaintext as an attachment. Works without
// auth for public blobs.
func (h *FilesHandler) Download(c *fiber.Ctx) error {
	entryID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	return h.serve(c, entryID, "attachment")
}

// Preview streams the same bytes inline for in-browser rendering.
func (h *FilesHandler) Preview(c *fiber.Ctx) error {
	entryID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}
	return h.serve(c, entryID, "inline")
}

func (h *FilesHandler) Rename(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	entryID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	entry, err := h.Entries.Rename(user.ID, entryID, req.Name)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusOK, entry)
}

func (h *FilesHandler) Move(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	entryID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	var req moveRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	parentID, err := parseOptionalParent(req.Parent)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid parent id")
	}

	entry, err := h.Entries.Move(user.ID, entryID, parentID)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusOK, entry)
}

func (h *FilesHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	entryID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.Entries.SoftDelete(user.ID, entryID); err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}
