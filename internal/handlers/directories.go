package handlers

import (
	"github.com/Jerit-Baiju/caelium/internal/middleware"
	"github.com/Jerit-Baiju/caelium/internal/services"
	"github.com/Jerit-Baiju/caelium/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type DirectoriesHandler struct {
	Dirs *services.DirectoryService
}

func NewDirectoriesHandler(dirs *services.DirectoryService) *DirectoriesHandler {
	return &DirectoriesHandler{Dirs: dirs}
}

type createDirectoryRequest struct {
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

func (h *DirectoriesHandler) Create(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req createDirectoryRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	parentID, err := parseOptionalParent(req.Parent)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid parent id")
	}

	dir, err := h.Dirs.Create(user.ID, req.Name, parentID)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, dir)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *DirectoriesHandler) Rename(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	dirID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	dir, err := h.Dirs.Rename(user.ID, dirID, req.Name)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusOK, dir)
}

type moveRequest struct {
	Parent string `json:"parent"`
}

func (h *DirectoriesHandler) Move(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	dirID, err := parseUUID(c, "id")
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

	dir, err := h.Dirs.Move(user.ID, dirID, parentID)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusOK, dir)
}

func (h *DirectoriesHandler) Breadcrumbs(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	dirID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	crumbs, err := h.Dirs.Breadcrumbs(user.ID, &dirID)
	if err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusOK, crumbs)
}

func (h *DirectoriesHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	dirID, err := parseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.Dirs.Delete(user.ID, dirID); err != nil {
		return respondErr(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}
