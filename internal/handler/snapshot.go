package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"fontshelf/internal/snapshot"
)

func (h *Handler) snapshotsDisabled(c echo.Context) error {
	return c.JSON(http.StatusNotImplemented, map[string]string{"error": "Snapshots are not configured"})
}

// ListSnapshots lists the collection archives, newest first
func (h *Handler) ListSnapshots(c echo.Context) error {
	if h.snapshots == nil {
		return h.snapshotsDisabled(c)
	}
	list, err := h.snapshots.List()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list snapshots"})
	}
	if list == nil {
		list = []snapshot.Info{}
	}
	return c.JSON(http.StatusOK, list)
}

// CreateSnapshot archives the collection now
func (h *Handler) CreateSnapshot(c echo.Context) error {
	if h.snapshots == nil {
		return h.snapshotsDisabled(c)
	}
	info, err := h.snapshots.Create(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create snapshot"})
	}
	return c.JSON(http.StatusCreated, info)
}

// DownloadSnapshot streams an archive
func (h *Handler) DownloadSnapshot(c echo.Context) error {
	if h.snapshots == nil {
		return h.snapshotsDisabled(c)
	}
	name := c.Param("name")
	f, err := h.snapshots.Open(name)
	if err != nil {
		return snapshotError(c, err)
	}
	defer f.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+name)
	c.Response().Header().Set(echo.HeaderContentType, "application/gzip")
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), f)
	return err
}

// RestoreSnapshot adds the fonts of an archive missing from the collection
func (h *Handler) RestoreSnapshot(c echo.Context) error {
	if h.snapshots == nil {
		return h.snapshotsDisabled(c)
	}
	added, err := h.snapshots.Restore(c.Param("name"))
	if err != nil {
		return snapshotError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"added": added})
}

func snapshotError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, snapshot.ErrInvalidName):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid snapshot name"})
	case errors.Is(err, snapshot.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Snapshot not found"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read snapshot"})
	}
}
