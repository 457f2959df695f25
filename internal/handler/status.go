package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"fontshelf/internal/fontdec"
)

// GetCapabilities tells clients which ingestion entry points exist. Upload
// is always available; directory scanning needs a configured font root.
func (h *Handler) GetCapabilities(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"upload":         true,
		"directory_scan": h.fontRoot != nil,
		"formats":        fontdec.Formats(),
		"max_file_size":  h.maxFileSize,
	})
}

// GetStatus reports collection size, persistence and snapshot health
func (h *Handler) GetStatus(c echo.Context) error {
	status := map[string]any{
		"fonts":   h.store.Len(),
		"decoded": h.registry.Len(),
		"views":   h.board.Len(),
	}
	if h.decoder != nil {
		status["woff2_ready"] = h.decoder.DependencyReady()
	}
	if h.persist != nil {
		status["pending_saves"] = h.persist.Pending()
		status["save_error"] = errString(h.persist.LastError())
	}
	if h.snapshots != nil {
		last, err := h.snapshots.Status()
		status["last_snapshot"] = last
		status["snapshot_error"] = errString(err)
	}
	return c.JSON(http.StatusOK, status)
}

func errString(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
