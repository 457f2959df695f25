package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"fontshelf/internal/version"
)

// Routes registers the API under api.
func (h *Handler) Routes(api *echo.Group) {
	api.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, version.GetInfo())
	})
	api.GET("/capabilities", h.GetCapabilities)
	api.GET("/status", h.GetStatus)

	// Fonts API
	api.GET("/fonts", h.ListFonts)
	api.POST("/fonts", h.UploadFonts)
	api.POST("/fonts/scan", h.ScanFonts)
	api.GET("/fonts/:id", h.GetFont)
	api.GET("/fonts/:id/preview", h.PreviewFont)
	api.GET("/fonts/:id/download", h.DownloadFont)
	api.DELETE("/fonts/:id", h.DeleteFont)

	// Sample text
	api.GET("/sample-text", h.GetSampleText)
	api.PUT("/sample-text", h.UpdateSampleText)

	api.GET("/events", h.Events)

	// Snapshots API
	api.GET("/snapshots", h.ListSnapshots)
	api.POST("/snapshots", h.CreateSnapshot)
	api.GET("/snapshots/:name", h.DownloadSnapshot)
	api.POST("/snapshots/:name/restore", h.RestoreSnapshot)
}
