package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type sampleTextRequest struct {
	Text string `json:"text"`
}

// GetSampleText returns the current sample text
func (h *Handler) GetSampleText(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"text": h.text.Text()})
}

// UpdateSampleText replaces the sample text; every live preview re-renders
func (h *Handler) UpdateSampleText(c echo.Context) error {
	var req sampleTextRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	h.text.SetText(req.Text)
	return c.JSON(http.StatusOK, map[string]string{"text": req.Text})
}
