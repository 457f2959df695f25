package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"fontshelf/internal/collection"
	"fontshelf/internal/fontcache"
	"fontshelf/internal/grouping"
	"fontshelf/internal/ingest"
	"fontshelf/internal/preview"
)

const previewTimeout = 30 * time.Second

// FontResponse represents one font of the collection
type FontResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Family      string `json:"family"`
	Subfamily   string `json:"subfamily"`
	FontType    string `json:"font_type"`
	State       string `json:"state"`
	Error       string `json:"error,omitempty"`
	FileSize    int    `json:"file_size"`
	DownloadURL string `json:"download_url"`
	PreviewURL  string `json:"preview_url"`
	CreatedAt   string `json:"created_at"`
}

// GroupResponse is one family with its fonts in discovery order
type GroupResponse struct {
	Family  string         `json:"family"`
	Unnamed bool           `json:"unnamed,omitempty"`
	Fonts   []FontResponse `json:"fonts"`
}

func (h *Handler) fontResponse(id string, e collection.Entry) FontResponse {
	resp := FontResponse{
		ID:          id,
		Name:        e.Name,
		Family:      e.FontFamily,
		Subfamily:   e.FontSubfamily,
		FontType:    e.FontType,
		State:       h.registry.State(id).String(),
		FileSize:    e.Size(),
		DownloadURL: fmt.Sprintf("/api/fonts/%s/download", id),
		PreviewURL:  fmt.Sprintf("/api/fonts/%s/preview", id),
		CreatedAt:   e.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if err := h.registry.Err(id); err != nil {
		resp.Error = err.Error()
	}
	if desc, ok := h.registry.Get(id); ok {
		resp.Family, resp.Subfamily = desc.Family, desc.Subfamily
	}
	return resp
}

// familyOf prefers the decoded descriptor and falls back to the stored name.
func (h *Handler) familyOf(id string) string {
	if desc, ok := h.registry.Get(id); ok {
		return desc.Family
	}
	family, _ := h.store.Field(id, collection.FieldFontFamily)
	return family
}

// ListFonts returns the collection grouped by family
func (h *Handler) ListFonts(c echo.Context) error {
	ids := h.store.IDs()
	groups := grouping.Build(ids, h.familyOf, h.grouping)

	response := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		gr := GroupResponse{Family: g.Family, Unnamed: g.Unnamed, Fonts: make([]FontResponse, 0, len(g.IDs))}
		for _, id := range g.IDs {
			e, ok := h.store.Entry(id)
			if !ok {
				continue
			}
			gr.Fonts = append(gr.Fonts, h.fontResponse(id, e))
		}
		response = append(response, gr)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"groups": response,
		"total":  len(ids),
	})
}

// GetFont returns one font
func (h *Handler) GetFont(c echo.Context) error {
	id := c.Param("id")
	e, ok := h.store.Entry(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Font not found"})
	}
	return c.JSON(http.StatusOK, h.fontResponse(id, e))
}

// UploadFonts ingests every file of a multipart upload
func (h *Handler) UploadFonts(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid multipart form"})
	}
	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file uploaded"})
	}

	files := make([]ingest.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, ingest.File{
			Name: fh.Filename,
			Type: fh.Header.Get(echo.HeaderContentType),
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	res := h.pipeline.Ingest(c.Request().Context(), files)
	return c.JSON(http.StatusOK, res)
}

type scanRequest struct {
	Path string `json:"path"`
}

// ScanFonts ingests every font below a directory of the font root
func (h *Handler) ScanFonts(c echo.Context) error {
	if h.fontRoot == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": "Directory scanning is not configured"})
	}
	var req scanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	dir, err := h.fontRoot.Resolve(req.Path)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid path"})
	}
	if isDir, err := h.fontRoot.IsDir(dir); err != nil || !isDir {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Directory not found"})
	}

	files, err := ingest.DirectoryFiles(h.fontRoot, dir, h.scanExcludes)
	if err != nil {
		zap.L().Error("Directory scan failed", zap.String("dir", dir), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read directory"})
	}

	res := h.pipeline.Ingest(c.Request().Context(), files)
	return c.JSON(http.StatusOK, res)
}

// PreviewFont renders the sample text in a font as a PNG. Requesting a
// preview is what makes the font visible and starts its decode.
func (h *Handler) PreviewFont(c echo.Context) error {
	id := c.Param("id")
	if !h.store.Has(id) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Font not found"})
	}

	dpr := 1.0
	if v := c.QueryParam("dpr"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid dpr"})
		}
		dpr = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), previewTimeout)
	defer cancel()

	view := h.board.View(id, dpr)
	view.Show(ctx)
	frame, err := view.WaitCurrent(ctx)
	if err != nil {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "Preview not ready"})
	}
	switch {
	case frame.State == fontcache.StateFailed && errors.Is(frame.Err, fontcache.ErrUnknownFont):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Font not found"})
	case frame.State == fontcache.StateFailed:
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "Font could not be decoded"})
	case frame.Image == nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to render preview"})
	}

	var buf bytes.Buffer
	if err := preview.EncodePNG(&buf, frame.Image); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to encode preview"})
	}
	res := c.Response().Header()
	res.Set("Cache-Control", "no-store")
	res.Set("X-Preview-Revision", strconv.FormatUint(frame.Revision, 10))
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// DownloadFont serves the stored font file
func (h *Handler) DownloadFont(c echo.Context) error {
	id := c.Param("id")
	e, ok := h.store.Entry(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Font not found"})
	}
	data, err := e.Bytes()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read font file"})
	}

	mimeType := e.FontType
	if mimeType == "" {
		mimeType = echo.MIMEOctetStream
	}
	res := c.Response().Header()
	res.Set("Cache-Control", "public, max-age=31536000")
	res.Set("Access-Control-Allow-Origin", "*")
	res.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", e.Name))
	return c.Blob(http.StatusOK, mimeType, data)
}

// DeleteFont removes a font, its descriptor and its live previews
func (h *Handler) DeleteFont(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, collection.ErrNotFound) || errors.Is(err, collection.ErrInvalidID) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Font not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete font"})
	}
	h.registry.Forget(id)
	h.board.Forget(id)

	return c.JSON(http.StatusOK, map[string]string{"message": "Font deleted successfully"})
}
