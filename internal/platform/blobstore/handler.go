package blobstore

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type listResponse struct {
	Items []*BlobMetadata `json:"items"`
	Total int             `json:"total"`
}

// BlobHandler serves archived documents. Archives are written by the export
// flow, so there is no upload route.
type BlobHandler struct {
	store BlobStore
}

func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

// RegisterRoutes mounts read routes on g and the delete route on admin.
func (h *BlobHandler) RegisterRoutes(g, admin *echo.Group) {
	g.GET("/blobs/:id/metadata", h.handleGetMetadata)
	g.GET("/blobs/:id", h.handleDownload)
	g.GET("/blobs", h.handleList)
	admin.DELETE("/blobs/:id", h.handleDelete)
}

func (h *BlobHandler) notFoundOr500(err error) error {
	if errors.Is(err, ErrBlobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	rc, meta, err := h.store.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.notFoundOr500(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	c.Response().Header().Set("ETag", `"`+meta.Hash+`"`)
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *BlobHandler) handleGetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.notFoundOr500(err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *BlobHandler) handleDelete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.notFoundOr500(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *BlobHandler) handleList(c echo.Context) error {
	params := ListParams{
		ClientID: c.QueryParam("client_id"),
		RecordID: c.QueryParam("record_id"),
		Category: c.QueryParam("category"),
		Limit:    intParam(c, "limit", 20),
		Offset:   intParam(c, "offset", 0),
	}

	items, total, err := h.store.List(c.Request().Context(), params)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*BlobMetadata{}
	}
	return c.JSON(http.StatusOK, listResponse{Items: items, Total: total})
}

func intParam(c echo.Context, name string, defaultVal int) int {
	v := c.QueryParam(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
