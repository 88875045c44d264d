package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/acoustic-workbench-api/internal/filter"
	"github.com/noah-isme/acoustic-workbench-api/internal/models"
	"github.com/noah-isme/acoustic-workbench-api/internal/service"
	appErrors "github.com/noah-isme/acoustic-workbench-api/pkg/errors"
	"github.com/noah-isme/acoustic-workbench-api/pkg/response"
)

type filterService interface {
	Filter(ctx context.Context, resource string, body []byte, query url.Values, scopes ...filter.Expr) (*service.FilterResult, error)
}

// FilterHandler exposes the generic list and filter endpoints.
type FilterHandler struct {
	service filterService
}

// NewFilterHandler builds a new handler.
func NewFilterHandler(service filterService) *FilterHandler {
	return &FilterHandler{service: service}
}

// List godoc
// @Summary List a resource
// @Description Query string filters use filter_<field>=value; filter_encoded takes a base64url JSON filter.
// @Tags Filter
// @Produce json
// @Param resource path string true "Resource name"
// @Param page query int false "Page"
// @Param items query int false "Items per page"
// @Param order_by query string false "Sort field"
// @Param direction query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /api/v1/{resource} [get]
func (h *FilterHandler) List(c *gin.Context) {
	result, err := h.service.Filter(c.Request.Context(), c.Param("resource"), nil, c.Request.URL.Query())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondFiltered(c, result)
}

// Filter godoc
// @Summary Filter a resource
// @Tags Filter
// @Accept json
// @Produce json
// @Param resource path string true "Resource name"
// @Param payload body object false "filter, projection, sorting and paging"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /api/v1/{resource}/filter [post]
func (h *FilterHandler) Filter(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "could not read request body"))
		return
	}
	result, err := h.service.Filter(c.Request.Context(), c.Param("resource"), body, c.Request.URL.Query())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondFiltered(c, result)
}

func respondFiltered(c *gin.Context, result *service.FilterResult) {
	paging := result.Meta.Paging
	var pagination *models.Pagination
	if !paging.DisablePaging {
		pagination = &models.Pagination{Page: paging.Page, PageSize: paging.Items, TotalCount: paging.Total, MaxPage: paging.MaxPage}
	}
	meta := map[string]interface{}{
		"sorting":    result.Meta.Sorting,
		"paging":     paging,
		"projection": result.Meta.Projection,
	}
	if result.Meta.Filter != nil {
		meta["filter"] = result.Meta.Filter
	}
	response.JSON(c, http.StatusOK, result.Data, pagination, meta)
}
