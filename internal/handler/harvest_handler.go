package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/acoustic-workbench-api/internal/catalog"
	"github.com/noah-isme/acoustic-workbench-api/internal/filter"
	"github.com/noah-isme/acoustic-workbench-api/internal/middleware"
	"github.com/noah-isme/acoustic-workbench-api/internal/models"
	"github.com/noah-isme/acoustic-workbench-api/internal/service"
	appErrors "github.com/noah-isme/acoustic-workbench-api/pkg/errors"
	"github.com/noah-isme/acoustic-workbench-api/pkg/response"
)

type harvestService interface {
	Create(ctx context.Context, req service.CreateHarvestRequest) (*models.Harvest, error)
	Get(ctx context.Context, id int64) (*models.Harvest, error)
	Scan(ctx context.Context, harvestID int64) (*service.ScanReport, error)
	Harvest(ctx context.Context, harvestID int64) (int, error)
	RetryItem(ctx context.Context, harvestID, itemID int64) (*models.HarvestItem, error)
	UpdateMappings(ctx context.Context, harvestID int64, req service.UpdateMappingsRequest) (*models.Harvest, error)
	Summary(ctx context.Context, harvestID int64) (*service.HarvestSummary, bool, error)
}

// HarvestHandler exposes harvest workflow endpoints.
type HarvestHandler struct {
	service harvestService
	filter  filterService
}

// NewHarvestHandler builds a new handler.
func NewHarvestHandler(service harvestService, filter filterService) *HarvestHandler {
	return &HarvestHandler{service: service, filter: filter}
}

// Create godoc
// @Summary Start a harvest
// @Tags Harvests
// @Accept json
// @Produce json
// @Param payload body service.CreateHarvestRequest true "Harvest payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /api/v1/harvests [post]
func (h *HarvestHandler) Create(c *gin.Context) {
	var req service.CreateHarvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid harvest payload"))
		return
	}
	harvest, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, harvest)
}

// Get godoc
// @Summary Get a harvest
// @Tags Harvests
// @Produce json
// @Param id path int true "Harvest ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /api/v1/harvests/{id} [get]
func (h *HarvestHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	harvest, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, harvest, nil)
}

// Scan godoc
// @Summary Scan the upload directory of a harvest
// @Tags Harvests
// @Produce json
// @Param id path int true "Harvest ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/harvests/{id}/scan [post]
func (h *HarvestHandler) Scan(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	report, err := h.service.Scan(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Harvest godoc
// @Summary Queue all pending items for harvesting
// @Tags Harvests
// @Produce json
// @Param id path int true "Harvest ID"
// @Success 202 {object} response.Envelope
// @Router /api/v1/harvests/{id}/harvest [post]
func (h *HarvestHandler) Harvest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	queued, err := h.service.Harvest(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"harvest_id": id, "queued": queued})
}

// Retry godoc
// @Summary Retry a failed harvest item
// @Tags Harvests
// @Produce json
// @Param id path int true "Harvest ID"
// @Param itemId path int true "Harvest item ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/v1/harvests/{id}/items/{itemId}/retry [post]
func (h *HarvestHandler) Retry(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "itemId")
	if !ok {
		return
	}
	item, err := h.service.RetryItem(c.Request.Context(), id, itemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, item)
}

// Items godoc
// @Summary List the items of a harvest
// @Description Accepts the same query string filters as the generic list endpoint.
// @Tags Harvests
// @Produce json
// @Param id path int true "Harvest ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/harvests/{id}/items [get]
func (h *HarvestHandler) Items(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.service.Get(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	scope := filter.Binary{
		Op:    filter.OpSQLEq,
		Left:  filter.Column{Table: "harvest_items", Name: "harvest_id"},
		Right: filter.Param{Value: id},
	}
	result, err := h.filter.Filter(c.Request.Context(), catalog.HarvestItems, nil, c.Request.URL.Query(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondFiltered(c, result)
}

// UpdateMappings godoc
// @Summary Replace the mappings of a harvest
// @Tags Harvests
// @Accept json
// @Produce json
// @Param id path int true "Harvest ID"
// @Param payload body service.UpdateMappingsRequest true "Mappings"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /api/v1/harvests/{id}/mappings [put]
func (h *HarvestHandler) UpdateMappings(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateMappingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid mappings payload"))
		return
	}
	harvest, err := h.service.UpdateMappings(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, harvest, nil)
}

// Summary godoc
// @Summary Count harvest items by status
// @Tags Harvests
// @Produce json
// @Param id path int true "Harvest ID"
// @Success 200 {object} response.Envelope
// @Router /api/v1/harvests/{id}/summary [get]
func (h *HarvestHandler) Summary(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	summary, hit, err := h.service.Summary(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid "+name))
		return 0, false
	}
	return id, true
}
