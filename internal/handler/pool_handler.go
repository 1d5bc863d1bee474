package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/munisalud/piscinas-api/internal/models"
	"github.com/munisalud/piscinas-api/internal/service"
	appErrors "github.com/munisalud/piscinas-api/pkg/errors"
	"github.com/munisalud/piscinas-api/pkg/export"
	"github.com/munisalud/piscinas-api/pkg/response"
)

// PoolHandler exposes the pool registry endpoints.
type PoolHandler struct {
	pools *service.PoolService
}

// NewPoolHandler constructs PoolHandler.
func NewPoolHandler(pools *service.PoolService) *PoolHandler {
	return &PoolHandler{pools: pools}
}

// List godoc
// @Summary List all pools
// @Tags Pools
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pool/all/ [get]
func (h *PoolHandler) List(c *gin.Context) {
	pools, err := h.pools.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pools, nil)
}

// Create godoc
// @Summary Register a pool facility
// @Tags Pools
// @Accept json
// @Produce json
// @Param payload body service.CreatePoolRequest true "Pool payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /pool/create/ [post]
func (h *PoolHandler) Create(c *gin.Context) {
	var req service.CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pool payload"))
		return
	}
	pool, err := h.pools.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pool)
}

// Get godoc
// @Summary Get one pool by id
// @Tags Pools
// @Produce json
// @Param id path int true "Pool ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /pool/all/{id}/ [get]
func (h *PoolHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "pool not found"))
		return
	}
	pool, err := h.pools.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pool, nil)
}

// Update godoc
// @Summary Replace a pool record
// @Tags Pools
// @Accept json
// @Produce json
// @Param id path int true "Pool ID"
// @Param payload body service.CreatePoolRequest true "Pool payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /pool/all/{id}/ [put]
func (h *PoolHandler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "pool not found"))
		return
	}
	var req service.CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pool payload"))
		return
	}
	pool, err := h.pools.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pool, nil)
}

// ListByState godoc
// @Summary List pools by approval state
// @Tags Pools
// @Produce json
// @Param state path string true "Approval state" Enums(RES_EXPIRED, RES_VALID)
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /pool/state/{state}/ [get]
func (h *PoolHandler) ListByState(c *gin.Context) {
	pools, err := h.pools.ListByState(c.Request.Context(), c.Param("state"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pools, nil)
}

// ListByDistrict godoc
// @Summary List pools by district (case-insensitive)
// @Tags Pools
// @Produce json
// @Param district path string true "District"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pool/district/{district}/ [get]
func (h *PoolHandler) ListByDistrict(c *gin.Context) {
	pools, err := h.pools.ListByDistrict(c.Request.Context(), c.Param("district"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pools, nil)
}

// Statistics godoc
// @Summary Grouped pool counts per approval state
// @Tags Pools
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pool/statistics/ [get]
func (h *PoolHandler) Statistics(c *gin.Context) {
	counts, err := h.pools.Statistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counts, nil)
}

// Export godoc
// @Summary Download the registry as CSV
// @Tags Pools
// @Produce text/csv
// @Success 200 {string} string "CSV payload"
// @Security BearerAuth
// @Router /pool/export/ [get]
func (h *PoolHandler) Export(c *gin.Context) {
	dataset, err := h.pools.ExportDataset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="pools.csv"`)
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, dataset); err != nil {
		_ = c.Error(err)
	}
}

// Filter godoc
// @Summary Combined filter over state, current state and district
// @Tags Pools
// @Produce json
// @Param state query string false "Approval state" Enums(RES_EXPIRED, RES_VALID)
// @Param current_state query string false "Health status" Enums(HEALTHY, UNHEALTHY)
// @Param district query string false "District"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /pool/filters/ [get]
func (h *PoolHandler) Filter(c *gin.Context) {
	// Only the known keys are read; anything else in the query string is
	// ignored.
	filter := models.PoolFilter{
		State:        c.Query("state"),
		CurrentState: c.Query("current_state"),
		District:     c.Query("district"),
	}
	pools, err := h.pools.ListFiltered(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pools, nil)
}
