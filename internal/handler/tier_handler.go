package handler

import (
	"net/http"
	"strconv"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type TierHandler struct {
	tierService service.TierService
}

func NewTierHandler(tierService service.TierService) *TierHandler {
	return &TierHandler{tierService: tierService}
}

func (h *TierHandler) RegisterRoutes(router *gin.RouterGroup) {
	proposals := router.Group("/api/tier-proposals")
	{
		proposals.POST("", middleware.RequireVerified(), h.CreateProposal)
		proposals.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleManager), h.ListProposals)
		proposals.PUT("/:id/approve", middleware.RequireRole(model.RoleAdmin), h.ApproveProposal)
		proposals.PUT("/:id/reject", middleware.RequireRole(model.RoleAdmin), h.RejectProposal)
	}
}

// CreateProposal submits a tier upgrade request for the calling account
func (h *TierHandler) CreateProposal(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req service.CreateTierProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	proposal, err := h.tierService.CreateProposal(c.Request.Context(), actor, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, proposal))
}

// ListProposals returns tier proposals, optionally filtered by status
func (h *TierHandler) ListProposals(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	filter := service.TierProposalFilter{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	}

	proposals, total, err := h.tierService.ListProposals(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"proposals": proposals,
		"total":     total,
		"page":      page,
		"limit":     limit,
	}))
}

// ApproveProposal approves a pending tier proposal and applies the tier
func (h *TierHandler) ApproveProposal(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	proposal, err := h.tierService.ApproveProposal(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, proposal))
}

// RejectProposal rejects a pending tier proposal
func (h *TierHandler) RejectProposal(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req service.RejectTierProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Allow empty body — reason is optional
		req.Reason = ""
	}

	proposal, err := h.tierService.RejectProposal(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, proposal))
}
