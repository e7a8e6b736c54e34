package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/weread2flomo/internal/audit"
	"github.com/mrlokans/weread2flomo/internal/entities"
)

type AuditController struct {
	auditService *audit.Service
}

func NewAuditController(auditService *audit.Service) *AuditController {
	return &AuditController{
		auditService: auditService,
	}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	if ac.auditService == nil {
		respondError(c, http.StatusNotFound, "audit journal not configured")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}

	eventType := entities.AuditEventType(c.Query("type"))
	switch eventType {
	case "", entities.AuditEventSyncRun, entities.AuditEventDelivery:
	default:
		respondBadRequest(c, "invalid type")
		return
	}
	offset := (page - 1) * limit

	events, total, err := ac.auditService.GetEvents(c.Request.Context(), eventType, limit, offset)
	if err != nil {
		respondInternalError(c, err, "load audit events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       events,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    offset+len(events) < int(total),
		TotalPages: totalPages,
	})
}

// GetRunEvents returns every event of one run
// GET /api/audit/runs/:id
func (ac *AuditController) GetRunEvents(c *gin.Context) {
	if ac.auditService == nil {
		respondError(c, http.StatusNotFound, "audit journal not configured")
		return
	}

	events, err := ac.auditService.GetRunEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondInternalError(c, err, "load run events")
		return
	}
	if len(events) == 0 {
		respondNotFound(c, "run")
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "events": events})
}
