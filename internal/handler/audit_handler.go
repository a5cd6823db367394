package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/service"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

func (h *AuditHandler) List(c *gin.Context) {
	var q struct {
		pageQuery
		ActorID    uint64     `form:"actorId"`
		Action     string     `form:"action" binding:"max=64"`
		TargetType string     `form:"targetType" binding:"max=32"`
		Severity   string     `form:"severity" binding:"omitempty,oneof=info warning critical"`
		Status     string     `form:"status" binding:"omitempty,oneof=success failure"`
		From       *time.Time `form:"from"`
		To         *time.Time `form:"to"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.List(c.Request.Context(), actor(c), service.AuditFilter{
		ActorID:    q.ActorID,
		Action:     q.Action,
		TargetType: q.TargetType,
		Severity:   model.Severity(q.Severity),
		Status:     q.Status,
		From:       q.From,
		To:         q.To,
	}, q.page())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, res)
}
