package handler

import (
	"github.com/gin-gonic/gin"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/service"
)

type NotificationHandler struct {
	svc *service.NotificationService
}

type PreferenceReq struct {
	EmailOptOut        *bool    `json:"emailOptOut"`
	PushOptOut         *bool    `json:"pushOptOut"`
	EmailDisabledTypes []string `json:"emailDisabledTypes" binding:"omitempty,max=32,dive,min=1,max=64"`
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) List(c *gin.Context) {
	var q struct {
		pageQuery
		Unread bool `form:"unread"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.List(c.Request.Context(), actor(c).UserID, q.Unread, q.page())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, res)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	n, err := h.svc.UnreadCount(c.Request.Context(), actor(c).UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"count": n})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), actor(c).UserID, id); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.svc.MarkAllRead(c.Request.Context(), actor(c).UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"updated": n})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor(c).UserID, id); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	pref, err := h.svc.GetPreferences(c.Request.Context(), actor(c).UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, pref)
}

func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	var req PreferenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	patch := service.PreferencePatch{EmailOptOut: req.EmailOptOut, PushOptOut: req.PushOptOut}
	if req.EmailDisabledTypes != nil {
		patch.EmailDisabledTypes = make([]model.NotificationType, 0, len(req.EmailDisabledTypes))
		for _, t := range req.EmailDisabledTypes {
			patch.EmailDisabledTypes = append(patch.EmailDisabledTypes, model.NotificationType(t))
		}
	}
	pref, err := h.svc.UpdatePreferences(c.Request.Context(), actor(c).UserID, patch)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, pref)
}

// Unsubscribe 邮件里的退订链接，无需登录；type 为空表示退订全部邮件
func (h *NotificationHandler) Unsubscribe(c *gin.Context) {
	var q struct {
		Token string `form:"token" binding:"required,uuid"`
		Type  string `form:"type" binding:"max=64"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.Unsubscribe(c.Request.Context(), q.Token, model.NotificationType(q.Type)); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"unsubscribed": true})
}
