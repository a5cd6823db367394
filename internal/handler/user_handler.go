package handler

import (
	"github.com/gin-gonic/gin"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/service"
)

type UserHandler struct {
	svc *service.UserService
}

type ProfileReq struct {
	Name       *string `json:"name" binding:"omitempty,min=1,max=64"`
	Department *string `json:"department" binding:"omitempty,max=64"`
	Year       *int    `json:"year" binding:"omitempty,min=1,max=5"`
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.svc.GetProfile(c.Request.Context(), actor(c).UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, user)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req ProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.svc.UpdateProfile(c.Request.Context(), actor(c).UserID, service.ProfilePatch{
		Name:       req.Name,
		Department: req.Department,
		Year:       req.Year,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, user)
}

func (h *UserHandler) List(c *gin.Context) {
	var q struct {
		pageQuery
		Role   string `form:"role" binding:"omitempty,global_role"`
		Status string `form:"status" binding:"omitempty,oneof=active suspended"`
		Search string `form:"q" binding:"max=64"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.ListUsers(c.Request.Context(), actor(c), service.UserFilter{
		Role:   model.GlobalRole(q.Role),
		Status: model.UserStatus(q.Status),
		Search: q.Search,
	}, q.page())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, res)
}

func (h *UserHandler) SetRole(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req struct {
		Role string `json:"role" binding:"required,global_role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.svc.SetGlobalRole(c.Request.Context(), actor(c), id, model.GlobalRole(req.Role))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, user)
}

func (h *UserHandler) SetStatus(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required,oneof=active suspended"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.svc.SetUserStatus(c.Request.Context(), actor(c), id, model.UserStatus(req.Status))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, user)
}
