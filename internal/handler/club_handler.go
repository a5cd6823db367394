package handler

import (
	"github.com/gin-gonic/gin"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/service"
)

type ClubHandler struct {
	svc *service.ClubService
}

type CreateClubReq struct {
	Name          string            `json:"name" binding:"required,min=2,max=64"`
	Category      string            `json:"category" binding:"required,club_category"`
	Description   string            `json:"description" binding:"max=20000"`
	Vision        string            `json:"vision" binding:"max=2000"`
	Mission       string            `json:"mission" binding:"max=2000"`
	LogoURL       string            `json:"logoUrl" binding:"omitempty,url"`
	BannerURL     string            `json:"bannerUrl" binding:"omitempty,url"`
	SocialLinks   map[string]string `json:"socialLinks" binding:"omitempty,dive,url"`
	CoordinatorID uint64            `json:"coordinatorId" binding:"required"`
	PresidentID   uint64            `json:"presidentId"`
}

// SettingsReq 只修改出现的字段
type SettingsReq struct {
	Name        *string           `json:"name" binding:"omitempty,min=2,max=64"`
	Category    *string           `json:"category" binding:"omitempty,club_category"`
	LogoURL     *string           `json:"logoUrl" binding:"omitempty,url"`
	Description *string           `json:"description" binding:"omitempty,max=20000"`
	Vision      *string           `json:"vision" binding:"omitempty,max=2000"`
	Mission     *string           `json:"mission" binding:"omitempty,max=2000"`
	BannerURL   *string           `json:"bannerUrl" binding:"omitempty,url"`
	SocialLinks map[string]string `json:"socialLinks" binding:"omitempty,dive,url"`
}

type MemberReq struct {
	UserID uint64 `json:"userId" binding:"required"`
	Role   string `json:"role" binding:"required,club_role"`
}

type GalleryReq struct {
	URL     string  `json:"url" binding:"required,url"`
	Caption string  `json:"caption" binding:"max=256"`
	EventID *uint64 `json:"eventId"`
}

func NewClubHandler(svc *service.ClubService) *ClubHandler {
	return &ClubHandler{svc: svc}
}

func (h *ClubHandler) Create(c *gin.Context) {
	var req CreateClubReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	club, err := h.svc.CreateClub(c.Request.Context(), actor(c), service.CreateClubInput{
		Name:          req.Name,
		Category:      model.ClubCategory(req.Category),
		Description:   req.Description,
		Vision:        req.Vision,
		Mission:       req.Mission,
		LogoURL:       req.LogoURL,
		BannerURL:     req.BannerURL,
		SocialLinks:   req.SocialLinks,
		CoordinatorID: req.CoordinatorID,
		PresidentID:   req.PresidentID,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	created(c, club)
}

func (h *ClubHandler) Get(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	club, err := h.svc.GetClub(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, club)
}

func (h *ClubHandler) List(c *gin.Context) {
	var q struct {
		pageQuery
		Category string `form:"category" binding:"omitempty,club_category"`
		Status   string `form:"status" binding:"omitempty,oneof=active archived"`
		Search   string `form:"q" binding:"max=64"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.ListClubs(c.Request.Context(), actor(c), service.ClubFilter{
		Category: model.ClubCategory(q.Category),
		Status:   model.ClubStatus(q.Status),
		Search:   q.Search,
	}, q.page())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, res)
}

func (h *ClubHandler) Mine(c *gin.Context) {
	list, err := h.svc.MyClubs(c.Request.Context(), actor(c).UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, list)
}

// UpdateSettings 受保护字段进入待审批，返回体里 pending 表示是否需要审批
func (h *ClubHandler) UpdateSettings(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req SettingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	patch := service.SettingsPatch{
		Name:        req.Name,
		LogoURL:     req.LogoURL,
		Description: req.Description,
		Vision:      req.Vision,
		Mission:     req.Mission,
		BannerURL:   req.BannerURL,
		SocialLinks: req.SocialLinks,
	}
	if req.Category != nil {
		cat := model.ClubCategory(*req.Category)
		patch.Category = &cat
	}
	club, pending, err := h.svc.UpdateSettings(c.Request.Context(), actor(c), id, patch)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"club": club, "pending": pending})
}

func (h *ClubHandler) ApproveSettings(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	club, err := h.svc.ApproveSettings(c.Request.Context(), actor(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, club)
}

func (h *ClubHandler) RejectSettings(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.RejectSettings(c.Request.Context(), actor(c), id, req.Reason); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *ClubHandler) PendingSettings(c *gin.Context) {
	list, err := h.svc.PendingSettings(c.Request.Context(), actor(c))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, list)
}

func (h *ClubHandler) ChangeCoordinator(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req struct {
		CoordinatorID uint64 `json:"coordinatorId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	club, err := h.svc.ChangeCoordinator(c.Request.Context(), actor(c), id, req.CoordinatorID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, club)
}

func (h *ClubHandler) Archive(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.ArchiveClub(c.Request.Context(), actor(c), id); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *ClubHandler) Restore(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.RestoreClub(c.Request.Context(), actor(c), id); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *ClubHandler) ListMembers(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var q struct {
		Role string `form:"role" binding:"omitempty,club_role"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.svc.ListMembers(c.Request.Context(), id, model.ClubRole(q.Role))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, list)
}

func (h *ClubHandler) AddMember(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req MemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.svc.AddMember(c.Request.Context(), actor(c), id, req.UserID, model.ClubRole(req.Role))
	if err != nil {
		serviceError(c, err)
		return
	}
	created(c, m)
}

func (h *ClubHandler) UpdateMember(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	userID, valid := idParam(c, "userId")
	if !valid {
		return
	}
	var req struct {
		Role string `json:"role" binding:"required,club_role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.UpdateMemberRole(c.Request.Context(), actor(c), id, userID, model.ClubRole(req.Role)); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *ClubHandler) RemoveMember(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	userID, valid := idParam(c, "userId")
	if !valid {
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), actor(c), id, userID); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *ClubHandler) Leave(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.LeaveClub(c.Request.Context(), actor(c).UserID, id); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *ClubHandler) ListGallery(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.svc.ListGallery(c.Request.Context(), id, q.page())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, list)
}

func (h *ClubHandler) AddGalleryItem(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req GalleryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.svc.AddGalleryItem(c.Request.Context(), actor(c), id, service.GalleryInput{
		URL:     req.URL,
		Caption: req.Caption,
		EventID: req.EventID,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	created(c, item)
}

func (h *ClubHandler) DeleteGalleryItem(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	itemID, valid := idParam(c, "itemId")
	if !valid {
		return
	}
	if err := h.svc.DeleteGalleryItem(c.Request.Context(), actor(c), id, itemID); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}
