package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/service"
)

type RecruitmentHandler struct {
	svc *service.RecruitmentService
}

type RecruitmentReq struct {
	ClubID          uint64    `json:"clubId" binding:"required"`
	Title           string    `json:"title" binding:"required,max=128"`
	Description     string    `json:"description" binding:"max=20000"`
	Roles           []string  `json:"roles" binding:"omitempty,max=20,dive,min=1,max=64"`
	Questions       []string  `json:"questions" binding:"omitempty,max=20,dive,min=1,max=500"`
	StartsAt        time.Time `json:"startsAt" binding:"required"`
	EndsAt          time.Time `json:"endsAt" binding:"required,gtfield=StartsAt"`
	MaxApplications int       `json:"maxApplications" binding:"min=0"`
}

type RecruitmentPatchReq struct {
	Title           *string    `json:"title" binding:"omitempty,min=1,max=128"`
	Description     *string    `json:"description" binding:"omitempty,max=20000"`
	Roles           []string   `json:"roles" binding:"omitempty,max=20,dive,min=1,max=64"`
	Questions       []string   `json:"questions" binding:"omitempty,max=20,dive,min=1,max=500"`
	StartsAt        *time.Time `json:"startsAt"`
	EndsAt          *time.Time `json:"endsAt"`
	MaxApplications *int       `json:"maxApplications" binding:"omitempty,min=0"`
}

type ReviewReq struct {
	Status string `json:"status" binding:"required,oneof=shortlisted selected rejected"`
	Note   string `json:"note" binding:"max=1000"`
}

func NewRecruitmentHandler(svc *service.RecruitmentService) *RecruitmentHandler {
	return &RecruitmentHandler{svc: svc}
}

func (h *RecruitmentHandler) Create(c *gin.Context) {
	var req RecruitmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.Create(c.Request.Context(), actor(c), service.RecruitmentInput{
		ClubID:          req.ClubID,
		Title:           req.Title,
		Description:     req.Description,
		Roles:           req.Roles,
		Questions:       req.Questions,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		MaxApplications: req.MaxApplications,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	created(c, rec)
}

func (h *RecruitmentHandler) Update(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req RecruitmentPatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.Update(c.Request.Context(), actor(c), id, service.RecruitmentPatch{
		Title:           req.Title,
		Description:     req.Description,
		Roles:           req.Roles,
		Questions:       req.Questions,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		MaxApplications: req.MaxApplications,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, rec)
}

func (h *RecruitmentHandler) Get(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, rec)
}

func (h *RecruitmentHandler) List(c *gin.Context) {
	var q struct {
		ClubID uint64 `form:"clubId"`
		Status string `form:"status" binding:"omitempty,oneof=draft scheduled open closed completed"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.svc.List(c.Request.Context(), q.ClubID, model.RecruitmentStatus(q.Status))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, list)
}

func (h *RecruitmentHandler) Schedule(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	rec, err := h.svc.Schedule(c.Request.Context(), actor(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, rec)
}

func (h *RecruitmentHandler) Close(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Close(c.Request.Context(), actor(c), id); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

// Complete 结束招新，未决申请统一拒绝
func (h *RecruitmentHandler) Complete(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	n, err := h.svc.Complete(c.Request.Context(), actor(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"rejected": n})
}

func (h *RecruitmentHandler) Apply(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req struct {
		Answers map[string]string `json:"answers" binding:"omitempty,max=20,dive,max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	app, err := h.svc.Apply(c.Request.Context(), actor(c), id, req.Answers)
	if err != nil {
		serviceError(c, err)
		return
	}
	created(c, app)
}

func (h *RecruitmentHandler) ListApplications(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var q struct {
		Status string `form:"status" binding:"omitempty,oneof=submitted shortlisted selected rejected"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.svc.ListApplications(c.Request.Context(), actor(c), id, model.ApplicationStatus(q.Status))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, list)
}

func (h *RecruitmentHandler) MyApplications(c *gin.Context) {
	list, err := h.svc.MyApplications(c.Request.Context(), actor(c).UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, list)
}

func (h *RecruitmentHandler) Review(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req ReviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	app, err := h.svc.ReviewApplication(c.Request.Context(), actor(c), id, model.ApplicationStatus(req.Status), req.Note)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, app)
}
