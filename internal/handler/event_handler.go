package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/service"
)

type EventHandler struct {
	svc *service.EventService
}

type EventReq struct {
	ClubID            uint64    `json:"clubId" binding:"required"`
	Title             string    `json:"title" binding:"required,max=128"`
	Description       string    `json:"description" binding:"max=20000"`
	Venue             string    `json:"venue" binding:"required,max=128"`
	StartsAt          time.Time `json:"startsAt" binding:"required"`
	EndsAt            time.Time `json:"endsAt" binding:"required,gtfield=StartsAt"`
	Budget            float64   `json:"budget" binding:"min=0"`
	ExpectedAttendees int       `json:"expectedAttendees" binding:"min=0"`
	GuestSpeakers     []string  `json:"guestSpeakers" binding:"omitempty,max=20,dive,min=1,max=128"`
	// 缺省为公开活动
	IsPublic *bool `json:"isPublic"`
}

type EventPatchReq struct {
	Title             *string    `json:"title" binding:"omitempty,min=1,max=128"`
	Description       *string    `json:"description" binding:"omitempty,max=20000"`
	Venue             *string    `json:"venue" binding:"omitempty,min=1,max=128"`
	StartsAt          *time.Time `json:"startsAt"`
	EndsAt            *time.Time `json:"endsAt"`
	Budget            *float64   `json:"budget" binding:"omitempty,min=0"`
	ExpectedAttendees *int       `json:"expectedAttendees" binding:"omitempty,min=0"`
	GuestSpeakers     []string   `json:"guestSpeakers" binding:"omitempty,max=20,dive,min=1,max=128"`
	IsPublic          *bool      `json:"isPublic"`
}

type TransitionReq struct {
	Action string `json:"action" binding:"required,event_action"`
	Reason string `json:"reason" binding:"max=500"`
}

type ChecklistReq struct {
	AttendanceURL *string  `json:"attendanceUrl" binding:"omitempty,url"`
	ReportURL     *string  `json:"reportUrl" binding:"omitempty,url"`
	BillsURL      *string  `json:"billsUrl" binding:"omitempty,url"`
	PhotoURLs     []string `json:"photoUrls" binding:"omitempty,max=50,dive,url"`
}

type AttendanceReq struct {
	UserIDs  []uint64 `json:"userIds" binding:"required,min=1,max=500"`
	Attended *bool    `json:"attended"`
}

type eventQuery struct {
	pageQuery
	ClubID uint64     `form:"clubId"`
	Status string     `form:"status"`
	From   *time.Time `form:"from"`
	To     *time.Time `form:"to"`
	Public bool       `form:"public"`
}

func (q eventQuery) filter() service.EventFilter {
	return service.EventFilter{
		ClubID: q.ClubID,
		Status: model.EventStatus(q.Status),
		From:   q.From,
		To:     q.To,
		Public: q.Public,
	}
}

func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

func (h *EventHandler) Create(c *gin.Context) {
	var req EventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}
	ev, err := h.svc.CreateEvent(c.Request.Context(), actor(c), service.EventInput{
		ClubID:            req.ClubID,
		Title:             req.Title,
		Description:       req.Description,
		Venue:             req.Venue,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		Budget:            req.Budget,
		ExpectedAttendees: req.ExpectedAttendees,
		GuestSpeakers:     req.GuestSpeakers,
		IsPublic:          public,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	created(c, ev)
}

func (h *EventHandler) Update(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req EventPatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ev, err := h.svc.UpdateEvent(c.Request.Context(), actor(c), id, service.EventPatch{
		Title:             req.Title,
		Description:       req.Description,
		Venue:             req.Venue,
		StartsAt:          req.StartsAt,
		EndsAt:            req.EndsAt,
		Budget:            req.Budget,
		ExpectedAttendees: req.ExpectedAttendees,
		GuestSpeakers:     req.GuestSpeakers,
		IsPublic:          req.IsPublic,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, ev)
}

func (h *EventHandler) Delete(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.DeleteEvent(c.Request.Context(), actor(c), id); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *EventHandler) Get(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	ev, err := h.svc.GetEvent(c.Request.Context(), actor(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, ev)
}

func (h *EventHandler) List(c *gin.Context) {
	var q eventQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.ListEvents(c.Request.Context(), actor(c), q.filter(), q.page())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, res)
}

// Transition 状态机入口：{action, reason}
func (h *EventHandler) Transition(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req TransitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ev, err := h.svc.Transition(c.Request.Context(), actor(c), id, model.EventAction(req.Action), req.Reason)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, ev)
}

func (h *EventHandler) UpdateChecklist(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req ChecklistReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ev, err := h.svc.UpdateChecklist(c.Request.Context(), actor(c), id, service.ChecklistPatch{
		AttendanceURL: req.AttendanceURL,
		ReportURL:     req.ReportURL,
		BillsURL:      req.BillsURL,
		PhotoURLs:     req.PhotoURLs,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, ev)
}

func (h *EventHandler) RSVP(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.RSVP(c.Request.Context(), actor(c), id); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *EventHandler) CancelRSVP(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.CancelRSVP(c.Request.Context(), actor(c), id); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *EventHandler) MarkAttendance(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req AttendanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	attended := true
	if req.Attended != nil {
		attended = *req.Attended
	}
	if err := h.svc.MarkAttendance(c.Request.Context(), actor(c), id, req.UserIDs, attended); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *EventHandler) Attendees(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	list, err := h.svc.ListAttendees(c.Request.Context(), actor(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, list)
}
