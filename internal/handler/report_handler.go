package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"Clubs_Hub/internal/service"
)

type ReportHandler struct {
	svc *service.ReportService
}

func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// Dashboard 按全局角色返回对应的看板
func (h *ReportHandler) Dashboard(c *gin.Context) {
	a := actor(c)
	var (
		data any
		err  error
	)
	switch {
	case a.IsAdmin():
		data, err = h.svc.AdminDashboard(c.Request.Context(), a)
	case a.IsCoordinator():
		data, err = h.svc.CoordinatorDashboard(c.Request.Context(), a)
	default:
		data, err = h.svc.StudentDashboard(c.Request.Context(), a)
	}
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"role": a.Role, "dashboard": data})
}

func (h *ReportHandler) ClubDashboard(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	d, err := h.svc.ClubDashboard(c.Request.Context(), actor(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, d)
}

func (h *ReportHandler) ClubMembersCSV(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	body, err := h.svc.ExportClubMembers(c.Request.Context(), actor(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	csvAttachment(c, "club-"+strconv.FormatUint(id, 10)+"-members.csv", body)
}

func (h *ReportHandler) EventsCSV(c *gin.Context) {
	var q eventQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	body, err := h.svc.ExportEvents(c.Request.Context(), actor(c), q.filter())
	if err != nil {
		serviceError(c, err)
		return
	}
	csvAttachment(c, "events.csv", body)
}

func (h *ReportHandler) AttendanceCSV(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	body, err := h.svc.ExportEventAttendance(c.Request.Context(), actor(c), id)
	if err != nil {
		serviceError(c, err)
		return
	}
	csvAttachment(c, "event-"+strconv.FormatUint(id, 10)+"-attendance.csv", body)
}
