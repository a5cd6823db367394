package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"Clubs_Hub/internal/middleware"
	"Clubs_Hub/internal/service"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"status": "error", "message": msg})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	fail(c, http.StatusBadRequest, "invalid params: "+err.Error())
}

// serviceError 统一把服务层哨兵错误映射为 HTTP 状态码
func serviceError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, service.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalidTransition):
		fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrClubLimitReached):
		fail(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrTooManyRequests):
		fail(c, http.StatusTooManyRequests, err.Error())
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		fail(c, http.StatusInternalServerError, "internal server error")
	}
}

func actor(c *gin.Context) service.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

// idParam 解析路径中的数字 id，失败时已写回 400
func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

type pageQuery struct {
	Page int `form:"page" binding:"omitempty,min=1"`
	Size int `form:"size" binding:"omitempty,min=1,max=100"`
}

func (q pageQuery) page() service.Page {
	return service.Page{Page: q.Page, Size: q.Size}
}

func csvAttachment(c *gin.Context, name string, body []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}
