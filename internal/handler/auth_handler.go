package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Clubs_Hub/internal/repository/redis"
	"Clubs_Hub/internal/service"
)

type AuthHandler struct {
	users    *service.UserService
	sessions *service.SessionService
	emails   *service.EmailService
}

// RegisterReq 注册请求体
type RegisterReq struct {
	Username   string `json:"username" binding:"required,min=3,max=32,alphanum"`
	Password   string `json:"password" binding:"required,min=8,max=72"`
	Email      string `json:"email" binding:"required,email"`
	Code       string `json:"code" binding:"required,len=6,numeric"`
	Name       string `json:"name" binding:"max=64"`
	RollNumber string `json:"rollNumber" binding:"max=32"`
	Department string `json:"department" binding:"max=64"`
	Year       int    `json:"year" binding:"omitempty,min=1,max=5"`
}

type LoginReq struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Device     string `json:"device" binding:"max=64"`
}

// ResetReq 忘记密码请求体
type ResetReq struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" binding:"required,min=8,max=72"`
}

type ChangePasswordReq struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8,max=72"`
}

type RefreshReq struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func NewAuthHandler(users *service.UserService, sessions *service.SessionService, emails *service.EmailService) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, emails: emails}
}

// SendCode 发送注册或重置密码验证码
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var err error
	switch c.Param("scope") {
	case redis.ScopeRegister:
		err = h.emails.SendRegisterCode(c.Request.Context(), req.Email)
	case redis.ScopeReset:
		err = h.emails.SendResetCode(c.Request.Context(), req.Email)
	default:
		fail(c, http.StatusBadRequest, "unknown scope")
		return
	}
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"sent": true})
}

// Register 注册接口
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Username:   req.Username,
		Password:   req.Password,
		Email:      req.Email,
		Code:       req.Code,
		Name:       req.Name,
		RollNumber: req.RollNumber,
		Department: req.Department,
		Year:       req.Year,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	created(c, user)
}

// Login 登录接口，identifier 可以是用户名或邮箱
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pair, user, err := h.users.Login(c.Request.Context(), req.Identifier, req.Password, service.ClientInfo{
		Device:    req.Device,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"tokens": pair, "user": user})
}

// Refresh 利用 refresh token 轮换令牌对
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pair, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, pair)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), actor(c).SessionID); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.users.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), actor(c).UserID, req.OldPassword, req.NewPassword); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

func (h *AuthHandler) ListSessions(c *gin.Context) {
	a := actor(c)
	list, err := h.sessions.List(c.Request.Context(), a.UserID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"current": a.SessionID, "sessions": list})
}

func (h *AuthHandler) RevokeSession(c *gin.Context) {
	if err := h.sessions.Revoke(c.Request.Context(), actor(c).UserID, c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, nil)
}

// RevokeOtherSessions 保留当前会话，下线其余设备
func (h *AuthHandler) RevokeOtherSessions(c *gin.Context) {
	a := actor(c)
	n, err := h.sessions.RevokeOthers(c.Request.Context(), a.UserID, a.SessionID)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, gin.H{"revoked": n})
}
