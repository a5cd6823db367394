package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"Clubs_Hub/internal/handler"
	"Clubs_Hub/internal/metrics"
	"Clubs_Hub/internal/middleware"
	"Clubs_Hub/internal/model"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Club         *handler.ClubHandler
	Event        *handler.EventHandler
	Recruitment  *handler.RecruitmentHandler
	Notification *handler.NotificationHandler
	Audit        *handler.AuditHandler
	Report       *handler.ReportHandler
}

type Deps struct {
	Handlers
	Auth         middleware.Authenticator
	LoginLimiter *middleware.RateLimiter
	// Health 返回 nil 表示依赖（MySQL、Redis）可用
	Health func(ctx context.Context) error
}

func InitRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), middleware.Recovery(), metrics.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api")
	authed := api.Group("", middleware.Auth(d.Auth))
	admin := middleware.RequireRole(model.RoleAdmin)

	// 登录注册相关接口
	authGroup := api.Group("/auth")
	{
		limited := authGroup.Group("", d.LoginLimiter.Middleware())
		limited.POST("/email/:scope/code", d.Handlers.Auth.SendCode)
		limited.POST("/register", d.Handlers.Auth.Register)
		limited.POST("/login", d.Handlers.Auth.Login)
		limited.POST("/reset", d.Handlers.Auth.ResetPassword)
		authGroup.POST("/refresh", d.Handlers.Auth.Refresh)
	}
	authedAuth := authed.Group("/auth")
	{
		authedAuth.POST("/logout", d.Handlers.Auth.Logout)
		authedAuth.POST("/change-password", d.Handlers.Auth.ChangePassword)
		authedAuth.GET("/sessions", d.Handlers.Auth.ListSessions)
		authedAuth.DELETE("/sessions/:id", d.Handlers.Auth.RevokeSession)
		authedAuth.DELETE("/sessions", d.Handlers.Auth.RevokeOtherSessions)
	}

	// 用户相关接口
	users := authed.Group("/users")
	{
		users.GET("/me", d.User.Me)
		users.PATCH("/me", d.User.UpdateMe)
		users.GET("", admin, d.User.List)
		users.PATCH("/:id/role", admin, d.User.SetRole)
		users.PATCH("/:id/status", admin, d.User.SetStatus)
	}

	// 社团相关接口
	clubs := authed.Group("/clubs")
	{
		clubs.GET("", d.Club.List)
		clubs.POST("", admin, d.Club.Create)
		clubs.GET("/mine", d.Club.Mine)
		clubs.GET("/pending-settings", middleware.RequireRole(model.RoleAdmin, model.RoleCoordinator), d.Club.PendingSettings)
		clubs.GET("/:id", d.Club.Get)
		clubs.PATCH("/:id/settings", d.Club.UpdateSettings)
		clubs.POST("/:id/settings/approve", d.Club.ApproveSettings)
		clubs.POST("/:id/settings/reject", d.Club.RejectSettings)
		clubs.PATCH("/:id/coordinator", admin, d.Club.ChangeCoordinator)
		clubs.POST("/:id/archive", admin, d.Club.Archive)
		clubs.POST("/:id/restore", admin, d.Club.Restore)
		clubs.GET("/:id/members", d.Club.ListMembers)
		clubs.POST("/:id/members", d.Club.AddMember)
		clubs.PATCH("/:id/members/:userId", d.Club.UpdateMember)
		clubs.DELETE("/:id/members/:userId", d.Club.RemoveMember)
		clubs.POST("/:id/leave", d.Club.Leave)
		clubs.GET("/:id/gallery", d.Club.ListGallery)
		clubs.POST("/:id/gallery", d.Club.AddGalleryItem)
		clubs.DELETE("/:id/gallery/:itemId", d.Club.DeleteGalleryItem)
		clubs.GET("/:id/dashboard", d.Report.ClubDashboard)
	}

	// 活动相关接口
	events := authed.Group("/events")
	{
		events.GET("", d.Event.List)
		events.POST("", d.Event.Create)
		events.GET("/:id", d.Event.Get)
		events.PATCH("/:id", d.Event.Update)
		events.DELETE("/:id", d.Event.Delete)
		events.PATCH("/:id/status", d.Event.Transition)
		events.PATCH("/:id/checklist", d.Event.UpdateChecklist)
		events.POST("/:id/rsvp", d.Event.RSVP)
		events.DELETE("/:id/rsvp", d.Event.CancelRSVP)
		events.POST("/:id/attendance", d.Event.MarkAttendance)
		events.GET("/:id/attendees", d.Event.Attendees)
	}

	// 招新相关接口
	recs := authed.Group("/recruitments")
	{
		recs.GET("", d.Recruitment.List)
		recs.POST("", d.Recruitment.Create)
		recs.GET("/:id", d.Recruitment.Get)
		recs.PATCH("/:id", d.Recruitment.Update)
		recs.POST("/:id/schedule", d.Recruitment.Schedule)
		recs.POST("/:id/close", d.Recruitment.Close)
		recs.POST("/:id/complete", d.Recruitment.Complete)
		recs.POST("/:id/apply", d.Recruitment.Apply)
		recs.GET("/:id/applications", d.Recruitment.ListApplications)
	}
	apps := authed.Group("/applications")
	{
		apps.GET("/mine", d.Recruitment.MyApplications)
		apps.PATCH("/:id", d.Recruitment.Review)
	}

	// 通知相关接口，退订链接无需登录
	api.GET("/notifications/unsubscribe", d.Notification.Unsubscribe)
	notes := authed.Group("/notifications")
	{
		notes.GET("", d.Notification.List)
		notes.GET("/unread-count", d.Notification.UnreadCount)
		notes.PATCH("/:id/read", d.Notification.MarkRead)
		notes.POST("/read-all", d.Notification.MarkAllRead)
		notes.DELETE("/:id", d.Notification.Delete)
		notes.GET("/preferences", d.Notification.GetPreferences)
		notes.PUT("/preferences", d.Notification.UpdatePreferences)
	}

	authed.GET("/audit-logs", admin, d.Audit.List)

	authed.GET("/dashboard", d.Report.Dashboard)
	reports := authed.Group("/reports")
	{
		reports.GET("/clubs/:id/members.csv", d.Report.ClubMembersCSV)
		reports.GET("/events.csv", d.Report.EventsCSV)
		reports.GET("/events/:id/attendance.csv", d.Report.AttendanceCSV)
	}

	return r
}
