package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"Clubs_Hub/internal/config"
	"Clubs_Hub/internal/handler"
	"Clubs_Hub/internal/middleware"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/repository/redis"
	"Clubs_Hub/internal/router"
	"Clubs_Hub/internal/service"
)

// app 进程内共享的依赖
type app struct {
	cfg config.Config
	db  *gorm.DB
	rdb *goredis.Client

	mailer  *pkg.SMTPMailer
	outbox  *mysql.OutboxRepository
	notifs  *mysql.NotificationRepository
	lock    *redis.DistLock
	audit   *service.AuditService
	notify  *service.NotificationService
	emails  *service.EmailService
	session *service.SessionService
	users   *service.UserService
	clubs   *service.ClubService
	events  *service.EventService
	recs    *service.RecruitmentService
	reports *service.ReportService
}

func newApp(cfg config.Config) (*app, error) {
	db, err := mysql.InitDB(cfg.MySQL.DSN, mysql.PoolConfig{
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
		MaxIdleConns: cfg.MySQL.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	rdb, err := redis.Open(context.Background(), redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	a := &app{cfg: cfg, db: db, rdb: rdb}
	userRepo := &mysql.UserRepository{DB: db}
	clubRepo := &mysql.ClubRepository{DB: db}
	memberRepo := &mysql.ClubMemberRepository{DB: db}
	a.outbox = &mysql.OutboxRepository{DB: db}
	a.notifs = &mysql.NotificationRepository{DB: db}
	a.lock = &redis.DistLock{RDB: rdb}

	a.mailer = pkg.NewSMTPMailer(pkg.SMTPConfig{
		Enabled:  cfg.SMTP.Enabled,
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	tokens := pkg.NewTokenIssuer(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	a.audit = service.NewAuditService(&mysql.AuditRepository{DB: db})
	a.notify = service.NewNotificationService(a.notifs, userRepo)
	a.emails = service.NewEmailService(a.mailer, &redis.EmailCodeRepository{RDB: rdb})
	a.session = service.NewSessionService(&mysql.SessionRepository{DB: db}, userRepo, &redis.SessionCache{RDB: rdb}, tokens)
	a.users = service.NewUserService(userRepo, a.session, a.emails, a.audit)
	a.clubs = service.NewClubService(clubRepo, memberRepo, userRepo, a.notify, a.audit, cfg.Workflow.MaxClubsPerStudent)
	eventRepo := &mysql.EventRepository{DB: db}
	a.events = service.NewEventService(eventRepo, clubRepo, memberRepo, userRepo, a.notify, a.audit, service.EventPolicy{
		AdminBudgetThreshold: cfg.Workflow.AdminBudgetThreshold,
		MinPhotos:            cfg.Workflow.MinEventPhotos,
		ChecklistGrace:       cfg.Workflow.ChecklistGrace,
	})
	a.recs = service.NewRecruitmentService(&mysql.RecruitmentRepository{DB: db}, clubRepo, memberRepo, userRepo, a.notify, a.audit, cfg.Workflow.MaxClubsPerStudent)
	a.reports = service.NewReportService(clubRepo, memberRepo, userRepo, eventRepo, a.recs, a.notifs, a.outbox, &redis.DashboardCache{RDB: rdb, TTL: time.Minute})
	return a, nil
}

// engine 组装 HTTP 路由
func (a *app) engine() (*gin.Engine, error) {
	if err := handler.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	gin.SetMode(a.cfg.Server.Mode)
	return router.InitRouter(router.Deps{
		Handlers: router.Handlers{
			Auth:         handler.NewAuthHandler(a.users, a.session, a.emails),
			User:         handler.NewUserHandler(a.users),
			Club:         handler.NewClubHandler(a.clubs),
			Event:        handler.NewEventHandler(a.events),
			Recruitment:  handler.NewRecruitmentHandler(a.recs),
			Notification: handler.NewNotificationHandler(a.notify),
			Audit:        handler.NewAuditHandler(a.audit),
			Report:       handler.NewReportHandler(a.reports),
		},
		Auth:         a.session,
		LoginLimiter: middleware.NewRateLimiter(a.cfg.RateLimit.LoginPerMinute),
		Health:       a.health,
	}), nil
}

func (a *app) health(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return errors.Join(sqlDB.PingContext(ctx), a.rdb.Ping(ctx).Err())
}

func (a *app) Close() error {
	var errs []error
	if sqlDB, err := a.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	errs = append(errs, a.rdb.Close())
	return errors.Join(errs...)
}
