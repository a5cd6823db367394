package service

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/repository/mysql"
)

// 审计动作名
const (
	AuditUserRoleChanged      = "user.role_changed"
	AuditUserStatusChanged    = "user.status_changed"
	AuditUserLogin            = "user.login"
	AuditPasswordChanged      = "user.password_changed"
	AuditClubCreated          = "club.created"
	AuditClubArchived         = "club.archived"
	AuditClubRestored         = "club.restored"
	AuditClubCoordinator      = "club.coordinator_changed"
	AuditSettingsRequested    = "club.settings_requested"
	AuditSettingsApproved     = "club.settings_approved"
	AuditSettingsRejected     = "club.settings_rejected"
	AuditMemberRoleChanged    = "club.member_role_changed"
	AuditMemberRemoved        = "club.member_removed"
	AuditEventTransition      = "event.transition"
	AuditApplicationDecided   = "recruitment.application_decided"
	AuditRecruitmentCompleted = "recruitment.completed"
)

type AuditEntry struct {
	ActorID    uint64
	Action     string
	TargetType string
	TargetID   uint64
	Severity   model.Severity
	Failed     bool
	Details    map[string]string
}

type AuditFilter struct {
	ActorID    uint64
	Action     string
	TargetType string
	Severity   model.Severity
	Status     string
	From       *time.Time
	To         *time.Time
}

type AuditService struct {
	repo *mysql.AuditRepository
}

func NewAuditService(repo *mysql.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Record 写审计表并输出一行 audit 日志；写库失败只记日志，不影响业务
func (s *AuditService) Record(ctx context.Context, e AuditEntry) {
	meta := MetaFrom(ctx)
	row := &model.AuditLog{
		Action:     e.Action,
		TargetType: e.TargetType,
		Severity:   e.Severity,
		Status:     model.AuditSuccess,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Details:    model.JSONMap(e.Details),
	}
	if row.Severity == "" {
		row.Severity = model.SeverityInfo
	}
	if e.Failed {
		row.Status = model.AuditFailure
	}
	if e.ActorID != 0 {
		id := e.ActorID
		row.ActorID = &id
	}
	if e.TargetID != 0 {
		row.TargetID = strconv.FormatUint(e.TargetID, 10)
	}

	log.Ctx(ctx).Info().
		Dict("audit", auditDict(row)).
		Msg("audit")

	if err := s.repo.Create(context.WithoutCancel(ctx), row); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("action", e.Action).Msg("audit insert failed")
	}
}

func (s *AuditService) List(ctx context.Context, actor Actor, f AuditFilter, p Page) (PageResult[model.AuditLog], error) {
	if !actor.IsAdmin() {
		return PageResult[model.AuditLog]{}, ErrForbidden
	}
	list, total, err := s.repo.List(ctx, mysql.AuditFilter{
		ActorID:    f.ActorID,
		Action:     f.Action,
		TargetType: f.TargetType,
		Severity:   f.Severity,
		Status:     f.Status,
		From:       f.From,
		To:         f.To,
	}, p.Offset(), p.Limit())
	if err != nil {
		return PageResult[model.AuditLog]{}, storeErr(err, "list audit logs")
	}
	return newPage(list, total, p), nil
}

func auditDict(row *model.AuditLog) *zerolog.Event {
	d := zerolog.Dict().
		Str("action", row.Action).
		Str("severity", string(row.Severity)).
		Str("status", row.Status)
	if row.ActorID != nil {
		d = d.Uint64("actor", *row.ActorID)
	}
	if row.TargetType != "" {
		d = d.Str("target_type", row.TargetType).Str("target_id", row.TargetID)
	}
	if row.IP != "" {
		d = d.Str("ip", row.IP)
	}
	if len(row.Details) > 0 {
		details := zerolog.Dict()
		for k, v := range row.Details {
			details = details.Str(k, v)
		}
		d = d.Dict("details", details)
	}
	return d
}
