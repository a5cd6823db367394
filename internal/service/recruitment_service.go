package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/mysql"
)

type RecruitmentInput struct {
	ClubID          uint64
	Title           string
	Description     string
	Roles           []string
	Questions       []string
	StartsAt        time.Time
	EndsAt          time.Time
	MaxApplications int
}

type RecruitmentPatch struct {
	Title           *string
	Description     *string
	Roles           []string
	Questions       []string
	StartsAt        *time.Time
	EndsAt          *time.Time
	MaxApplications *int
}

type RecruitmentService struct {
	clubAccess
	repo     *mysql.RecruitmentRepository
	users    *mysql.UserRepository
	notify   *NotificationService
	audit    *AuditService
	maxClubs int
	now      func() time.Time
}

func NewRecruitmentService(repo *mysql.RecruitmentRepository, clubs *mysql.ClubRepository, members *mysql.ClubMemberRepository,
	users *mysql.UserRepository, notify *NotificationService, audit *AuditService, maxClubs int) *RecruitmentService {
	return &RecruitmentService{
		clubAccess: clubAccess{clubs: clubs, members: members},
		repo:       repo,
		users:      users,
		notify:     notify,
		audit:      audit,
		maxClubs:   maxClubs,
		now:        time.Now,
	}
}

func (s *RecruitmentService) recruitment(ctx context.Context, id uint64) (*model.Recruitment, *model.Club, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, "find recruitment")
	}
	club, err := s.club(ctx, rec.ClubID)
	if err != nil {
		return nil, nil, err
	}
	return rec, club, nil
}

func (s *RecruitmentService) Create(ctx context.Context, actor Actor, in RecruitmentInput) (*model.Recruitment, error) {
	club, err := s.club(ctx, in.ClubID)
	if err != nil {
		return nil, err
	}
	if club.Status != model.ClubActive {
		return nil, fmt.Errorf("club is archived: %w", ErrInvalidTransition)
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title is required")
	}
	if err := validateWindow(in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}
	if in.MaxApplications < 0 {
		return nil, invalid("maxApplications cannot be negative")
	}
	rec := &model.Recruitment{
		ClubID:          club.ID,
		Title:           in.Title,
		Description:     pkg.SanitizeRichText(in.Description),
		Roles:           model.StringList(in.Roles),
		Questions:       model.StringList(in.Questions),
		StartsAt:        in.StartsAt.UTC(),
		EndsAt:          in.EndsAt.UTC(),
		MaxApplications: in.MaxApplications,
		Status:          model.RecruitmentDraft,
		CreatedBy:       actor.UserID,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, storeErr(err, "create recruitment")
	}
	return rec, nil
}

func (s *RecruitmentService) Update(ctx context.Context, actor Actor, id uint64, p RecruitmentPatch) (*model.Recruitment, error) {
	rec, club, err := s.recruitment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return nil, err
	}
	now := s.now()
	status := rec.StatusAt(now)
	if status != model.RecruitmentDraft && status != model.RecruitmentScheduled {
		return nil, fmt.Errorf("recruitment is %s: %w", status, ErrInvalidTransition)
	}
	fields := map[string]any{}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, invalid("title cannot be empty")
		}
		fields["title"] = t
	}
	if p.Description != nil {
		fields["description"] = pkg.SanitizeRichText(*p.Description)
	}
	if p.Roles != nil {
		fields["roles"] = model.StringList(p.Roles)
	}
	if p.Questions != nil {
		fields["questions"] = model.StringList(p.Questions)
	}
	starts, ends := rec.StartsAt, rec.EndsAt
	if p.StartsAt != nil {
		starts = p.StartsAt.UTC()
		if status == model.RecruitmentScheduled && !starts.After(now) {
			return nil, invalid("startsAt of a scheduled recruitment must be in the future")
		}
		fields["starts_at"] = starts
	}
	if p.EndsAt != nil {
		ends = p.EndsAt.UTC()
		fields["ends_at"] = ends
	}
	if err := validateWindow(starts, ends); err != nil {
		return nil, err
	}
	if p.MaxApplications != nil {
		if *p.MaxApplications < 0 {
			return nil, invalid("maxApplications cannot be negative")
		}
		fields["max_applications"] = *p.MaxApplications
	}
	if len(fields) > 0 {
		ok, err := s.repo.Update(ctx, rec.ID, fields, now)
		if err != nil {
			return nil, storeErr(err, "update recruitment")
		}
		if !ok {
			return nil, fmt.Errorf("recruitment is no longer editable: %w", ErrInvalidTransition)
		}
	}
	return s.Get(ctx, rec.ID)
}

// Get 返回按当前时间推导后的状态
func (s *RecruitmentService) Get(ctx context.Context, id uint64) (*model.Recruitment, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "find recruitment")
	}
	rec.Status = rec.StatusAt(s.now())
	return rec, nil
}

func (s *RecruitmentService) List(ctx context.Context, clubID uint64, status model.RecruitmentStatus) ([]model.Recruitment, error) {
	list, err := s.repo.List(ctx, clubID, nil)
	if err != nil {
		return nil, storeErr(err, "list recruitments")
	}
	now := s.now()
	out := make([]model.Recruitment, 0, len(list))
	for _, rec := range list {
		rec.Status = rec.StatusAt(now)
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Schedule 草稿发布为 scheduled；窗口已开始则直接 open
func (s *RecruitmentService) Schedule(ctx context.Context, actor Actor, id uint64) (*model.Recruitment, error) {
	rec, club, err := s.recruitment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return nil, err
	}
	now := s.now()
	if !now.Before(rec.EndsAt) {
		return nil, invalid("recruitment window has already ended")
	}
	to := model.RecruitmentScheduled
	if !now.Before(rec.StartsAt) {
		to = model.RecruitmentOpen
	}
	ok, err := s.repo.Transition(ctx, rec.ID, []model.RecruitmentStatus{model.RecruitmentDraft}, to)
	if err != nil {
		return nil, storeErr(err, "schedule recruitment")
	}
	if !ok {
		return nil, fmt.Errorf("only drafts can be scheduled: %w", ErrInvalidTransition)
	}
	rec.Status = to
	if to == model.RecruitmentOpen {
		s.announceOpen(ctx, rec, club)
	}
	return rec, nil
}

func (s *RecruitmentService) Close(ctx context.Context, actor Actor, id uint64) error {
	rec, club, err := s.recruitment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return err
	}
	ok, err := s.repo.Transition(ctx, rec.ID,
		[]model.RecruitmentStatus{model.RecruitmentScheduled, model.RecruitmentOpen}, model.RecruitmentClosed)
	if err != nil {
		return storeErr(err, "close recruitment")
	}
	if !ok {
		return fmt.Errorf("recruitment is %s: %w", rec.Status, ErrInvalidTransition)
	}
	return nil
}

// Complete 结束招新，未定论的申请统一拒绝
func (s *RecruitmentService) Complete(ctx context.Context, actor Actor, id uint64) (int, error) {
	rec, club, err := s.recruitment(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return 0, err
	}
	if rec.StatusAt(s.now()) != model.RecruitmentClosed {
		return 0, fmt.Errorf("recruitment must be closed first: %w", ErrInvalidTransition)
	}
	ok, err := s.repo.Transition(ctx, rec.ID,
		[]model.RecruitmentStatus{model.RecruitmentScheduled, model.RecruitmentOpen, model.RecruitmentClosed}, model.RecruitmentCompleted)
	if err != nil {
		return 0, storeErr(err, "complete recruitment")
	}
	if !ok {
		return 0, fmt.Errorf("recruitment is %s: %w", rec.Status, ErrInvalidTransition)
	}
	rejected, err := s.repo.RejectUndecided(ctx, rec.ID, s.now())
	if err != nil {
		return 0, storeErr(err, "reject undecided")
	}
	ids := make([]uint64, 0, len(rejected))
	for _, app := range rejected {
		ids = append(ids, app.UserID)
	}
	s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: AuditRecruitmentCompleted, TargetType: "recruitment", TargetID: rec.ID,
		Details: map[string]string{"rejected": fmt.Sprint(len(rejected))}})
	s.notify.Emit(ctx, ids, Notice{
		Type:     model.NotifyApplicationDecision,
		Title:    fmt.Sprintf("%s: application not selected", club.Name),
		Message:  "Thank you for applying to " + rec.Title + ".",
		Priority: model.PriorityHigh,
	})
	return len(rejected), nil
}

// SyncWindows 定时任务按时间窗口开启/关闭招新
func (s *RecruitmentService) SyncWindows(ctx context.Context, now time.Time) error {
	toOpen, err := s.repo.DueToOpen(ctx, now)
	if err != nil {
		return storeErr(err, "due to open")
	}
	for i := range toOpen {
		rec := &toOpen[i]
		ok, err := s.repo.Transition(ctx, rec.ID, []model.RecruitmentStatus{model.RecruitmentScheduled}, model.RecruitmentOpen)
		if err != nil || !ok {
			continue
		}
		club, err := s.club(ctx, rec.ClubID)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Uint64("recruitment", rec.ID).Msg("load club failed")
			continue
		}
		s.announceOpen(ctx, rec, club)
	}

	toClose, err := s.repo.DueToClose(ctx, now)
	if err != nil {
		return storeErr(err, "due to close")
	}
	for _, rec := range toClose {
		if _, err := s.repo.Transition(ctx, rec.ID,
			[]model.RecruitmentStatus{model.RecruitmentScheduled, model.RecruitmentOpen}, model.RecruitmentClosed); err != nil {
			log.Ctx(ctx).Warn().Err(err).Uint64("recruitment", rec.ID).Msg("close recruitment failed")
		}
	}
	return nil
}

func (s *RecruitmentService) announceOpen(ctx context.Context, rec *model.Recruitment, club *model.Club) {
	s.notify.EmitToRole(ctx, model.RoleStudent, Notice{
		Type:     model.NotifyRecruitmentOpen,
		Title:    club.Name + " is recruiting: " + rec.Title,
		Message:  "Applications close " + rec.EndsAt.Format(time.RFC1123) + ".",
		Link:     fmt.Sprintf("/recruitments/%d", rec.ID),
		Priority: model.PriorityNormal,
	})
}

func (s *RecruitmentService) Apply(ctx context.Context, actor Actor, id uint64, answers map[string]string) (*model.Application, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "find recruitment")
	}
	if rec.StatusAt(s.now()) != model.RecruitmentOpen {
		return nil, fmt.Errorf("recruitment is not open: %w", ErrInvalidTransition)
	}
	member, err := s.members.IsMember(ctx, rec.ClubID, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "check membership")
	}
	if member {
		return nil, fmt.Errorf("already a member: %w", ErrConflict)
	}
	if actor.Role == model.RoleStudent && s.maxClubs > 0 {
		n, err := s.members.CountClubsOfUser(ctx, actor.UserID)
		if err != nil {
			return nil, storeErr(err, "count clubs")
		}
		if n >= int64(s.maxClubs) {
			return nil, ErrClubLimitReached
		}
	}
	if rec.MaxApplications > 0 {
		n, err := s.repo.CountApplications(ctx, rec.ID)
		if err != nil {
			return nil, storeErr(err, "count applications")
		}
		if n >= int64(rec.MaxApplications) {
			return nil, fmt.Errorf("recruitment is full: %w", ErrInvalidTransition)
		}
	}
	app := &model.Application{
		RecruitmentID: rec.ID,
		ClubID:        rec.ClubID,
		UserID:        actor.UserID,
		Answers:       model.JSONMap(answers),
		Status:        model.ApplicationSubmitted,
	}
	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, storeErr(err, "create application")
	}
	return app, nil
}

func (s *RecruitmentService) ListApplications(ctx context.Context, actor Actor, id uint64, status model.ApplicationStatus) ([]model.Application, error) {
	rec, club, err := s.recruitment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireOversight(ctx, actor, club); err != nil {
		return nil, err
	}
	list, err := s.repo.ListApplications(ctx, rec.ID, status)
	if err != nil {
		return nil, storeErr(err, "list applications")
	}
	if list == nil {
		list = []model.Application{}
	}
	return list, nil
}

func (s *RecruitmentService) MyApplications(ctx context.Context, userID uint64) ([]model.Application, error) {
	list, err := s.repo.ListApplicationsByUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "list my applications")
	}
	if list == nil {
		list = []model.Application{}
	}
	return list, nil
}

// ReviewApplication 录取时在同一事务中加入社团并检查数量上限
func (s *RecruitmentService) ReviewApplication(ctx context.Context, actor Actor, appID uint64, to model.ApplicationStatus, note string) (*model.Application, error) {
	switch to {
	case model.ApplicationShortlisted, model.ApplicationSelected, model.ApplicationRejected:
	default:
		return nil, invalid("cannot set application to %q", to)
	}
	app, err := s.repo.FindApplication(ctx, appID)
	if err != nil {
		return nil, storeErr(err, "find application")
	}
	rec, club, err := s.recruitment(ctx, app.RecruitmentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return nil, err
	}
	if rec.Status == model.RecruitmentCompleted || app.Status.Decided() {
		return nil, fmt.Errorf("application already decided: %w", ErrInvalidTransition)
	}

	now := s.now().UTC()
	note = strings.TrimSpace(note)
	var ok bool
	if to == model.ApplicationSelected {
		limit := 0
		if app.User != nil && app.User.GlobalRole == model.RoleStudent {
			limit = s.maxClubs
		}
		ok, err = s.repo.Select(ctx, app, actor.UserID, note, now, limit)
	} else {
		ok, err = s.repo.Review(ctx, app.ID, to, actor.UserID, note, now)
	}
	if err != nil {
		return nil, storeErr(err, "review application")
	}
	if !ok {
		return nil, fmt.Errorf("application changed concurrently: %w", ErrInvalidTransition)
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: AuditApplicationDecided, TargetType: "application", TargetID: app.ID,
		Details: map[string]string{"from": string(app.Status), "to": string(to)}})
	priority := model.PriorityHigh
	if to == model.ApplicationShortlisted {
		priority = model.PriorityNormal
	}
	s.notify.Emit(ctx, []uint64{app.UserID}, Notice{
		Type:     model.NotifyApplicationDecision,
		Title:    fmt.Sprintf("%s: application %s", club.Name, to),
		Message:  note,
		Link:     fmt.Sprintf("/recruitments/%d", rec.ID),
		Priority: priority,
	})

	app.Status = to
	app.ReviewedBy = &actor.UserID
	app.ReviewedAt = &now
	app.Note = note
	return app, nil
}
