package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"Clubs_Hub/internal/metrics"
	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/mysql"
)

type EventPolicy struct {
	AdminBudgetThreshold float64
	MinPhotos            int
	ChecklistGrace       time.Duration
}

type EventInput struct {
	ClubID            uint64
	Title             string
	Description       string
	Venue             string
	StartsAt          time.Time
	EndsAt            time.Time
	Budget            float64
	ExpectedAttendees int
	GuestSpeakers     []string
	IsPublic          bool
}

type EventPatch struct {
	Title             *string
	Description       *string
	Venue             *string
	StartsAt          *time.Time
	EndsAt            *time.Time
	Budget            *float64
	ExpectedAttendees *int
	GuestSpeakers     []string
	IsPublic          *bool
}

type ChecklistPatch struct {
	AttendanceURL *string
	ReportURL     *string
	BillsURL      *string
	PhotoURLs     []string
}

type EventFilter struct {
	ClubID uint64
	Status model.EventStatus
	From   *time.Time
	To     *time.Time
	Public bool
}

// 对所有登录用户可见的状态
var visibleStatuses = []model.EventStatus{model.EventPublished, model.EventOngoing, model.EventCompleted, model.EventIncomplete}

type EventService struct {
	clubAccess
	events *mysql.EventRepository
	users  *mysql.UserRepository
	notify *NotificationService
	audit  *AuditService
	policy EventPolicy
	now    func() time.Time
}

func NewEventService(events *mysql.EventRepository, clubs *mysql.ClubRepository, members *mysql.ClubMemberRepository,
	users *mysql.UserRepository, notify *NotificationService, audit *AuditService, policy EventPolicy) *EventService {
	return &EventService{
		clubAccess: clubAccess{clubs: clubs, members: members},
		events:     events,
		users:      users,
		notify:     notify,
		audit:      audit,
		policy:     policy,
		now:        time.Now,
	}
}

func (s *EventService) event(ctx context.Context, id uint64) (*model.Event, error) {
	e, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "find event")
	}
	return e, nil
}

func validateWindow(starts, ends time.Time) error {
	if starts.IsZero() || ends.IsZero() {
		return invalid("startsAt and endsAt are required")
	}
	if !ends.After(starts) {
		return invalid("endsAt must be after startsAt")
	}
	return nil
}

func (s *EventService) CreateEvent(ctx context.Context, actor Actor, in EventInput) (*model.Event, error) {
	club, err := s.club(ctx, in.ClubID)
	if err != nil {
		return nil, err
	}
	if club.Status != model.ClubActive {
		return nil, fmt.Errorf("club is archived: %w", ErrInvalidTransition)
	}
	if err := s.requireCore(ctx, actor, club); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, invalid("title is required")
	}
	if err := validateWindow(in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}
	if in.Budget < 0 {
		return nil, invalid("budget cannot be negative")
	}
	e := &model.Event{
		ClubID:            club.ID,
		Title:             in.Title,
		Description:       pkg.SanitizeRichText(in.Description),
		Venue:             strings.TrimSpace(in.Venue),
		StartsAt:          in.StartsAt.UTC(),
		EndsAt:            in.EndsAt.UTC(),
		Budget:            in.Budget,
		ExpectedAttendees: in.ExpectedAttendees,
		GuestSpeakers:     model.StringList(in.GuestSpeakers),
		IsPublic:          in.IsPublic,
		Status:            model.EventDraft,
		CreatedBy:         actor.UserID,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, storeErr(err, "create event")
	}
	return e, nil
}

// UpdateEvent 只有草稿和被驳回的活动可以修改
func (s *EventService) UpdateEvent(ctx context.Context, actor Actor, id uint64, p EventPatch) (*model.Event, error) {
	e, err := s.event(ctx, id)
	if err != nil {
		return nil, err
	}
	club, err := s.club(ctx, e.ClubID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCore(ctx, actor, club); err != nil {
		return nil, err
	}
	if !e.Status.Editable() {
		return nil, fmt.Errorf("event is %s: %w", e.Status, ErrInvalidTransition)
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
	if p.Venue != nil {
		fields["venue"] = strings.TrimSpace(*p.Venue)
	}
	starts, ends := e.StartsAt, e.EndsAt
	if p.StartsAt != nil {
		starts = p.StartsAt.UTC()
		fields["starts_at"] = starts
	}
	if p.EndsAt != nil {
		ends = p.EndsAt.UTC()
		fields["ends_at"] = ends
	}
	if err := validateWindow(starts, ends); err != nil {
		return nil, err
	}
	if p.Budget != nil {
		if *p.Budget < 0 {
			return nil, invalid("budget cannot be negative")
		}
		fields["budget"] = *p.Budget
	}
	if p.ExpectedAttendees != nil {
		fields["expected_attendees"] = *p.ExpectedAttendees
	}
	if p.GuestSpeakers != nil {
		fields["guest_speakers"] = model.StringList(p.GuestSpeakers)
	}
	if p.IsPublic != nil {
		fields["is_public"] = *p.IsPublic
	}
	if len(fields) > 0 {
		ok, err := s.events.UpdateDraft(ctx, e.ID, fields)
		if err != nil {
			return nil, storeErr(err, "update event")
		}
		if !ok {
			return nil, fmt.Errorf("event changed concurrently: %w", ErrInvalidTransition)
		}
	}
	return s.event(ctx, e.ID)
}

func (s *EventService) DeleteEvent(ctx context.Context, actor Actor, id uint64) error {
	e, err := s.event(ctx, id)
	if err != nil {
		return err
	}
	club, err := s.club(ctx, e.ClubID)
	if err != nil {
		return err
	}
	if err := s.requireCore(ctx, actor, club); err != nil {
		return err
	}
	ok, err := s.events.Delete(ctx, e.ID)
	if err != nil {
		return storeErr(err, "delete event")
	}
	if !ok {
		return fmt.Errorf("only draft events can be deleted: %w", ErrInvalidTransition)
	}
	return nil
}

// canSeeInternal 社团成员、协调员和管理员能看到未发布的活动
func (s *EventService) canSeeInternal(ctx context.Context, actor Actor, club *model.Club) (bool, error) {
	if actor.IsAdmin() || isCoordinatorOf(actor, club) {
		return true, nil
	}
	role, err := s.role(ctx, club.ID, actor.UserID)
	return role != "", err
}

func (s *EventService) GetEvent(ctx context.Context, actor Actor, id uint64) (*model.Event, error) {
	e, err := s.event(ctx, id)
	if err != nil {
		return nil, err
	}
	if isVisible(e) {
		return e, nil
	}
	club, err := s.club(ctx, e.ClubID)
	if err != nil {
		return nil, err
	}
	ok, err := s.canSeeInternal(ctx, actor, club)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("event: %w", ErrNotFound)
	}
	return e, nil
}

func isVisible(e *model.Event) bool {
	if !e.IsPublic {
		return false
	}
	for _, st := range visibleStatuses {
		if st == e.Status {
			return true
		}
	}
	return false
}

func (s *EventService) ListEvents(ctx context.Context, actor Actor, f EventFilter, p Page) (PageResult[model.Event], error) {
	q := mysql.EventFilter{PublicOnly: f.Public, From: f.From, To: f.To}
	if f.Status != "" {
		q.Statuses = []model.EventStatus{f.Status}
	}
	internal := actor.IsAdmin()
	if f.ClubID != 0 {
		q.ClubIDs = []uint64{f.ClubID}
		club, err := s.club(ctx, f.ClubID)
		if err != nil {
			return PageResult[model.Event]{}, err
		}
		if internal, err = s.canSeeInternal(ctx, actor, club); err != nil {
			return PageResult[model.Event]{}, err
		}
	}
	if !internal {
		q.PublicOnly = true
		if f.Status == "" {
			q.Statuses = visibleStatuses
		} else if !statusIn(f.Status, visibleStatuses) {
			return newPage[model.Event](nil, 0, p), nil
		}
	}
	list, total, err := s.events.List(ctx, q, p.Offset(), p.Limit())
	if err != nil {
		return PageResult[model.Event]{}, storeErr(err, "list events")
	}
	return newPage(list, total, p), nil
}

func statusIn(s model.EventStatus, set []model.EventStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Transition 推进活动状态机，非法组合返回 ErrInvalidTransition
func (s *EventService) Transition(ctx context.Context, actor Actor, id uint64, action model.EventAction, reason string) (*model.Event, error) {
	if !action.Valid() {
		return nil, invalid("unknown action %q", action)
	}
	e, err := s.event(ctx, id)
	if err != nil {
		return nil, err
	}
	club, err := s.club(ctx, e.ClubID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, club, e, action); err != nil {
		return nil, err
	}
	return s.apply(ctx, actor.UserID, e, club, action, reason)
}

func (s *EventService) authorize(ctx context.Context, actor Actor, club *model.Club, e *model.Event, action model.EventAction) error {
	switch action {
	case model.ActionSubmit, model.ActionStart, model.ActionComplete:
		return s.requireCore(ctx, actor, club)
	case model.ActionPublish, model.ActionCancel:
		return s.requireLeader(ctx, actor, club)
	case model.ActionCoordinatorApprove:
		if actor.IsAdmin() || isCoordinatorOf(actor, club) {
			return nil
		}
	case model.ActionReject:
		if actor.IsAdmin() || (e.Status == model.EventPendingCoordinator && isCoordinatorOf(actor, club)) {
			return nil
		}
	case model.ActionAdminApprove, model.ActionMarkIncomplete:
		if actor.IsAdmin() {
			return nil
		}
	}
	return ErrForbidden
}

// apply actorID 为 0 表示定时任务触发
func (s *EventService) apply(ctx context.Context, actorID uint64, e *model.Event, club *model.Club, action model.EventAction, reason string) (*model.Event, error) {
	from := e.Status
	if !action.CanApply(from) {
		return nil, fmt.Errorf("cannot %s an event in %s: %w", action, from, ErrInvalidTransition)
	}
	reason = strings.TrimSpace(reason)
	if action == model.ActionReject && reason == "" {
		return nil, invalid("a rejection reason is required")
	}
	if action == model.ActionComplete {
		if missing := e.Checklist.Missing(e.Budget, s.policy.MinPhotos); len(missing) > 0 {
			return nil, invalid("completion checklist incomplete: %s", strings.Join(missing, ", "))
		}
	}
	to := action.NextStatus(e.NeedsAdminApproval(s.policy.AdminBudgetThreshold))

	now := s.now().UTC()
	extra := map[string]any{}
	switch action {
	case model.ActionSubmit:
		extra["submitted_at"] = now
		extra["rejection_reason"] = ""
	case model.ActionCoordinatorApprove, model.ActionAdminApprove:
		if to == model.EventApproved {
			extra["approved_by"] = actorID
		}
	case model.ActionReject:
		extra["rejection_reason"] = reason
	case model.ActionPublish:
		extra["published_at"] = now
	case model.ActionComplete:
		extra["completed_at"] = now
	}
	ok, err := s.events.Transition(ctx, e.ID, from, to, extra)
	if err != nil {
		return nil, storeErr(err, "transition event")
	}
	if !ok {
		return nil, fmt.Errorf("event changed concurrently: %w", ErrInvalidTransition)
	}

	metrics.EventTransitionsTotal.WithLabelValues(string(action), string(to)).Inc()
	details := map[string]string{"action": string(action), "from": string(from), "to": string(to)}
	if reason != "" {
		details["reason"] = reason
	}
	s.audit.Record(ctx, AuditEntry{ActorID: actorID, Action: AuditEventTransition, TargetType: "event", TargetID: e.ID, Details: details})

	updated, err := s.event(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, updated, club, action, reason)
	return updated, nil
}

func (s *EventService) announce(ctx context.Context, e *model.Event, club *model.Club, action model.EventAction, reason string) {
	link := eventLink(e.ID)
	switch {
	case action == model.ActionSubmit:
		s.notify.Emit(ctx, []uint64{club.CoordinatorID}, Notice{
			Type: model.NotifyEventApproval, Title: "Event awaiting approval: " + e.Title,
			Message: club.Name + " submitted an event for review.", Link: link, Priority: model.PriorityHigh,
		})
	case e.Status == model.EventPendingAdmin:
		s.notify.EmitToRole(ctx, model.RoleAdmin, Notice{
			Type: model.NotifyEventApproval, Title: "Event needs admin approval: " + e.Title,
			Message: fmt.Sprintf("Budget %.2f, %d guest speaker(s).", e.Budget, len(e.GuestSpeakers)), Link: link, Priority: model.PriorityHigh,
		})
	case action == model.ActionReject:
		s.notify.Emit(ctx, []uint64{e.CreatedBy}, Notice{
			Type: model.NotifyEventStatus, Title: "Event rejected: " + e.Title,
			Message: reason, Link: link, Priority: model.PriorityHigh,
		})
	case action == model.ActionPublish:
		s.announcePublished(ctx, e, club)
	case action == model.ActionCancel:
		ids, err := s.events.RSVPUserIDs(ctx, e.ID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Uint64("event", e.ID).Msg("load rsvps failed")
		}
		s.notify.Emit(ctx, append(ids, e.CreatedBy), Notice{
			Type: model.NotifyEventStatus, Title: "Event cancelled: " + e.Title, Link: link, Priority: model.PriorityHigh,
		})
	default:
		s.notify.Emit(ctx, []uint64{e.CreatedBy}, Notice{
			Type: model.NotifyEventStatus, Title: fmt.Sprintf("Event %s is now %s", e.Title, e.Status),
			Link: link, Priority: model.PriorityNormal,
		})
	}
}

// announcePublished 公开活动通知全部学生，否则只通知社团成员
func (s *EventService) announcePublished(ctx context.Context, e *model.Event, club *model.Club) {
	ids, err := s.members.UserIDs(ctx, club.ID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Uint64("club", club.ID).Msg("load members failed")
	}
	if e.IsPublic {
		students, err := s.users.IDsByRole(ctx, model.RoleStudent)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("load students failed")
		}
		ids = append(ids, students...)
	}
	s.notify.Emit(ctx, ids, Notice{
		Type:     model.NotifyEventPublished,
		Title:    club.Name + ": " + e.Title,
		Message:  fmt.Sprintf("%s at %s", e.StartsAt.Format(time.RFC1123), e.Venue),
		Link:     eventLink(e.ID),
		Priority: model.PriorityNormal,
	})
}

func (s *EventService) UpdateChecklist(ctx context.Context, actor Actor, id uint64, p ChecklistPatch) (*model.Event, error) {
	e, err := s.event(ctx, id)
	if err != nil {
		return nil, err
	}
	club, err := s.club(ctx, e.ClubID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCore(ctx, actor, club); err != nil {
		return nil, err
	}
	if e.Status != model.EventOngoing && e.Status != model.EventIncomplete {
		return nil, fmt.Errorf("checklist is editable only while ongoing or incomplete: %w", ErrInvalidTransition)
	}
	c := e.Checklist
	if p.AttendanceURL != nil {
		c.AttendanceURL = *p.AttendanceURL
	}
	if p.ReportURL != nil {
		c.ReportURL = *p.ReportURL
	}
	if p.BillsURL != nil {
		c.BillsURL = *p.BillsURL
	}
	if p.PhotoURLs != nil {
		c.PhotoURLs = p.PhotoURLs
	}
	if err := s.events.UpdateChecklist(ctx, e.ID, c); err != nil {
		return nil, storeErr(err, "update checklist")
	}
	e.Checklist = c
	return e, nil
}

// RSVP 只对已发布或进行中的活动开放，非公开活动仅限成员
func (s *EventService) RSVP(ctx context.Context, actor Actor, id uint64) error {
	e, err := s.event(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != model.EventPublished && e.Status != model.EventOngoing {
		return fmt.Errorf("event is %s: %w", e.Status, ErrInvalidTransition)
	}
	if !e.IsPublic {
		club, err := s.club(ctx, e.ClubID)
		if err != nil {
			return err
		}
		ok, err := s.canSeeInternal(ctx, actor, club)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}
	}
	return storeErr(s.events.RSVP(ctx, e.ID, actor.UserID), "rsvp")
}

func (s *EventService) CancelRSVP(ctx context.Context, actor Actor, id uint64) error {
	e, err := s.event(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireRSVP(ctx, e.ID, actor.UserID); err != nil {
		return err
	}
	if e.Status != model.EventPublished {
		return fmt.Errorf("event is %s: %w", e.Status, ErrInvalidTransition)
	}
	ok, err := s.events.CancelRSVP(ctx, e.ID, actor.UserID)
	if err != nil {
		return storeErr(err, "cancel rsvp")
	}
	if !ok {
		return fmt.Errorf("rsvp: %w", ErrNotFound)
	}
	return nil
}

func (s *EventService) MarkAttendance(ctx context.Context, actor Actor, id uint64, userIDs []uint64, attended bool) error {
	e, err := s.event(ctx, id)
	if err != nil {
		return err
	}
	club, err := s.club(ctx, e.ClubID)
	if err != nil {
		return err
	}
	if err := s.requireCore(ctx, actor, club); err != nil {
		return err
	}
	switch e.Status {
	case model.EventOngoing, model.EventIncomplete, model.EventCompleted:
	default:
		return fmt.Errorf("attendance opens once the event starts: %w", ErrInvalidTransition)
	}
	ids := dedupeIDs(userIDs)
	// 标记到场可补录现场报名，撤销到场只针对已有报名
	if !attended {
		for _, uid := range ids {
			if err := s.requireRSVP(ctx, e.ID, uid); err != nil {
				return err
			}
		}
	}
	return storeErr(s.events.MarkAttendance(ctx, e.ID, ids, attended), "mark attendance")
}

func (s *EventService) requireRSVP(ctx context.Context, eventID, userID uint64) error {
	ok, err := s.events.HasRSVP(ctx, eventID, userID)
	if err != nil {
		return storeErr(err, "check rsvp")
	}
	if !ok {
		return fmt.Errorf("rsvp of user %d: %w", userID, ErrNotFound)
	}
	return nil
}

func (s *EventService) ListAttendees(ctx context.Context, actor Actor, id uint64) ([]model.EventRSVP, error) {
	e, err := s.event(ctx, id)
	if err != nil {
		return nil, err
	}
	club, err := s.club(ctx, e.ClubID)
	if err != nil {
		return nil, err
	}
	if !isCoordinatorOf(actor, club) {
		if err := s.requireCore(ctx, actor, club); err != nil {
			return nil, err
		}
	}
	list, err := s.events.ListRSVPs(ctx, e.ID)
	if err != nil {
		return nil, storeErr(err, "list attendees")
	}
	if list == nil {
		list = []model.EventRSVP{}
	}
	return list, nil
}

// StartDue 把开始时间已到的已发布活动置为进行中
func (s *EventService) StartDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.events.DueToStart(ctx, now, 100)
	if err != nil {
		return 0, storeErr(err, "due events")
	}
	n := 0
	for i := range due {
		if s.systemApply(ctx, &due[i], model.ActionStart) {
			n++
		}
	}
	return n, nil
}

// CloseOverdue 结束超过宽限期的活动：清单齐全则结项，否则标记为未完成
func (s *EventService) CloseOverdue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.events.DueForCompletionCheck(ctx, now.Add(-s.policy.ChecklistGrace), 100)
	if err != nil {
		return 0, storeErr(err, "overdue events")
	}
	n := 0
	for i := range due {
		e := &due[i]
		action := model.ActionMarkIncomplete
		if len(e.Checklist.Missing(e.Budget, s.policy.MinPhotos)) == 0 {
			action = model.ActionComplete
		}
		if s.systemApply(ctx, e, action) {
			n++
		}
	}
	return n, nil
}

func (s *EventService) systemApply(ctx context.Context, e *model.Event, action model.EventAction) bool {
	club, err := s.club(ctx, e.ClubID)
	if err == nil {
		_, err = s.apply(ctx, 0, e, club, action, "")
	}
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Uint64("event", e.ID).Str("action", string(action)).Msg("scheduled transition failed")
		return false
	}
	return true
}
