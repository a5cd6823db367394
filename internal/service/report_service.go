package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/repository/redis"
)

const adminDashboardKey = "admin"

type AdminDashboard struct {
	UsersByRole         map[string]int64 `json:"usersByRole"`
	ClubsByStatus       map[string]int64 `json:"clubsByStatus"`
	EventsByStatus      map[string]int64 `json:"eventsByStatus"`
	PendingSettings     int              `json:"pendingSettings"`
	PendingAdminEvents  int64            `json:"pendingAdminEvents"`
	FailedNotifications int64            `json:"failedNotifications"`
	GeneratedAt         time.Time        `json:"generatedAt"`
}

type CoordinatorDashboard struct {
	Clubs           []model.Club  `json:"clubs"`
	PendingSettings []model.Club  `json:"pendingSettings"`
	PendingEvents   []model.Event `json:"pendingEvents"`
}

type ClubDashboard struct {
	Club                *model.Club         `json:"club"`
	MembersByRole       map[string]int64    `json:"membersByRole"`
	EventsByStatus      map[string]int64    `json:"eventsByStatus"`
	OpenRecruitments    []model.Recruitment `json:"openRecruitments"`
	PendingApplications int64               `json:"pendingApplications"`
	CompletedBudget     float64             `json:"completedBudget"`
}

type StudentDashboard struct {
	Clubs          []model.ClubMember  `json:"clubs"`
	UpcomingEvents []model.Event       `json:"upcomingEvents"`
	Applications   []model.Application `json:"applications"`
	UnreadCount    int64               `json:"unreadCount"`
	EventsAttended int64               `json:"eventsAttended"`
}

type ReportService struct {
	clubAccess
	users         *mysql.UserRepository
	events        *mysql.EventRepository
	recruitments  *RecruitmentService
	notifications *mysql.NotificationRepository
	outbox        *mysql.OutboxRepository
	cache         *redis.DashboardCache
	now           func() time.Time
}

func NewReportService(clubs *mysql.ClubRepository, members *mysql.ClubMemberRepository, users *mysql.UserRepository,
	events *mysql.EventRepository, recruitments *RecruitmentService, notifications *mysql.NotificationRepository,
	outbox *mysql.OutboxRepository, cache *redis.DashboardCache) *ReportService {
	return &ReportService{
		clubAccess:    clubAccess{clubs: clubs, members: members},
		users:         users,
		events:        events,
		recruitments:  recruitments,
		notifications: notifications,
		outbox:        outbox,
		cache:         cache,
		now:           time.Now,
	}
}

// AdminDashboard 结果缓存一分钟
func (s *ReportService) AdminDashboard(ctx context.Context, actor Actor) (*AdminDashboard, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	var d AdminDashboard
	if hit, err := s.cache.Get(ctx, adminDashboardKey, &d); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("dashboard cache read failed")
	} else if hit {
		return &d, nil
	}

	roles, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, storeErr(err, "count users")
	}
	d.UsersByRole = make(map[string]int64, len(roles))
	for _, r := range roles {
		d.UsersByRole[r.Role] = r.Count
	}
	clubs, err := s.clubs.CountByStatus(ctx)
	if err != nil {
		return nil, storeErr(err, "count clubs")
	}
	d.ClubsByStatus = countMap(clubs)
	events, err := s.events.CountByStatus(ctx, nil)
	if err != nil {
		return nil, storeErr(err, "count events")
	}
	d.EventsByStatus = countMap(events)
	d.PendingAdminEvents = d.EventsByStatus[string(model.EventPendingAdmin)]
	pending, err := s.clubs.WithPending(ctx, 0)
	if err != nil {
		return nil, storeErr(err, "pending settings")
	}
	d.PendingSettings = len(pending)
	if d.FailedNotifications, err = s.outbox.CountByStatus(ctx, model.OutboxFailed); err != nil {
		return nil, storeErr(err, "count outbox")
	}
	d.GeneratedAt = s.now().UTC()

	if err := s.cache.Set(ctx, adminDashboardKey, &d); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("dashboard cache write failed")
	}
	return &d, nil
}

func (s *ReportService) CoordinatorDashboard(ctx context.Context, actor Actor) (*CoordinatorDashboard, error) {
	if !actor.IsCoordinator() {
		return nil, ErrForbidden
	}
	clubs, _, err := s.clubs.List(ctx, mysql.ClubFilter{CoordinatorID: actor.UserID}, 0, 100)
	if err != nil {
		return nil, storeErr(err, "list clubs")
	}
	pending, err := s.clubs.WithPending(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "pending settings")
	}
	d := &CoordinatorDashboard{Clubs: nonNil(clubs), PendingSettings: nonNil(pending), PendingEvents: []model.Event{}}
	if len(clubs) == 0 {
		return d, nil
	}
	ids := make([]uint64, 0, len(clubs))
	for _, c := range clubs {
		ids = append(ids, c.ID)
	}
	events, _, err := s.events.List(ctx, mysql.EventFilter{ClubIDs: ids, Statuses: []model.EventStatus{model.EventPendingCoordinator}}, 0, 100)
	if err != nil {
		return nil, storeErr(err, "pending events")
	}
	d.PendingEvents = nonNil(events)
	return d, nil
}

func (s *ReportService) ClubDashboard(ctx context.Context, actor Actor, clubID uint64) (*ClubDashboard, error) {
	club, err := s.club(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOversight(ctx, actor, club); err != nil {
		return nil, err
	}
	roles, err := s.members.CountByRole(ctx, club.ID)
	if err != nil {
		return nil, storeErr(err, "count members")
	}
	d := &ClubDashboard{Club: club, MembersByRole: make(map[string]int64, len(roles))}
	for _, r := range roles {
		d.MembersByRole[r.Role] = r.Count
	}
	events, err := s.events.CountByStatus(ctx, []uint64{club.ID})
	if err != nil {
		return nil, storeErr(err, "count events")
	}
	d.EventsByStatus = countMap(events)
	if d.CompletedBudget, err = s.events.SumBudget(ctx, []uint64{club.ID}, []model.EventStatus{model.EventCompleted}); err != nil {
		return nil, storeErr(err, "sum budget")
	}

	recs, err := s.recruitments.List(ctx, club.ID, "")
	if err != nil {
		return nil, err
	}
	d.OpenRecruitments = []model.Recruitment{}
	for _, rec := range recs {
		if rec.Status == model.RecruitmentOpen {
			d.OpenRecruitments = append(d.OpenRecruitments, rec)
		}
		if rec.Status != model.RecruitmentOpen && rec.Status != model.RecruitmentClosed {
			continue
		}
		counts, err := s.recruitments.repo.CountApplicationsByStatus(ctx, rec.ID)
		if err != nil {
			return nil, storeErr(err, "count applications")
		}
		for _, c := range counts {
			if !model.ApplicationStatus(c.Status).Decided() {
				d.PendingApplications += c.Count
			}
		}
	}
	return d, nil
}

func (s *ReportService) StudentDashboard(ctx context.Context, actor Actor) (*StudentDashboard, error) {
	clubs, err := s.members.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "list clubs")
	}
	upcoming, err := s.events.UpcomingForUser(ctx, actor.UserID, s.now(), 20)
	if err != nil {
		return nil, storeErr(err, "upcoming events")
	}
	apps, err := s.recruitments.MyApplications(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	unread, err := s.notifications.UnreadCount(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "unread count")
	}
	attended, err := s.events.AttendedCountByUser(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "attended count")
	}
	return &StudentDashboard{
		Clubs:          nonNil(clubs),
		UpcomingEvents: nonNil(upcoming),
		Applications:   apps,
		UnreadCount:    unread,
		EventsAttended: attended,
	}, nil
}

func (s *ReportService) ExportClubMembers(ctx context.Context, actor Actor, clubID uint64) ([]byte, error) {
	club, err := s.club(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOversight(ctx, actor, club); err != nil {
		return nil, err
	}
	list, err := s.members.List(ctx, club.ID, "")
	if err != nil {
		return nil, storeErr(err, "list members")
	}
	rows := [][]string{{"user_id", "username", "name", "email", "roll_number", "department", "year", "role", "joined_at"}}
	for _, m := range list {
		u := m.User
		if u == nil {
			u = &model.User{ID: m.UserID}
		}
		rows = append(rows, []string{
			strconv.FormatUint(m.UserID, 10), u.Username, u.Name, u.Email, u.RollNumber, u.Department,
			strconv.Itoa(u.Year), string(m.Role), m.JoinedAt.UTC().Format(time.RFC3339),
		})
	}
	return writeCSV(rows)
}

// ExportEvents 管理员可导出全部，协调员只能导出自己负责的社团
func (s *ReportService) ExportEvents(ctx context.Context, actor Actor, f EventFilter) ([]byte, error) {
	q := mysql.EventFilter{From: f.From, To: f.To}
	if f.Status != "" {
		q.Statuses = []model.EventStatus{f.Status}
	}
	switch {
	case actor.IsAdmin():
		if f.ClubID != 0 {
			q.ClubIDs = []uint64{f.ClubID}
		}
	case actor.IsCoordinator():
		ids, err := s.clubs.IDsByCoordinator(ctx, actor.UserID)
		if err != nil {
			return nil, storeErr(err, "coordinated clubs")
		}
		if f.ClubID != 0 {
			if !containsID(ids, f.ClubID) {
				return nil, ErrForbidden
			}
			ids = []uint64{f.ClubID}
		}
		if len(ids) == 0 {
			return writeCSV([][]string{eventHeader})
		}
		q.ClubIDs = ids
	default:
		return nil, ErrForbidden
	}

	rows := [][]string{eventHeader}
	for offset := 0; ; offset += 100 {
		list, _, err := s.events.List(ctx, q, offset, 100)
		if err != nil {
			return nil, storeErr(err, "list events")
		}
		for _, e := range list {
			rows = append(rows, []string{
				strconv.FormatUint(e.ID, 10), strconv.FormatUint(e.ClubID, 10), e.Title, e.Venue,
				e.StartsAt.UTC().Format(time.RFC3339), e.EndsAt.UTC().Format(time.RFC3339),
				strconv.FormatFloat(e.Budget, 'f', 2, 64), string(e.Status), strconv.FormatBool(e.IsPublic),
			})
		}
		if len(list) < 100 {
			break
		}
	}
	return writeCSV(rows)
}

var eventHeader = []string{"event_id", "club_id", "title", "venue", "starts_at", "ends_at", "budget", "status", "public"}

func (s *ReportService) ExportEventAttendance(ctx context.Context, actor Actor, eventID uint64) ([]byte, error) {
	e, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, storeErr(err, "find event")
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
		return nil, storeErr(err, "list rsvps")
	}
	rows := [][]string{{"user_id", "username", "name", "roll_number", "department", "attended"}}
	for _, r := range list {
		u := r.User
		if u == nil {
			u = &model.User{}
		}
		rows = append(rows, []string{
			strconv.FormatUint(r.UserID, 10), u.Username, u.Name, u.RollNumber, u.Department, strconv.FormatBool(r.Attended),
		})
	}
	return writeCSV(rows)
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		for i, cell := range row {
			row[i] = csvSafe(cell)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// csvSafe 表格软件会把这些前缀当作公式执行
func csvSafe(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + cell
	}
	return cell
}

func countMap(rows []mysql.StatusCount) map[string]int64 {
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
