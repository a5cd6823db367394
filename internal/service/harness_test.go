package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/gorm"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/repository/redis"
	"Clubs_Hub/internal/testutil"
)

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type published struct {
	Topic, Key string
	Value      []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	fail bool
}

func (p *fakePublisher) Send(_ context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, published{Topic: topic, Key: key, Value: value})
	return nil
}

var testPolicy = EventPolicy{AdminBudgetThreshold: 5000, MinPhotos: 1, ChecklistGrace: 24 * time.Hour}

// testEnv 基于 sqlite 和 miniredis 组装完整的服务层
type testEnv struct {
	db     *gorm.DB
	mr     *miniredis.Miniredis
	mailer *fakeMailer

	notifRepo  *mysql.NotificationRepository
	outboxRepo *mysql.OutboxRepository
	cache      *redis.DashboardCache
	lock       *redis.DistLock

	audit       *AuditService
	notify      *NotificationService
	emails      *EmailService
	sessions    *SessionService
	users       *UserService
	clubs       *ClubService
	events      *EventService
	recruitment *RecruitmentService
	reports     *ReportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.OpenDB(t)
	rdb, mr := testutil.OpenRedis(t)
	mailer := &fakeMailer{}

	userRepo := &mysql.UserRepository{DB: db}
	clubRepo := &mysql.ClubRepository{DB: db}
	memberRepo := &mysql.ClubMemberRepository{DB: db}
	eventRepo := &mysql.EventRepository{DB: db}
	recRepo := &mysql.RecruitmentRepository{DB: db}
	notifRepo := &mysql.NotificationRepository{DB: db}
	outboxRepo := &mysql.OutboxRepository{DB: db}

	tokens := pkg.NewTokenIssuer("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	cache := &redis.DashboardCache{RDB: rdb, TTL: time.Minute}

	e := &testEnv{
		db:         db,
		mr:         mr,
		mailer:     mailer,
		notifRepo:  notifRepo,
		outboxRepo: outboxRepo,
		cache:      cache,
		lock:       &redis.DistLock{RDB: rdb},
	}
	e.audit = NewAuditService(&mysql.AuditRepository{DB: db})
	e.notify = NewNotificationService(notifRepo, userRepo)
	e.emails = NewEmailService(mailer, &redis.EmailCodeRepository{RDB: rdb})
	e.sessions = NewSessionService(&mysql.SessionRepository{DB: db}, userRepo, &redis.SessionCache{RDB: rdb}, tokens)
	e.users = NewUserService(userRepo, e.sessions, e.emails, e.audit)
	e.clubs = NewClubService(clubRepo, memberRepo, userRepo, e.notify, e.audit, 3)
	e.events = NewEventService(eventRepo, clubRepo, memberRepo, userRepo, e.notify, e.audit, testPolicy)
	e.recruitment = NewRecruitmentService(recRepo, clubRepo, memberRepo, userRepo, e.notify, e.audit, 3)
	e.reports = NewReportService(clubRepo, memberRepo, userRepo, eventRepo, e.recruitment, notifRepo, outboxRepo, cache)
	return e
}

func (e *testEnv) user(t *testing.T, name string, role model.GlobalRole) (*model.User, Actor) {
	t.Helper()
	u := testutil.SeedUser(t, e.db, name, role)
	return u, Actor{UserID: u.ID, Role: u.GlobalRole}
}

// clubWithPresident 管理员建社团并任命社长
func (e *testEnv) clubWithPresident(t *testing.T, name string, coord, president *model.User) *model.Club {
	t.Helper()
	_, admin := e.user(t, name+"-admin", model.RoleAdmin)
	club, err := e.clubs.CreateClub(context.Background(), admin, CreateClubInput{
		Name:          name,
		Category:      model.CategoryTechnical,
		CoordinatorID: coord.ID,
		PresidentID:   president.ID,
	})
	if err != nil {
		t.Fatalf("create club: %v", err)
	}
	return club
}

func (e *testEnv) unread(t *testing.T, userID uint64) int64 {
	t.Helper()
	n, err := e.notify.UnreadCount(context.Background(), userID)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	return n
}
