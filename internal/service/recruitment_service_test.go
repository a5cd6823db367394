package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/testutil"
)

func openRecruitment(t *testing.T, e *testEnv, club *model.Club, president Actor, max int) *model.Recruitment {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	rec, err := e.recruitment.Create(ctx, president, RecruitmentInput{
		ClubID:          club.ID,
		Title:           "Fall intake",
		Roles:           []string{"designer", "developer"},
		Questions:       []string{"Why us?"},
		StartsAt:        now.Add(-time.Hour),
		EndsAt:          now.Add(24 * time.Hour),
		MaxApplications: max,
	})
	require.NoError(t, err)
	rec, err = e.recruitment.Schedule(ctx, president, rec.ID)
	require.NoError(t, err)
	require.Equal(t, model.RecruitmentOpen, rec.Status)
	return rec
}

func TestRecruitmentService_ApplyAndSelect(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, coordActor := e.user(t, "coord", model.RoleCoordinator)
	pres, presActor := e.user(t, "pres", "")
	a, aActor := e.user(t, "amy", "")
	b, bActor := e.user(t, "ben", "")
	club := e.clubWithPresident(t, "Design Club", coord, pres)
	rec := openRecruitment(t, e, club, presActor, 0)
	assert.EqualValues(t, 1, e.unread(t, a.ID), "students hear about open recruitments")

	_, err := e.recruitment.Apply(ctx, presActor, rec.ID, nil)
	assert.ErrorIs(t, err, ErrConflict, "members cannot apply")

	appA, err := e.recruitment.Apply(ctx, aActor, rec.ID, map[string]string{"Why us?": "design"})
	require.NoError(t, err)
	_, err = e.recruitment.Apply(ctx, aActor, rec.ID, nil)
	assert.ErrorIs(t, err, ErrConflict)
	appB, err := e.recruitment.Apply(ctx, bActor, rec.ID, nil)
	require.NoError(t, err)

	_, err = e.recruitment.ListApplications(ctx, aActor, rec.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)
	apps, err := e.recruitment.ListApplications(ctx, coordActor, rec.ID, model.ApplicationSubmitted)
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	_, err = e.recruitment.ReviewApplication(ctx, coordActor, appA.ID, model.ApplicationSelected, "")
	assert.ErrorIs(t, err, ErrForbidden, "coordinators oversee but do not decide")
	_, err = e.recruitment.ReviewApplication(ctx, presActor, appA.ID, model.ApplicationSubmitted, "")
	assert.ErrorIs(t, err, ErrValidation)

	got, err := e.recruitment.ReviewApplication(ctx, presActor, appA.ID, model.ApplicationShortlisted, "interview")
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationShortlisted, got.Status)
	got, err = e.recruitment.ReviewApplication(ctx, presActor, appA.ID, model.ApplicationSelected, "welcome")
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationSelected, got.Status)

	mine, err := e.clubs.MyClubs(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, club.ID, mine[0].ClubID)

	_, err = e.recruitment.ReviewApplication(ctx, presActor, appA.ID, model.ApplicationRejected, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.recruitment.Complete(ctx, presActor, rec.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "still open")
	require.NoError(t, e.recruitment.Close(ctx, presActor, rec.ID))
	_, err = e.recruitment.Apply(ctx, bActor, rec.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	before := e.unread(t, b.ID)
	n, err := e.recruitment.Complete(ctx, presActor, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, before+1, e.unread(t, b.ID))

	mineB, err := e.recruitment.MyApplications(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, mineB, 1)
	assert.Equal(t, appB.ID, mineB[0].ID)
	assert.Equal(t, model.ApplicationRejected, mineB[0].Status)

	final, err := e.recruitment.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecruitmentCompleted, final.Status)
}

func TestRecruitmentService_Limits(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, _ := e.user(t, "coord", model.RoleCoordinator)
	pres, presActor := e.user(t, "pres", "")
	_, adminActor := e.user(t, "root", model.RoleAdmin)
	full, fullActor := e.user(t, "busy", "")
	_, freeActor := e.user(t, "free", "")
	_, lateActor := e.user(t, "late", "")
	club := e.clubWithPresident(t, "Quiz Club", coord, pres)
	rec := openRecruitment(t, e, club, presActor, 1)

	for _, name := range []string{"X", "Y", "Z"} {
		c := testutil.SeedClub(t, e.db, name, coord.ID)
		_, err := e.clubs.AddMember(ctx, adminActor, c.ID, full.ID, "")
		require.NoError(t, err)
	}
	_, err := e.recruitment.Apply(ctx, fullActor, rec.ID, nil)
	assert.ErrorIs(t, err, ErrClubLimitReached)

	_, err = e.recruitment.Apply(ctx, freeActor, rec.ID, nil)
	require.NoError(t, err)
	_, err = e.recruitment.Apply(ctx, lateActor, rec.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition, "maxApplications reached")
}

func TestRecruitmentService_ScheduleAndSyncWindows(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, _ := e.user(t, "coord", model.RoleCoordinator)
	pres, presActor := e.user(t, "pres", "")
	stu, stuActor := e.user(t, "stu", "")
	club := e.clubWithPresident(t, "Film Club", coord, pres)
	now := time.Now().UTC()

	rec, err := e.recruitment.Create(ctx, presActor, RecruitmentInput{
		ClubID: club.ID, Title: "Winter intake", StartsAt: now.Add(time.Hour), EndsAt: now.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	_, err = e.recruitment.Create(ctx, stuActor, RecruitmentInput{
		ClubID: club.ID, Title: "x", StartsAt: now.Add(time.Hour), EndsAt: now.Add(3 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrForbidden)

	title := "Winter intake 2"
	rec, err = e.recruitment.Update(ctx, presActor, rec.ID, RecruitmentPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, rec.Title)

	rec, err = e.recruitment.Schedule(ctx, presActor, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecruitmentScheduled, rec.Status)
	_, err = e.recruitment.Apply(ctx, stuActor, rec.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualValues(t, 0, e.unread(t, stu.ID))

	require.NoError(t, e.recruitment.SyncWindows(ctx, now.Add(2*time.Hour)))
	stored, err := e.recruitment.repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecruitmentOpen, stored.Status)
	assert.EqualValues(t, 1, e.unread(t, stu.ID))

	require.NoError(t, e.recruitment.SyncWindows(ctx, now.Add(4*time.Hour)))
	stored, err = e.recruitment.repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecruitmentClosed, stored.Status)

	_, err = e.recruitment.Update(ctx, presActor, rec.ID, RecruitmentPatch{Title: &title})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	ended, err := e.recruitment.Create(ctx, presActor, RecruitmentInput{
		ClubID: club.ID, Title: "Past", StartsAt: now.Add(-3 * time.Hour), EndsAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = e.recruitment.Schedule(ctx, presActor, ended.ID)
	assert.ErrorIs(t, err, ErrValidation)

	list, err := e.recruitment.List(ctx, club.ID, model.RecruitmentDraft)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ended.ID, list[0].ID)
}

func TestRecruitmentService_UpdateFollowsDerivedStatus(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, _ := e.user(t, "coord", model.RoleCoordinator)
	pres, presActor := e.user(t, "pres", "")
	_, stuActor := e.user(t, "stu", "")
	club := e.clubWithPresident(t, "Quiz Club", coord, pres)
	now := time.Now().UTC()

	rec, err := e.recruitment.Create(ctx, presActor, RecruitmentInput{
		ClubID: club.ID, Title: "Spring intake", StartsAt: now.Add(time.Hour), EndsAt: now.Add(5 * time.Hour),
	})
	require.NoError(t, err)
	_, err = e.recruitment.Schedule(ctx, presActor, rec.ID)
	require.NoError(t, err)

	past := now.Add(-time.Minute)
	_, err = e.recruitment.Update(ctx, presActor, rec.ID, RecruitmentPatch{StartsAt: &past})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.recruitment.Apply(ctx, stuActor, rec.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	later := now.Add(2 * time.Hour)
	rec, err = e.recruitment.Update(ctx, presActor, rec.ID, RecruitmentPatch{StartsAt: &later})
	require.NoError(t, err)
	assert.WithinDuration(t, later, rec.StartsAt, time.Second)

	// 窗口已开始但调度器尚未同步，按推导状态视为 open
	e.recruitment.now = func() time.Time { return now.Add(3 * time.Hour) }
	stored, err := e.recruitment.repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, model.RecruitmentScheduled, stored.Status)

	_, err = e.recruitment.Apply(ctx, stuActor, rec.ID, nil)
	require.NoError(t, err)
	title := "Renamed"
	_, err = e.recruitment.Update(ctx, presActor, rec.ID, RecruitmentPatch{Title: &title})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	got, err := e.recruitment.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spring intake", got.Title)
}
