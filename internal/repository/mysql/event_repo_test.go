package mysql_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/testutil"
)

func seedEvent(t *testing.T, db *gorm.DB, clubID, creator uint64, status model.EventStatus, starts time.Time) *model.Event {
	t.Helper()
	e := &model.Event{
		ClubID:    clubID,
		Title:     "Hackathon",
		StartsAt:  starts.UTC(),
		EndsAt:    starts.Add(3 * time.Hour).UTC(),
		Status:    status,
		CreatedBy: creator,
		IsPublic:  true,
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func TestEventRepository_TransitionIsConditional(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	coord := testutil.SeedUser(t, db, "coord", model.RoleCoordinator)
	club := testutil.SeedClub(t, db, "Code", coord.ID)
	e := seedEvent(t, db, club.ID, coord.ID, model.EventDraft, time.Now().Add(48*time.Hour))
	repo := &mysql.EventRepository{DB: db}

	ok, err := repo.Transition(ctx, e.ID, model.EventDraft, model.EventPendingCoordinator, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(ctx, e.ID, model.EventDraft, model.EventPendingCoordinator, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventPendingCoordinator, got.Status)
}

func TestEventRepository_DueQueries(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	coord := testutil.SeedUser(t, db, "coord", model.RoleCoordinator)
	club := testutil.SeedClub(t, db, "Code", coord.ID)
	started := seedEvent(t, db, club.ID, coord.ID, model.EventPublished, now.Add(-time.Minute))
	seedEvent(t, db, club.ID, coord.ID, model.EventPublished, now.Add(time.Hour))
	stale := seedEvent(t, db, club.ID, coord.ID, model.EventOngoing, now.Add(-10*24*time.Hour))
	repo := &mysql.EventRepository{DB: db}

	due, err := repo.DueToStart(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, started.ID, due[0].ID)

	overdue, err := repo.DueForCompletionCheck(ctx, now.Add(-7*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, stale.ID, overdue[0].ID)
}

func TestEventRepository_RSVPAndAttendance(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	coord := testutil.SeedUser(t, db, "coord", model.RoleCoordinator)
	a := testutil.SeedUser(t, db, "a", "")
	b := testutil.SeedUser(t, db, "b", "")
	club := testutil.SeedClub(t, db, "Code", coord.ID)
	e := seedEvent(t, db, club.ID, coord.ID, model.EventPublished, time.Now().Add(time.Hour))
	repo := &mysql.EventRepository{DB: db}

	require.NoError(t, repo.RSVP(ctx, e.ID, a.ID))
	require.NoError(t, repo.RSVP(ctx, e.ID, a.ID))
	require.NoError(t, repo.MarkAttendance(ctx, e.ID, []uint64{a.ID, b.ID}, true))

	c, err := repo.Counts(ctx, e.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.RSVPs)
	assert.EqualValues(t, 2, c.Attended)

	n, err := repo.AttendedCountByUser(ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
