package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Clubs_Hub/internal/model"
)

func readCSV(t *testing.T, b []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestReportService_AdminDashboardIsCached(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	ev := f.create(t, 9000)
	f.step(t, f.president, ev.ID, model.ActionSubmit)
	f.step(t, f.coord, ev.ID, model.ActionCoordinatorApprove)

	_, err := f.env.reports.AdminDashboard(ctx, f.president)
	assert.ErrorIs(t, err, ErrForbidden)

	d, err := f.env.reports.AdminDashboard(ctx, f.admin)
	require.NoError(t, err)
	assert.EqualValues(t, 2, d.UsersByRole[string(model.RoleStudent)])
	assert.EqualValues(t, 2, d.UsersByRole[string(model.RoleAdmin)])
	assert.EqualValues(t, 1, d.ClubsByStatus[string(model.ClubActive)])
	assert.EqualValues(t, 1, d.PendingAdminEvents)

	f.env.user(t, "late", "")
	cached, err := f.env.reports.AdminDashboard(ctx, f.admin)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cached.UsersByRole[string(model.RoleStudent)])

	require.NoError(t, f.env.cache.Invalidate(ctx, adminDashboardKey))
	fresh, err := f.env.reports.AdminDashboard(ctx, f.admin)
	require.NoError(t, err)
	assert.EqualValues(t, 3, fresh.UsersByRole[string(model.RoleStudent)])
}

func TestReportService_CoordinatorAndClubDashboards(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	ev := f.create(t, 0)
	f.step(t, f.president, ev.ID, model.ActionSubmit)

	_, err := f.env.reports.CoordinatorDashboard(ctx, f.president)
	assert.ErrorIs(t, err, ErrForbidden)
	cd, err := f.env.reports.CoordinatorDashboard(ctx, f.coord)
	require.NoError(t, err)
	require.Len(t, cd.Clubs, 1)
	require.Len(t, cd.PendingEvents, 1)
	assert.Equal(t, ev.ID, cd.PendingEvents[0].ID)
	assert.Empty(t, cd.PendingSettings)

	rec := openRecruitment(t, f.env, f.club, f.president, 0)
	_, err = f.env.recruitment.Apply(ctx, f.outsider, rec.ID, nil)
	require.NoError(t, err)

	_, err = f.env.reports.ClubDashboard(ctx, f.outsider, f.club.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	d, err := f.env.reports.ClubDashboard(ctx, f.coord, f.club.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.MembersByRole[string(model.ClubRolePresident)])
	assert.EqualValues(t, 1, d.EventsByStatus[string(model.EventPendingCoordinator)])
	require.Len(t, d.OpenRecruitments, 1)
	assert.EqualValues(t, 1, d.PendingApplications)
}

func TestReportService_StudentDashboard(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	ev := f.create(t, 0)
	f.step(t, f.president, ev.ID, model.ActionSubmit)
	f.step(t, f.coord, ev.ID, model.ActionCoordinatorApprove)
	f.step(t, f.president, ev.ID, model.ActionPublish)
	require.NoError(t, f.env.events.RSVP(ctx, f.president, ev.ID))

	d, err := f.env.reports.StudentDashboard(ctx, f.president)
	require.NoError(t, err)
	require.Len(t, d.Clubs, 1)
	assert.Equal(t, f.club.ID, d.Clubs[0].ClubID)
	require.Len(t, d.UpcomingEvents, 1)
	assert.Equal(t, ev.ID, d.UpcomingEvents[0].ID)
	assert.Empty(t, d.Applications)
	assert.Positive(t, d.UnreadCount)
	assert.Zero(t, d.EventsAttended)
}

func TestReportService_Exports(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	ev := f.create(t, 250)
	f.step(t, f.president, ev.ID, model.ActionSubmit)
	f.step(t, f.coord, ev.ID, model.ActionCoordinatorApprove)
	f.step(t, f.president, ev.ID, model.ActionPublish)
	require.NoError(t, f.env.events.RSVP(ctx, f.outsider, ev.ID))

	_, err := f.env.reports.ExportClubMembers(ctx, f.outsider, f.club.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	b, err := f.env.reports.ExportClubMembers(ctx, f.coord, f.club.ID)
	require.NoError(t, err)
	rows := readCSV(t, b)
	require.Len(t, rows, 2)
	assert.Equal(t, "username", rows[0][1])
	assert.Equal(t, "pres", rows[1][1])
	assert.Equal(t, string(model.ClubRolePresident), rows[1][7])

	_, err = f.env.reports.ExportEvents(ctx, f.president, EventFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
	b, err = f.env.reports.ExportEvents(ctx, f.coord, EventFilter{})
	require.NoError(t, err)
	rows = readCSV(t, b)
	require.Len(t, rows, 2)
	assert.Equal(t, "Hackathon", rows[1][2])
	assert.Equal(t, "250.00", rows[1][6])

	_, other := f.env.user(t, "coord2", model.RoleCoordinator)
	_, err = f.env.reports.ExportEvents(ctx, other, EventFilter{ClubID: f.club.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	b, err = f.env.reports.ExportEvents(ctx, other, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, readCSV(t, b), 1)

	b, err = f.env.reports.ExportEventAttendance(ctx, f.president, ev.ID)
	require.NoError(t, err)
	rows = readCSV(t, b)
	require.Len(t, rows, 2)
	assert.Equal(t, "outsider", rows[1][1])
	assert.Equal(t, "false", rows[1][5])
}

func TestReportService_ExportEscapesFormulaCells(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	_, err := f.env.events.CreateEvent(ctx, f.president, EventInput{
		ClubID: f.club.ID, Title: "=HYPERLINK(\"http://evil\")", Venue: "@lab", StartsAt: f.starts, EndsAt: f.ends,
	})
	require.NoError(t, err)

	b, err := f.env.reports.ExportEvents(ctx, f.admin, EventFilter{})
	require.NoError(t, err)
	rows := readCSV(t, b)
	require.Len(t, rows, 2)
	assert.Equal(t, "'=HYPERLINK(\"http://evil\")", rows[1][2])
	assert.Equal(t, "'@lab", rows[1][3])
	assert.Equal(t, "0.00", rows[1][6])
}

func TestReportService_ExportPagesWithoutDuplicates(t *testing.T) {
	f := newEventFixture(t)
	ctx := context.Background()
	events := make([]model.Event, 0, 130)
	for i := 0; i < 130; i++ {
		events = append(events, model.Event{
			ClubID: f.club.ID, Title: fmt.Sprintf("Session %d", i), StartsAt: f.starts, EndsAt: f.ends,
			Status: model.EventDraft, CreatedBy: f.president.UserID, IsPublic: true,
		})
	}
	require.NoError(t, f.env.db.CreateInBatches(&events, 50).Error)

	b, err := f.env.reports.ExportEvents(ctx, f.admin, EventFilter{})
	require.NoError(t, err)
	rows := readCSV(t, b)
	require.Len(t, rows, 131)
	seen := map[string]bool{}
	for _, r := range rows[1:] {
		assert.False(t, seen[r[0]], "event %s exported twice", r[0])
		seen[r[0]] = true
	}
}
