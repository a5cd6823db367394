package mysql_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/testutil"
)

func TestNotificationRepository_FanOutAndRead(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, db, "stu", "")
	repo := &mysql.NotificationRepository{DB: db}
	outbox := &mysql.OutboxRepository{DB: db}

	notes := []model.Notification{
		{UserID: u.ID, Type: model.NotifySystem, Title: "one", Priority: model.PriorityNormal},
		{UserID: u.ID, Type: model.NotifySystem, Title: "two", Priority: model.PriorityHigh},
	}
	rows := []model.Outbox{{Channel: model.ChannelEmail, UserID: u.ID, Payload: `{}`}}
	require.NoError(t, repo.FanOut(ctx, notes, rows))

	n, err := repo.UnreadCount(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, total, err := repo.List(ctx, u.ID, false, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "two", list[0].Title)

	ok, err := repo.MarkRead(ctx, u.ID, list[0].ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkRead(ctx, u.ID+1, list[1].ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	changed, err := repo.MarkAllRead(ctx, u.ID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	pending, err := outbox.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestNotificationRepository_Preferences(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, db, "stu", "")
	repo := &mysql.NotificationRepository{DB: db}

	none, err := repo.Preference(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	p, err := repo.EnsurePreference(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, p.UnsubscribeToken)

	again, err := repo.EnsurePreference(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, p.UnsubscribeToken, again.UnsubscribeToken)

	p.EmailDisabledTypes = model.StringList{string(model.NotifyRecruitmentOpen)}
	require.NoError(t, repo.SavePreference(ctx, p))

	byToken, err := repo.PreferenceByToken(ctx, p.UnsubscribeToken)
	require.NoError(t, err)
	assert.False(t, byToken.EmailAllowed(model.NotifyRecruitmentOpen))
	assert.True(t, byToken.EmailAllowed(model.NotifySystem))
}

func TestOutboxRepository_MarkRetryFailsAfterMax(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	repo := &mysql.OutboxRepository{DB: db}
	row := model.Outbox{Channel: model.ChannelPush, UserID: 1, Payload: `{}`, Retry: 1}
	require.NoError(t, db.Create(&row).Error)

	require.NoError(t, repo.MarkRetry(ctx, row, 2))

	n, err := repo.CountByStatus(ctx, model.OutboxFailed)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
