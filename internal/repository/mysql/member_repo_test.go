package mysql_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/testutil"
)

func TestClubMemberRepository_JoinIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	coord := testutil.SeedUser(t, db, "coord", model.RoleCoordinator)
	stu := testutil.SeedUser(t, db, "stu", "")
	club := testutil.SeedClub(t, db, "Code", coord.ID)
	repo := &mysql.ClubMemberRepository{DB: db}

	require.NoError(t, repo.Join(ctx, &model.ClubMember{ClubID: club.ID, UserID: stu.ID}, 3))
	require.NoError(t, repo.Join(ctx, &model.ClubMember{ClubID: club.ID, UserID: stu.ID}, 3))

	n, err := repo.CountClubsOfUser(ctx, stu.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	m, err := repo.Find(ctx, club.ID, stu.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClubRoleMember, m.Role)
}

func TestClubMemberRepository_JoinEnforcesLimit(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	coord := testutil.SeedUser(t, db, "coord", model.RoleCoordinator)
	stu := testutil.SeedUser(t, db, "stu", "")
	repo := &mysql.ClubMemberRepository{DB: db}

	for _, name := range []string{"A", "B", "C"} {
		c := testutil.SeedClub(t, db, name, coord.ID)
		require.NoError(t, repo.Join(ctx, &model.ClubMember{ClubID: c.ID, UserID: stu.ID}, 3))
	}
	fourth := testutil.SeedClub(t, db, "D", coord.ID)
	err := repo.Join(ctx, &model.ClubMember{ClubID: fourth.ID, UserID: stu.ID}, 3)
	assert.ErrorIs(t, err, mysql.ErrClubLimit)
}

func TestClubMemberRepository_RemoveThenRejoin(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	coord := testutil.SeedUser(t, db, "coord", model.RoleCoordinator)
	stu := testutil.SeedUser(t, db, "stu", "")
	club := testutil.SeedClub(t, db, "Code", coord.ID)
	repo := &mysql.ClubMemberRepository{DB: db}

	require.NoError(t, repo.Join(ctx, &model.ClubMember{ClubID: club.ID, UserID: stu.ID, Role: model.ClubRoleCore}, 0))
	ok, err := repo.Remove(ctx, club.ID, stu.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	member, err := repo.IsMember(ctx, club.ID, stu.ID)
	require.NoError(t, err)
	assert.False(t, member)

	require.NoError(t, repo.Join(ctx, &model.ClubMember{ClubID: club.ID, UserID: stu.ID}, 0))
	m, err := repo.Find(ctx, club.ID, stu.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClubRoleMember, m.Role)
}

func TestClubRepository_CreateWithPresident(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	coord := testutil.SeedUser(t, db, "coord", model.RoleCoordinator)
	pres := testutil.SeedUser(t, db, "pres", "")
	clubs := &mysql.ClubRepository{DB: db}
	members := &mysql.ClubMemberRepository{DB: db}

	club := &model.Club{Name: "Robotics", Category: model.CategoryTechnical, CoordinatorID: coord.ID, Status: model.ClubActive}
	require.NoError(t, clubs.Create(ctx, club, &model.ClubMember{UserID: pres.ID, Role: model.ClubRolePresident}, 3))

	ids, err := members.UserIDs(ctx, club.ID, model.ClubRolePresident)
	require.NoError(t, err)
	assert.Equal(t, []uint64{pres.ID}, ids)

	err = clubs.Create(ctx, &model.Club{Name: "Robotics", Category: model.CategoryArts, CoordinatorID: coord.ID}, nil, 3)
	assert.True(t, mysql.IsDuplicate(err))
}

func TestClubRepository_PendingSettings(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	coord := testutil.SeedUser(t, db, "coord", model.RoleCoordinator)
	club := testutil.SeedClub(t, db, "Code", coord.ID)
	clubs := &mysql.ClubRepository{DB: db}

	p := &model.PendingSettings{}
	p.Merge(map[string]string{model.FieldName: "Code Club"}, 9, club.CreatedAt)
	require.NoError(t, clubs.SetPending(ctx, club.ID, p))

	pending, err := clubs.WithPending(ctx, coord.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Code Club", pending[0].PendingSettings.Fields[model.FieldName])

	ok, err := clubs.ApplyPending(ctx, club.ID, map[string]any{"name": "Code Club"})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := clubs.FindByID(ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, "Code Club", got.Name)
	assert.Nil(t, got.PendingSettings)

	ok, err = clubs.ClearPending(ctx, club.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
