package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestClubService_CreateClubValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, admin := e.user(t, "admin", model.RoleAdmin)
	coord, coordActor := e.user(t, "coord", model.RoleCoordinator)
	stu, _ := e.user(t, "stu", "")

	_, err := e.clubs.CreateClub(ctx, coordActor, CreateClubInput{Name: "X", Category: model.CategoryArts, CoordinatorID: coord.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = e.clubs.CreateClub(ctx, admin, CreateClubInput{Name: "X", Category: "gaming", CoordinatorID: coord.ID})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.clubs.CreateClub(ctx, admin, CreateClubInput{Name: "X", Category: model.CategoryArts, CoordinatorID: stu.ID})
	assert.ErrorIs(t, err, ErrValidation)

	club, err := e.clubs.CreateClub(ctx, admin, CreateClubInput{Name: "Art Society", Category: model.CategoryArts, CoordinatorID: coord.ID, PresidentID: stu.ID})
	require.NoError(t, err)
	_, err = e.clubs.CreateClub(ctx, admin, CreateClubInput{Name: "Art Society", Category: model.CategoryArts, CoordinatorID: coord.ID})
	assert.ErrorIs(t, err, ErrConflict)

	members, err := e.clubs.ListMembers(ctx, club.ID, model.ClubRolePresident)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, stu.ID, members[0].UserID)
	assert.EqualValues(t, 1, e.unread(t, stu.ID))
}

func TestClubService_SettingsApprovalFlow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, coordActor := e.user(t, "coord", model.RoleCoordinator)
	pres, presActor := e.user(t, "pres", "")
	_, stuActor := e.user(t, "stu", "")
	club := e.clubWithPresident(t, "Coding Club", coord, pres)

	updated, pending, err := e.clubs.UpdateSettings(ctx, presActor, club.ID, SettingsPatch{
		Name:        strPtr("Code Club"),
		Description: strPtr("<b>Build</b> things<script>alert(1)</script>"),
	})
	require.NoError(t, err)
	assert.True(t, pending)
	assert.Equal(t, "Coding Club", updated.Name, "protected field waits for approval")
	assert.NotContains(t, updated.Description, "<script>")
	require.NotNil(t, updated.PendingSettings)
	assert.Equal(t, "Code Club", updated.PendingSettings.Fields[model.FieldName])
	assert.Equal(t, pres.ID, updated.PendingSettings.RequestedBy)
	assert.EqualValues(t, 1, e.unread(t, coord.ID))

	// 后提交的字段合并进同一个待审批请求
	_, _, err = e.clubs.UpdateSettings(ctx, presActor, club.ID, SettingsPatch{LogoURL: strPtr("https://cdn/logo.png")})
	require.NoError(t, err)

	_, _, err = e.clubs.UpdateSettings(ctx, stuActor, club.ID, SettingsPatch{Vision: strPtr("x")})
	assert.ErrorIs(t, err, ErrForbidden)

	list, err := e.clubs.PendingSettings(ctx, coordActor)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].PendingSettings.Fields, 2)

	_, err = e.clubs.ApproveSettings(ctx, presActor, club.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	approved, err := e.clubs.ApproveSettings(ctx, coordActor, club.ID)
	require.NoError(t, err)
	assert.Equal(t, "Code Club", approved.Name)
	assert.Equal(t, "https://cdn/logo.png", approved.LogoURL)
	assert.Nil(t, approved.PendingSettings)

	_, err = e.clubs.ApproveSettings(ctx, coordActor, club.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestClubService_RejectSettingsAndAdminEdits(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, coordActor := e.user(t, "coord", model.RoleCoordinator)
	pres, presActor := e.user(t, "pres", "")
	_, adminActor := e.user(t, "root", model.RoleAdmin)
	club := e.clubWithPresident(t, "Music Club", coord, pres)
	testutil.SeedClub(t, e.db, "Dance Club", coord.ID)

	_, _, err := e.clubs.UpdateSettings(ctx, presActor, club.ID, SettingsPatch{Name: strPtr("Dance Club")})
	assert.ErrorIs(t, err, ErrConflict)

	cat := model.CategoryCultural
	_, pending, err := e.clubs.UpdateSettings(ctx, presActor, club.ID, SettingsPatch{Category: &cat})
	require.NoError(t, err)
	require.True(t, pending)

	assert.ErrorIs(t, e.clubs.RejectSettings(ctx, coordActor, club.ID, "  "), ErrValidation)
	require.NoError(t, e.clubs.RejectSettings(ctx, coordActor, club.ID, "keep technical"))
	got, err := e.clubs.GetClub(ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryTechnical, got.Category)
	assert.Nil(t, got.PendingSettings)
	assert.ErrorIs(t, e.clubs.RejectSettings(ctx, coordActor, club.ID, "again"), ErrInvalidTransition)

	updated, pending, err := e.clubs.UpdateSettings(ctx, adminActor, club.ID, SettingsPatch{Category: &cat})
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, model.CategoryCultural, updated.Category)

	require.NoError(t, e.clubs.ArchiveClub(ctx, adminActor, club.ID))
	assert.ErrorIs(t, e.clubs.ArchiveClub(ctx, adminActor, club.ID), ErrInvalidTransition)
	_, _, err = e.clubs.UpdateSettings(ctx, presActor, club.ID, SettingsPatch{Vision: strPtr("v")})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, e.clubs.RestoreClub(ctx, adminActor, club.ID))
}

func TestClubService_MembershipRules(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, _ := e.user(t, "coord", model.RoleCoordinator)
	pres, presActor := e.user(t, "pres", "")
	vp, _ := e.user(t, "vp", "")
	stu, stuActor := e.user(t, "stu", "")
	_, adminActor := e.user(t, "root", model.RoleAdmin)
	club := e.clubWithPresident(t, "Robotics", coord, pres)

	_, err := e.clubs.AddMember(ctx, presActor, club.ID, stu.ID, model.ClubRolePresident)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = e.clubs.AddMember(ctx, presActor, club.ID, vp.ID, model.ClubRoleVicePresident)
	require.NoError(t, err)
	_, err = e.clubs.AddMember(ctx, presActor, club.ID, stu.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, e.clubs.UpdateMemberRole(ctx, presActor, club.ID, pres.ID, model.ClubRoleMember), ErrForbidden)
	assert.ErrorIs(t, e.clubs.UpdateMemberRole(ctx, stuActor, club.ID, vp.ID, model.ClubRoleMember), ErrForbidden)
	require.NoError(t, e.clubs.UpdateMemberRole(ctx, presActor, club.ID, stu.ID, model.ClubRoleTreasurer))

	assert.ErrorIs(t, e.clubs.LeaveClub(ctx, pres.ID, club.ID), ErrInvalidTransition)
	assert.ErrorIs(t, e.clubs.RemoveMember(ctx, presActor, club.ID, pres.ID), ErrForbidden)
	require.NoError(t, e.clubs.RemoveMember(ctx, presActor, club.ID, stu.ID))
	assert.ErrorIs(t, e.clubs.RemoveMember(ctx, presActor, club.ID, stu.ID), ErrNotFound)

	_, err = e.clubs.AddMember(ctx, adminActor, club.ID, vp.ID, model.ClubRolePresident)
	require.NoError(t, err, "existing members are kept as-is")
	require.NoError(t, e.clubs.UpdateMemberRole(ctx, adminActor, club.ID, vp.ID, model.ClubRolePresident))
	require.NoError(t, e.clubs.LeaveClub(ctx, pres.ID, club.ID))

	mine, err := e.clubs.MyClubs(ctx, pres.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestClubService_StudentClubLimit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, _ := e.user(t, "coord", model.RoleCoordinator)
	_, adminActor := e.user(t, "root", model.RoleAdmin)
	stu, _ := e.user(t, "stu", "")
	other, _ := e.user(t, "coord2", model.RoleCoordinator)

	var clubs []*model.Club
	for _, name := range []string{"A", "B", "C", "D"} {
		clubs = append(clubs, testutil.SeedClub(t, e.db, name, coord.ID))
	}
	for _, c := range clubs[:3] {
		_, err := e.clubs.AddMember(ctx, adminActor, c.ID, stu.ID, "")
		require.NoError(t, err)
	}
	_, err := e.clubs.AddMember(ctx, adminActor, clubs[3].ID, stu.ID, "")
	assert.ErrorIs(t, err, ErrClubLimitReached)

	// 非学生不受限制
	for _, c := range clubs {
		_, err := e.clubs.AddMember(ctx, adminActor, c.ID, other.ID, model.ClubRoleCore)
		require.NoError(t, err)
	}
}

func TestClubService_Gallery(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, _ := e.user(t, "coord", model.RoleCoordinator)
	pres, presActor := e.user(t, "pres", "")
	_, stuActor := e.user(t, "stu", "")
	club := e.clubWithPresident(t, "Photo", coord, pres)

	_, err := e.clubs.AddGalleryItem(ctx, stuActor, club.ID, GalleryInput{URL: "https://cdn/a.jpg"})
	assert.ErrorIs(t, err, ErrForbidden)
	item, err := e.clubs.AddGalleryItem(ctx, presActor, club.ID, GalleryInput{URL: "https://cdn/a.jpg", Caption: " launch "})
	require.NoError(t, err)
	assert.Equal(t, "launch", item.Caption)

	items, err := e.clubs.ListGallery(ctx, club.ID, Page{})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, e.clubs.DeleteGalleryItem(ctx, presActor, club.ID, item.ID))
	assert.ErrorIs(t, e.clubs.DeleteGalleryItem(ctx, presActor, club.ID, item.ID), ErrNotFound)
}

func TestClubService_ConcurrentJoinsRespectLimit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, _ := e.user(t, "coord", model.RoleCoordinator)
	_, adminActor := e.user(t, "root", model.RoleAdmin)
	stu, _ := e.user(t, "stu", "")

	var clubs []*model.Club
	for i := 0; i < 6; i++ {
		clubs = append(clubs, testutil.SeedClub(t, e.db, fmt.Sprintf("Club %d", i), coord.ID))
	}
	errs := make([]error, len(clubs))
	var wg sync.WaitGroup
	for i, c := range clubs {
		wg.Add(1)
		go func(i int, clubID uint64) {
			defer wg.Done()
			_, errs[i] = e.clubs.AddMember(ctx, adminActor, clubID, stu.ID, "")
		}(i, c.ID)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
			continue
		}
		assert.ErrorIs(t, err, ErrClubLimitReached)
	}
	assert.Equal(t, 3, joined)

	var n int64
	require.NoError(t, e.db.Model(&model.ClubMember{}).
		Where("user_id = ? AND status = ?", stu.ID, model.MemberApproved).Count(&n).Error)
	assert.EqualValues(t, 3, n)
}

func TestClubService_ChangeCoordinatorIsAdminOnly(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, coordActor := e.user(t, "coord", model.RoleCoordinator)
	next, _ := e.user(t, "coord2", model.RoleCoordinator)
	pres, presActor := e.user(t, "pres", "")
	_, adminActor := e.user(t, "root", model.RoleAdmin)
	club := e.clubWithPresident(t, "Robotics", coord, pres)

	_, err := e.clubs.ChangeCoordinator(ctx, coordActor, club.ID, next.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = e.clubs.ChangeCoordinator(ctx, presActor, club.ID, next.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = e.clubs.ChangeCoordinator(ctx, adminActor, club.ID, pres.ID)
	assert.ErrorIs(t, err, ErrValidation, "target must be a coordinator")
	_, err = e.clubs.ChangeCoordinator(ctx, adminActor, 9999, next.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := e.clubs.ChangeCoordinator(ctx, adminActor, club.ID, next.ID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, updated.CoordinatorID)
	got, err := e.clubs.GetClub(ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, got.CoordinatorID)
	assert.EqualValues(t, 1, e.unread(t, next.ID))

	logs, err := e.audit.List(ctx, adminActor, AuditFilter{Action: AuditClubCoordinator}, Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, logs.Total)
}

func TestClubService_ApproveIgnoresUnprotectedPendingKeys(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	coord, coordActor := e.user(t, "coord", model.RoleCoordinator)
	pres, _ := e.user(t, "pres", "")
	club := e.clubWithPresident(t, "Drama", coord, pres)

	repo := &mysql.ClubRepository{DB: e.db}
	require.NoError(t, repo.SetPending(ctx, club.ID, &model.PendingSettings{
		Fields:      map[string]string{model.FieldCategory: string(model.CategoryCultural), "status": string(model.ClubArchived)},
		RequestedBy: pres.ID,
		RequestedAt: time.Now().UTC(),
	}))

	approved, err := e.clubs.ApproveSettings(ctx, coordActor, club.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryCultural, approved.Category)
	assert.Equal(t, model.ClubActive, approved.Status)

	got, err := e.clubs.GetClub(ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClubActive, got.Status)
	assert.Equal(t, model.CategoryCultural, got.Category)
	assert.Nil(t, got.PendingSettings)
}
