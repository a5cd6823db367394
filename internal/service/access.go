package service

import (
	"context"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/repository/mysql"
)

// clubAccess 社团范围内的权限判断，供社团/活动/招新/报表服务共用
type clubAccess struct {
	clubs   *mysql.ClubRepository
	members *mysql.ClubMemberRepository
}

func (a clubAccess) club(ctx context.Context, id uint64) (*model.Club, error) {
	c, err := a.clubs.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "find club")
	}
	return c, nil
}

// role 返回用户在社团中的角色，非成员为空
func (a clubAccess) role(ctx context.Context, clubID, userID uint64) (model.ClubRole, error) {
	m, err := a.members.Find(ctx, clubID, userID)
	if mysql.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", storeErr(err, "find membership")
	}
	return m.Role, nil
}

func isCoordinatorOf(actor Actor, club *model.Club) bool {
	return actor.IsCoordinator() && club.CoordinatorID == actor.UserID
}

// requireLeader 管理员或社长/副社长
func (a clubAccess) requireLeader(ctx context.Context, actor Actor, club *model.Club) error {
	if actor.IsAdmin() {
		return nil
	}
	role, err := a.role(ctx, club.ID, actor.UserID)
	if err != nil {
		return err
	}
	if !role.IsLeadership() {
		return ErrForbidden
	}
	return nil
}

// requireCore 管理员或任一核心角色
func (a clubAccess) requireCore(ctx context.Context, actor Actor, club *model.Club) error {
	if actor.IsAdmin() {
		return nil
	}
	role, err := a.role(ctx, club.ID, actor.UserID)
	if err != nil {
		return err
	}
	if !role.IsCore() {
		return ErrForbidden
	}
	return nil
}

// requireOversight 管理员、社团协调员或社长/副社长可以查看社团内部数据
func (a clubAccess) requireOversight(ctx context.Context, actor Actor, club *model.Club) error {
	if isCoordinatorOf(actor, club) {
		return nil
	}
	return a.requireLeader(ctx, actor, club)
}
