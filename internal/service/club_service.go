package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/mysql"
)

type CreateClubInput struct {
	Name          string
	Category      model.ClubCategory
	Description   string
	Vision        string
	Mission       string
	LogoURL       string
	BannerURL     string
	SocialLinks   map[string]string
	CoordinatorID uint64
	PresidentID   uint64
}

// SettingsPatch nil 字段表示不修改
type SettingsPatch struct {
	Name        *string
	Category    *model.ClubCategory
	LogoURL     *string
	Description *string
	Vision      *string
	Mission     *string
	BannerURL   *string
	SocialLinks map[string]string
}

type ClubFilter struct {
	Category model.ClubCategory
	Status   model.ClubStatus
	Search   string
}

type GalleryInput struct {
	URL     string
	Caption string
	EventID *uint64
}

type ClubService struct {
	clubAccess
	users    *mysql.UserRepository
	notify   *NotificationService
	audit    *AuditService
	maxClubs int
	now      func() time.Time
}

func NewClubService(clubs *mysql.ClubRepository, members *mysql.ClubMemberRepository, users *mysql.UserRepository,
	notify *NotificationService, audit *AuditService, maxClubs int) *ClubService {
	return &ClubService{
		clubAccess: clubAccess{clubs: clubs, members: members},
		users:      users,
		notify:     notify,
		audit:      audit,
		maxClubs:   maxClubs,
		now:        time.Now,
	}
}

// limitFor 只有学生受社团数量限制
func (s *ClubService) limitFor(u *model.User) int {
	if u.GlobalRole == model.RoleStudent {
		return s.maxClubs
	}
	return 0
}

func (s *ClubService) activeUser(ctx context.Context, id uint64) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "find user")
	}
	if u.Status != model.UserActive {
		return nil, invalid("user %d is suspended", id)
	}
	return u, nil
}

func (s *ClubService) CreateClub(ctx context.Context, actor Actor, in CreateClubInput) (*model.Club, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, invalid("name is required")
	}
	if !in.Category.Valid() {
		return nil, invalid("unknown category %q", in.Category)
	}
	coord, err := s.activeUser(ctx, in.CoordinatorID)
	if err != nil {
		return nil, err
	}
	if coord.GlobalRole != model.RoleCoordinator {
		return nil, invalid("user %d is not a coordinator", coord.ID)
	}

	club := &model.Club{
		Name:          in.Name,
		Category:      in.Category,
		Description:   pkg.SanitizeRichText(in.Description),
		Vision:        pkg.SanitizeRichText(in.Vision),
		Mission:       pkg.SanitizeRichText(in.Mission),
		LogoURL:       in.LogoURL,
		BannerURL:     in.BannerURL,
		SocialLinks:   model.JSONMap(in.SocialLinks),
		CoordinatorID: coord.ID,
		Status:        model.ClubActive,
	}
	var president *model.ClubMember
	limit := 0
	if in.PresidentID != 0 {
		pu, err := s.activeUser(ctx, in.PresidentID)
		if err != nil {
			return nil, err
		}
		president = &model.ClubMember{UserID: pu.ID, Role: model.ClubRolePresident}
		limit = s.limitFor(pu)
	}
	if err := s.clubs.Create(ctx, club, president, limit); err != nil {
		return nil, storeErr(err, "create club")
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: AuditClubCreated, TargetType: "club", TargetID: club.ID,
		Details: map[string]string{"name": club.Name}})
	if president != nil {
		s.notify.Emit(ctx, []uint64{president.UserID}, Notice{
			Type:     model.NotifyRoleChanged,
			Title:    "You are now president of " + club.Name,
			Link:     clubLink(club.ID),
			Priority: model.PriorityHigh,
		})
	}
	return club, nil
}

func (s *ClubService) GetClub(ctx context.Context, id uint64) (*model.Club, error) {
	return s.club(ctx, id)
}

// ListClubs 非管理员默认只看活跃社团
func (s *ClubService) ListClubs(ctx context.Context, actor Actor, f ClubFilter, p Page) (PageResult[model.Club], error) {
	if f.Status == "" && !actor.IsAdmin() {
		f.Status = model.ClubActive
	}
	list, total, err := s.clubs.List(ctx, mysql.ClubFilter{Category: f.Category, Status: f.Status, Search: f.Search}, p.Offset(), p.Limit())
	if err != nil {
		return PageResult[model.Club]{}, storeErr(err, "list clubs")
	}
	return newPage(list, total, p), nil
}

// UpdateSettings 普通字段立即生效；社长修改受保护字段进入待审批，管理员直接生效。返回是否产生了待审批
func (s *ClubService) UpdateSettings(ctx context.Context, actor Actor, clubID uint64, patch SettingsPatch) (*model.Club, bool, error) {
	club, err := s.club(ctx, clubID)
	if err != nil {
		return nil, false, err
	}
	if club.Status != model.ClubActive {
		return nil, false, fmt.Errorf("club is archived: %w", ErrInvalidTransition)
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return nil, false, err
	}

	protected, err := s.protectedChanges(ctx, club, patch)
	if err != nil {
		return nil, false, err
	}
	fields := map[string]any{}
	if patch.Description != nil {
		fields["description"] = pkg.SanitizeRichText(*patch.Description)
	}
	if patch.Vision != nil {
		fields["vision"] = pkg.SanitizeRichText(*patch.Vision)
	}
	if patch.Mission != nil {
		fields["mission"] = pkg.SanitizeRichText(*patch.Mission)
	}
	if patch.BannerURL != nil {
		fields["banner_url"] = *patch.BannerURL
	}
	if patch.SocialLinks != nil {
		fields["social_links"] = model.JSONMap(patch.SocialLinks)
	}

	pending := false
	if actor.IsAdmin() {
		for k, v := range protectedColumns(protected) {
			fields[k] = v
		}
	} else if len(protected) > 0 {
		p := club.PendingSettings
		if p == nil {
			p = &model.PendingSettings{}
		}
		p.Merge(protected, actor.UserID, s.now().UTC())
		if err := s.clubs.SetPending(ctx, club.ID, p); err != nil {
			return nil, false, storeErr(err, "save pending settings")
		}
		pending = true
	}
	if err := s.clubs.Update(ctx, club.ID, fields); err != nil {
		return nil, false, storeErr(err, "update club")
	}

	if pending {
		s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: AuditSettingsRequested, TargetType: "club", TargetID: club.ID,
			Details: protected})
		s.notify.Emit(ctx, []uint64{club.CoordinatorID}, Notice{
			Type:     model.NotifySettingsPending,
			Title:    "Settings change awaiting approval",
			Message:  fmt.Sprintf("%s requested changes to %s.", club.Name, joinKeys(protected)),
			Link:     clubLink(club.ID),
			Priority: model.PriorityHigh,
		})
	}
	updated, err := s.club(ctx, club.ID)
	return updated, pending, err
}

// protectedChanges 过滤掉与当前值相同的受保护字段，并检查重名
func (s *ClubService) protectedChanges(ctx context.Context, club *model.Club, patch SettingsPatch) (map[string]string, error) {
	out := map[string]string{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, invalid("name cannot be empty")
		}
		if name != club.Name {
			if err := s.ensureNameFree(ctx, name, club.ID); err != nil {
				return nil, err
			}
			out[model.FieldName] = name
		}
	}
	if patch.Category != nil && *patch.Category != club.Category {
		if !patch.Category.Valid() {
			return nil, invalid("unknown category %q", *patch.Category)
		}
		out[model.FieldCategory] = string(*patch.Category)
	}
	if patch.LogoURL != nil && *patch.LogoURL != club.LogoURL {
		out[model.FieldLogoURL] = *patch.LogoURL
	}
	return out, nil
}

func (s *ClubService) ensureNameFree(ctx context.Context, name string, clubID uint64) error {
	taken, err := s.clubs.NameTaken(ctx, name, clubID)
	if err != nil {
		return storeErr(err, "check club name")
	}
	if taken {
		return fmt.Errorf("club name %q already exists: %w", name, ErrConflict)
	}
	return nil
}

func (s *ClubService) requireApprover(actor Actor, club *model.Club) error {
	if actor.IsAdmin() || isCoordinatorOf(actor, club) {
		return nil
	}
	return ErrForbidden
}

// ApproveSettings 协调员或管理员通过待审批设置
func (s *ClubService) ApproveSettings(ctx context.Context, actor Actor, clubID uint64) (*model.Club, error) {
	club, err := s.club(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if err := s.requireApprover(actor, club); err != nil {
		return nil, err
	}
	if club.PendingSettings == nil || len(club.PendingSettings.Fields) == 0 {
		return nil, fmt.Errorf("no pending settings: %w", ErrInvalidTransition)
	}
	pending := club.PendingSettings
	if name, ok := pending.Fields[model.FieldName]; ok {
		if err := s.ensureNameFree(ctx, name, club.ID); err != nil {
			return nil, err
		}
	}
	ok, err := s.clubs.ApplyPending(ctx, club.ID, protectedColumns(pending.Fields))
	if err != nil {
		return nil, storeErr(err, "apply settings")
	}
	if !ok {
		return nil, fmt.Errorf("settings already decided: %w", ErrInvalidTransition)
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: AuditSettingsApproved, TargetType: "club", TargetID: club.ID,
		Details: pending.Fields})
	s.notify.Emit(ctx, []uint64{pending.RequestedBy}, Notice{
		Type:     model.NotifySettingsDecided,
		Title:    "Club settings approved",
		Message:  fmt.Sprintf("Your changes to %s were approved.", joinKeys(pending.Fields)),
		Link:     clubLink(club.ID),
		Priority: model.PriorityNormal,
	})
	club.Apply(pending.Fields)
	club.PendingSettings = nil
	return club, nil
}

func (s *ClubService) RejectSettings(ctx context.Context, actor Actor, clubID uint64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return invalid("reason is required")
	}
	club, err := s.club(ctx, clubID)
	if err != nil {
		return err
	}
	if err := s.requireApprover(actor, club); err != nil {
		return err
	}
	if club.PendingSettings == nil {
		return fmt.Errorf("no pending settings: %w", ErrInvalidTransition)
	}
	ok, err := s.clubs.ClearPending(ctx, club.ID)
	if err != nil {
		return storeErr(err, "clear settings")
	}
	if !ok {
		return fmt.Errorf("settings already decided: %w", ErrInvalidTransition)
	}

	s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: AuditSettingsRejected, TargetType: "club", TargetID: club.ID,
		Severity: model.SeverityWarning, Details: map[string]string{"reason": reason}})
	s.notify.Emit(ctx, []uint64{club.PendingSettings.RequestedBy}, Notice{
		Type:     model.NotifySettingsDecided,
		Title:    "Club settings rejected",
		Message:  reason,
		Link:     clubLink(club.ID),
		Priority: model.PriorityHigh,
	})
	return nil
}

// PendingSettings 协调员看自己负责的社团，管理员看全部
func (s *ClubService) PendingSettings(ctx context.Context, actor Actor) ([]model.Club, error) {
	var coordinatorID uint64
	switch {
	case actor.IsAdmin():
	case actor.IsCoordinator():
		coordinatorID = actor.UserID
	default:
		return nil, ErrForbidden
	}
	list, err := s.clubs.WithPending(ctx, coordinatorID)
	return list, storeErr(err, "list pending settings")
}

func (s *ClubService) ChangeCoordinator(ctx context.Context, actor Actor, clubID, coordinatorID uint64) (*model.Club, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	club, err := s.club(ctx, clubID)
	if err != nil {
		return nil, err
	}
	coord, err := s.activeUser(ctx, coordinatorID)
	if err != nil {
		return nil, err
	}
	if coord.GlobalRole != model.RoleCoordinator {
		return nil, invalid("user %d is not a coordinator", coord.ID)
	}
	if err := s.clubs.Update(ctx, club.ID, map[string]any{"coordinator_id": coord.ID}); err != nil {
		return nil, storeErr(err, "update coordinator")
	}
	s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: AuditClubCoordinator, TargetType: "club", TargetID: club.ID,
		Severity: model.SeverityWarning,
		Details:  map[string]string{"from": fmt.Sprint(club.CoordinatorID), "to": fmt.Sprint(coord.ID)}})
	s.notify.Emit(ctx, []uint64{coord.ID}, Notice{
		Type:     model.NotifyRoleChanged,
		Title:    "You now coordinate " + club.Name,
		Link:     clubLink(club.ID),
		Priority: model.PriorityHigh,
	})
	club.CoordinatorID = coord.ID
	return club, nil
}

func (s *ClubService) ArchiveClub(ctx context.Context, actor Actor, clubID uint64) error {
	return s.setStatus(ctx, actor, clubID, model.ClubActive, model.ClubArchived, AuditClubArchived)
}

func (s *ClubService) RestoreClub(ctx context.Context, actor Actor, clubID uint64) error {
	return s.setStatus(ctx, actor, clubID, model.ClubArchived, model.ClubActive, AuditClubRestored)
}

func (s *ClubService) setStatus(ctx context.Context, actor Actor, clubID uint64, from, to model.ClubStatus, action string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if _, err := s.club(ctx, clubID); err != nil {
		return err
	}
	ok, err := s.clubs.UpdateStatus(ctx, clubID, from, to)
	if err != nil {
		return storeErr(err, "update club status")
	}
	if !ok {
		return fmt.Errorf("club is not %s: %w", from, ErrInvalidTransition)
	}
	s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: action, TargetType: "club", TargetID: clubID, Severity: model.SeverityWarning})
	return nil
}

func (s *ClubService) ListMembers(ctx context.Context, clubID uint64, role model.ClubRole) ([]model.ClubMember, error) {
	if _, err := s.club(ctx, clubID); err != nil {
		return nil, err
	}
	list, err := s.members.List(ctx, clubID, role)
	return list, storeErr(err, "list members")
}

// AddMember 任命或移除社长只有管理员可以操作
func (s *ClubService) AddMember(ctx context.Context, actor Actor, clubID, userID uint64, role model.ClubRole) (*model.ClubMember, error) {
	if role == "" {
		role = model.ClubRoleMember
	}
	if !role.Valid() {
		return nil, invalid("unknown club role %q", role)
	}
	club, err := s.club(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club.Status != model.ClubActive {
		return nil, fmt.Errorf("club is archived: %w", ErrInvalidTransition)
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return nil, err
	}
	if role == model.ClubRolePresident && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	m := &model.ClubMember{ClubID: club.ID, UserID: u.ID, Role: role}
	if err := s.members.Join(ctx, m, s.limitFor(u)); err != nil {
		return nil, storeErr(err, "add member")
	}
	s.notify.Emit(ctx, []uint64{u.ID}, Notice{
		Type:     model.NotifyRoleChanged,
		Title:    fmt.Sprintf("You joined %s as %s", club.Name, m.Role),
		Link:     clubLink(club.ID),
		Priority: model.PriorityNormal,
	})
	return m, nil
}

func (s *ClubService) UpdateMemberRole(ctx context.Context, actor Actor, clubID, userID uint64, role model.ClubRole) error {
	if !role.Valid() {
		return invalid("unknown club role %q", role)
	}
	club, err := s.club(ctx, clubID)
	if err != nil {
		return err
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return err
	}
	current, err := s.role(ctx, clubID, userID)
	if err != nil {
		return err
	}
	if current == "" {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	if !actor.IsAdmin() && (role == model.ClubRolePresident || current == model.ClubRolePresident || userID == actor.UserID) {
		return ErrForbidden
	}
	if current == role {
		return nil
	}
	ok, err := s.members.UpdateRole(ctx, clubID, userID, role)
	if err != nil {
		return storeErr(err, "update member role")
	}
	if !ok {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: AuditMemberRoleChanged, TargetType: "club", TargetID: clubID,
		Details: map[string]string{"user": fmt.Sprint(userID), "from": string(current), "to": string(role)}})
	s.notify.Emit(ctx, []uint64{userID}, Notice{
		Type:     model.NotifyRoleChanged,
		Title:    fmt.Sprintf("Your role in %s is now %s", club.Name, role),
		Link:     clubLink(club.ID),
		Priority: model.PriorityNormal,
	})
	return nil
}

func (s *ClubService) RemoveMember(ctx context.Context, actor Actor, clubID, userID uint64) error {
	club, err := s.club(ctx, clubID)
	if err != nil {
		return err
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return err
	}
	current, err := s.role(ctx, clubID, userID)
	if err != nil {
		return err
	}
	if current == "" {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	if current == model.ClubRolePresident && !actor.IsAdmin() {
		return ErrForbidden
	}
	ok, err := s.members.Remove(ctx, clubID, userID)
	if err != nil {
		return storeErr(err, "remove member")
	}
	if !ok {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	s.audit.Record(ctx, AuditEntry{ActorID: actor.UserID, Action: AuditMemberRemoved, TargetType: "club", TargetID: clubID,
		Severity: model.SeverityWarning, Details: map[string]string{"user": fmt.Sprint(userID), "role": string(current)}})
	s.notify.Emit(ctx, []uint64{userID}, Notice{
		Type:     model.NotifyRoleChanged,
		Title:    "You were removed from " + club.Name,
		Priority: model.PriorityNormal,
	})
	return nil
}

// LeaveClub 唯一的社长不能退出
func (s *ClubService) LeaveClub(ctx context.Context, userID, clubID uint64) error {
	current, err := s.role(ctx, clubID, userID)
	if err != nil {
		return err
	}
	if current == "" {
		return fmt.Errorf("membership: %w", ErrNotFound)
	}
	if current == model.ClubRolePresident {
		n, err := s.members.CountRole(ctx, clubID, model.ClubRolePresident)
		if err != nil {
			return storeErr(err, "count presidents")
		}
		if n <= 1 {
			return fmt.Errorf("the only president cannot leave: %w", ErrInvalidTransition)
		}
	}
	if _, err := s.members.Remove(ctx, clubID, userID); err != nil {
		return storeErr(err, "leave club")
	}
	return nil
}

func (s *ClubService) MyClubs(ctx context.Context, userID uint64) ([]model.ClubMember, error) {
	list, err := s.members.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "list my clubs")
	}
	if list == nil {
		list = []model.ClubMember{}
	}
	return list, nil
}

func (s *ClubService) AddGalleryItem(ctx context.Context, actor Actor, clubID uint64, in GalleryInput) (*model.GalleryItem, error) {
	club, err := s.club(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCore(ctx, actor, club); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.URL) == "" {
		return nil, invalid("url is required")
	}
	item := &model.GalleryItem{ClubID: club.ID, EventID: in.EventID, URL: in.URL, Caption: strings.TrimSpace(in.Caption), CreatedBy: actor.UserID}
	if err := s.clubs.AddGalleryItem(ctx, item); err != nil {
		return nil, storeErr(err, "add gallery item")
	}
	return item, nil
}

func (s *ClubService) ListGallery(ctx context.Context, clubID uint64, p Page) ([]model.GalleryItem, error) {
	list, err := s.clubs.ListGallery(ctx, clubID, p.Offset(), p.Limit())
	if err != nil {
		return nil, storeErr(err, "list gallery")
	}
	if list == nil {
		list = []model.GalleryItem{}
	}
	return list, nil
}

func (s *ClubService) DeleteGalleryItem(ctx context.Context, actor Actor, clubID, itemID uint64) error {
	club, err := s.club(ctx, clubID)
	if err != nil {
		return err
	}
	if err := s.requireLeader(ctx, actor, club); err != nil {
		return err
	}
	ok, err := s.clubs.DeleteGalleryItem(ctx, clubID, itemID)
	if err != nil {
		return storeErr(err, "delete gallery item")
	}
	if !ok {
		return fmt.Errorf("gallery item: %w", ErrNotFound)
	}
	return nil
}

// protectedColumns 字段名转列名，非受保护字段丢弃
func protectedColumns(fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if !model.IsProtectedField(k) {
			continue
		}
		col := k
		if k == model.FieldLogoURL {
			col = "logo_url"
		}
		out[col] = v
	}
	return out
}

func joinKeys(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for _, f := range model.ProtectedFields {
		if _, ok := m[f]; ok {
			keys = append(keys, f)
		}
	}
	return strings.Join(keys, ", ")
}

func clubLink(id uint64) string  { return fmt.Sprintf("/clubs/%d", id) }
func eventLink(id uint64) string { return fmt.Sprintf("/events/%d", id) }
