package service

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/repository/redis"
)

type RegisterInput struct {
	Username   string
	Password   string
	Email      string
	Code       string
	Name       string
	RollNumber string
	Department string
	Year       int
}

type ProfilePatch struct {
	Name       *string
	Department *string
	Year       *int
}

type UserFilter struct {
	Role   model.GlobalRole
	Status model.UserStatus
	Search string
}

type UserService struct {
	repo     *mysql.UserRepository
	sessions *SessionService
	emailSvc *EmailService
	audit    *AuditService
}

func NewUserService(repo *mysql.UserRepository, sessions *SessionService, emailSvc *EmailService, audit *AuditService) *UserService {
	return &UserService{repo: repo, sessions: sessions, emailSvc: emailSvc, audit: audit}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	exists, err := s.repo.Exists(ctx, in.Username, in.Email)
	if err != nil {
		return nil, storeErr(err, "check user")
	}
	if exists {
		return nil, ErrConflict
	}
	// 验证code是否正确
	if err := s.emailSvc.VerifyCode(ctx, redis.ScopeRegister, in.Email, in.Code); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:   in.Username,
		Password:   string(hash),
		Email:      in.Email,
		Name:       in.Name,
		RollNumber: in.RollNumber,
		Department: in.Department,
		Year:       in.Year,
		GlobalRole: model.RoleStudent,
		Status:     model.UserActive,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, storeErr(err, "create user")
	}
	return user, nil
}

// CreateAdmin 命令行初始化管理员，不需要验证码
func (s *UserService) CreateAdmin(ctx context.Context, username, email, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:   username,
		Password:   string(hash),
		Email:      strings.ToLower(email),
		Name:       username,
		GlobalRole: model.RoleAdmin,
		Status:     model.UserActive,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, storeErr(err, "create admin")
	}
	return user, nil
}

func (s *UserService) Login(ctx context.Context, identifier, password string, client ClientInfo) (*pkg.Pair, *model.User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(identifier))
	if err != nil {
		if mysql.IsNotFound(err) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, storeErr(err, "find user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		s.audit.Record(ctx, AuditEntry{ActorID: user.ID, Action: AuditUserLogin, Severity: model.SeverityWarning, Failed: true})
		return nil, nil, ErrUnauthorized
	}
	if user.Status != model.UserActive {
		return nil, nil, ErrForbidden
	}
	pair, err := s.sessions.Start(ctx, user, client)
	if err != nil {
		return nil, nil, err
	}
	s.audit.Record(ctx, AuditEntry{ActorID: user.ID, Action: AuditUserLogin, Details: map[string]string{"device": client.Device}})
	return pair, user, nil
}

func (s *UserService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	// 校验code正确性
	if err := s.emailSvc.VerifyCode(ctx, redis.ScopeReset, email, code); err != nil {
		return err
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return storeErr(err, "find user")
	}
	return s.setPassword(ctx, user, newPassword)
}

// ChangePassword 登录态修改密码，所有会话失效
func (s *UserService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return storeErr(err, "find user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return invalid("old password is incorrect")
	}
	return s.setPassword(ctx, user, newPassword)
}

func (s *UserService) setPassword(ctx context.Context, user *model.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return storeErr(err, "update password")
	}
	s.audit.Record(ctx, AuditEntry{ActorID: user.ID, Action: AuditPasswordChanged, TargetType: "user", TargetID: user.ID, Severity: model.SeverityWarning})
	return s.sessions.RevokeAll(ctx, user.ID)
}

func (s *UserService) GetProfile(ctx context.Context, userID uint64) (*model.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "find user")
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint64, p ProfilePatch) (*model.User, error) {
	fields := map[string]any{}
	if p.Name != nil {
		fields["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Department != nil {
		fields["department"] = strings.TrimSpace(*p.Department)
	}
	if p.Year != nil {
		fields["year"] = *p.Year
	}
	if len(fields) > 0 {
		if err := s.repo.UpdateProfile(ctx, userID, fields); err != nil {
			return nil, storeErr(err, "update profile")
		}
	}
	return s.GetProfile(ctx, userID)
}

func (s *UserService) ListUsers(ctx context.Context, actor Actor, f UserFilter, p Page) (PageResult[model.User], error) {
	if !actor.IsAdmin() {
		return PageResult[model.User]{}, ErrForbidden
	}
	list, total, err := s.repo.List(ctx, mysql.UserFilter{Role: f.Role, Status: f.Status, Search: f.Search}, p.Offset(), p.Limit())
	if err != nil {
		return PageResult[model.User]{}, storeErr(err, "list users")
	}
	return newPage(list, total, p), nil
}

// SetGlobalRole 角色写在 token 里，修改后吊销其全部会话使其重新登录
func (s *UserService) SetGlobalRole(ctx context.Context, actor Actor, userID uint64, role model.GlobalRole) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if !role.Valid() {
		return nil, invalid("unknown role %q", role)
	}
	if actor.UserID == userID {
		return nil, invalid("admins cannot change their own role")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "find user")
	}
	if user.GlobalRole == role {
		return user, nil
	}
	if err := s.repo.UpdateRole(ctx, userID, role); err != nil {
		return nil, storeErr(err, "update role")
	}
	s.audit.Record(ctx, AuditEntry{
		ActorID: actor.UserID, Action: AuditUserRoleChanged, TargetType: "user", TargetID: userID,
		Severity: model.SeverityCritical,
		Details:  map[string]string{"from": string(user.GlobalRole), "to": string(role)},
	})
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return nil, err
	}
	user.GlobalRole = role
	return user, nil
}

func (s *UserService) SetUserStatus(ctx context.Context, actor Actor, userID uint64, status model.UserStatus) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if status != model.UserActive && status != model.UserSuspended {
		return nil, invalid("unknown status %q", status)
	}
	if actor.UserID == userID {
		return nil, invalid("admins cannot change their own status")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "find user")
	}
	if err := s.repo.UpdateStatus(ctx, userID, status); err != nil {
		return nil, storeErr(err, "update status")
	}
	s.audit.Record(ctx, AuditEntry{
		ActorID: actor.UserID, Action: AuditUserStatusChanged, TargetType: "user", TargetID: userID,
		Severity: model.SeverityCritical,
		Details:  map[string]string{"from": string(user.Status), "to": string(status)},
	})
	if status == model.UserSuspended {
		if err := s.sessions.RevokeAll(ctx, userID); err != nil {
			return nil, err
		}
	}
	user.Status = status
	return user, nil
}
