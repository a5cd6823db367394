package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/mysql"
	"Clubs_Hub/internal/repository/redis"
)

// ClientInfo 登录设备信息
type ClientInfo struct {
	Device    string
	IP        string
	UserAgent string
}

type SessionService struct {
	repo   *mysql.SessionRepository
	users  *mysql.UserRepository
	cache  *redis.SessionCache
	tokens *pkg.TokenIssuer
	now    func() time.Time
}

func NewSessionService(repo *mysql.SessionRepository, users *mysql.UserRepository, cache *redis.SessionCache, tokens *pkg.TokenIssuer) *SessionService {
	return &SessionService{repo: repo, users: users, cache: cache, tokens: tokens, now: time.Now}
}

// Start 为用户新建会话并签发 token
func (s *SessionService) Start(ctx context.Context, user *model.User, client ClientInfo) (*pkg.Pair, error) {
	now := s.now().UTC()
	sess := &model.Session{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Device:     client.Device,
		UserAgent:  client.UserAgent,
		IP:         client.IP,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.tokens.RefreshTTL()),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, storeErr(err, "create session")
	}
	s.warm(ctx, sess, now)
	return s.tokens.GeneratePair(user.ID, string(user.GlobalRole), sess.ID)
}

// Refresh 会话仍有效时轮换 token 并延长会话
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*pkg.Pair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	now := s.now().UTC()
	sess, err := s.repo.FindByID(ctx, claims.SessionID)
	if err != nil || !sess.Live(now) || sess.UserID != claims.UserID {
		return nil, ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil || user.Status != model.UserActive {
		return nil, ErrUnauthorized
	}

	sess.LastSeenAt = now
	sess.ExpiresAt = now.Add(s.tokens.RefreshTTL())
	if err := s.repo.Touch(ctx, sess.ID, sess.LastSeenAt, sess.ExpiresAt); err != nil {
		return nil, storeErr(err, "touch session")
	}
	s.warm(ctx, sess, now)
	return s.tokens.GeneratePair(user.ID, string(user.GlobalRole), sess.ID)
}

// Authenticate 校验 access token 且会话未被吊销；Redis 未命中时回源 MySQL 并回填
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (*pkg.Claims, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, err
	}
	uid, err := s.cache.Get(ctx, claims.SessionID)
	if err == nil {
		if uid != claims.UserID {
			return nil, ErrUnauthorized
		}
		return claims, nil
	}
	if !errors.Is(err, redis.ErrSessionNotFound) {
		log.Ctx(ctx).Warn().Err(err).Msg("session cache unavailable, falling back to db")
	}

	now := s.now().UTC()
	sess, err := s.repo.FindByID(ctx, claims.SessionID)
	if err != nil || !sess.Live(now) || sess.UserID != claims.UserID {
		return nil, ErrUnauthorized
	}
	s.warm(ctx, sess, now)
	return claims, nil
}

func (s *SessionService) List(ctx context.Context, userID uint64) ([]model.Session, error) {
	list, err := s.repo.ListLive(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, storeErr(err, "list sessions")
	}
	if list == nil {
		list = []model.Session{}
	}
	return list, nil
}

// Logout 吊销当前会话，重复调用无副作用
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if _, err := s.repo.Revoke(ctx, sessionID, s.now().UTC()); err != nil {
		return storeErr(err, "revoke session")
	}
	s.evict(ctx, sessionID)
	return nil
}

// Revoke 只能吊销自己的会话
func (s *SessionService) Revoke(ctx context.Context, userID uint64, sessionID string) error {
	sess, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return storeErr(err, "find session")
	}
	if sess.UserID != userID {
		return ErrNotFound
	}
	return s.Logout(ctx, sessionID)
}

// RevokeOthers 保留当前会话，吊销其他所有会话
func (s *SessionService) RevokeOthers(ctx context.Context, userID uint64, current string) (int, error) {
	ids, err := s.repo.RevokeAllForUser(ctx, userID, current, s.now().UTC())
	if err != nil {
		return 0, storeErr(err, "revoke sessions")
	}
	s.evict(ctx, ids...)
	return len(ids), nil
}

func (s *SessionService) RevokeAll(ctx context.Context, userID uint64) error {
	_, err := s.RevokeOthers(ctx, userID, "")
	return err
}

func (s *SessionService) warm(ctx context.Context, sess *model.Session, now time.Time) {
	if err := s.cache.Put(ctx, sess.ID, sess.UserID, sess.ExpiresAt.Sub(now)); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("session", sess.ID).Msg("cache session failed")
	}
}

func (s *SessionService) evict(ctx context.Context, ids ...string) {
	if err := s.cache.Delete(ctx, ids...); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("evict sessions failed")
	}
}
