package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"Clubs_Hub/internal/metrics"
	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/repository/mysql"
)

// Notice 一次通知的内容，按收件人扇出
type Notice struct {
	Type     model.NotificationType
	Title    string
	Message  string
	Link     string
	Priority model.Priority
}

type PreferencePatch struct {
	EmailOptOut        *bool
	PushOptOut         *bool
	EmailDisabledTypes []model.NotificationType
}

type NotificationService struct {
	repo  *mysql.NotificationRepository
	users *mysql.UserRepository
	now   func() time.Time
}

func NewNotificationService(repo *mysql.NotificationRepository, users *mysql.UserRepository) *NotificationService {
	return &NotificationService{repo: repo, users: users, now: time.Now}
}

// Notify 站内通知每人一条；email 需优先级 >= high，push 需 >= normal，均受个人偏好约束
func (s *NotificationService) Notify(ctx context.Context, recipients []uint64, n Notice) error {
	ids := dedupeIDs(recipients)
	if len(ids) == 0 {
		return nil
	}
	if n.Priority == "" {
		n.Priority = model.PriorityNormal
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return storeErr(err, "load recipients")
	}
	prefs, err := s.repo.Preferences(ctx, ids)
	if err != nil {
		return storeErr(err, "load preferences")
	}

	now := s.now().UTC()
	wantEmail := n.Priority.AtLeast(model.PriorityHigh)
	wantPush := n.Priority.AtLeast(model.PriorityNormal)
	notes := make([]model.Notification, 0, len(users))
	var outbox []model.Outbox
	for i := range users {
		u := &users[i]
		if u.Status != model.UserActive {
			continue
		}
		notes = append(notes, model.Notification{
			UserID:   u.ID,
			Type:     n.Type,
			Title:    n.Title,
			Message:  n.Message,
			Link:     n.Link,
			Priority: n.Priority,
		})
		pref := prefs[u.ID]
		if wantEmail && pref.EmailAllowed(n.Type) {
			if pref == nil {
				if pref, err = s.repo.EnsurePreference(ctx, u.ID); err != nil {
					return storeErr(err, "create preference")
				}
			}
			row, err := outboxRow(model.ChannelEmail, u, n, pref.UnsubscribeToken, now)
			if err != nil {
				return err
			}
			outbox = append(outbox, row)
		}
		if wantPush && pref.PushAllowed() {
			row, err := outboxRow(model.ChannelPush, u, n, "", now)
			if err != nil {
				return err
			}
			outbox = append(outbox, row)
		}
	}
	if err := s.repo.FanOut(ctx, notes, outbox); err != nil {
		return storeErr(err, "fan out notifications")
	}

	metrics.NotificationsTotal.WithLabelValues("in_app").Add(float64(len(notes)))
	for _, row := range outbox {
		metrics.NotificationsTotal.WithLabelValues(string(row.Channel)).Inc()
	}
	return nil
}

// Emit 业务流程中的通知失败只记日志
func (s *NotificationService) Emit(ctx context.Context, recipients []uint64, n Notice) {
	if err := s.Notify(ctx, recipients, n); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("type", string(n.Type)).Int("recipients", len(recipients)).Msg("notify failed")
	}
}

// EmitToRole 通知某个全局角色下的全部活跃用户
func (s *NotificationService) EmitToRole(ctx context.Context, role model.GlobalRole, n Notice) {
	ids, err := s.users.IDsByRole(ctx, role)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("role", string(role)).Msg("load role recipients failed")
		return
	}
	s.Emit(ctx, ids, n)
}

func (s *NotificationService) List(ctx context.Context, userID uint64, unreadOnly bool, p Page) (PageResult[model.Notification], error) {
	list, total, err := s.repo.List(ctx, userID, unreadOnly, p.Offset(), p.Limit())
	if err != nil {
		return PageResult[model.Notification]{}, storeErr(err, "list notifications")
	}
	return newPage(list, total, p), nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.repo.UnreadCount(ctx, userID)
	return n, storeErr(err, "count unread")
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint64) error {
	ok, err := s.repo.MarkRead(ctx, userID, id, s.now())
	if err != nil {
		return storeErr(err, "mark read")
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now())
	return n, storeErr(err, "mark all read")
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uint64) error {
	ok, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return storeErr(err, "delete notification")
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *NotificationService) GetPreferences(ctx context.Context, userID uint64) (*model.NotificationPreference, error) {
	p, err := s.repo.EnsurePreference(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "load preferences")
	}
	return p, nil
}

func (s *NotificationService) UpdatePreferences(ctx context.Context, userID uint64, patch PreferencePatch) (*model.NotificationPreference, error) {
	p, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if patch.EmailOptOut != nil {
		p.EmailOptOut = *patch.EmailOptOut
	}
	if patch.PushOptOut != nil {
		p.PushOptOut = *patch.PushOptOut
	}
	if patch.EmailDisabledTypes != nil {
		types := make(model.StringList, 0, len(patch.EmailDisabledTypes))
		for _, t := range patch.EmailDisabledTypes {
			types = append(types, string(t))
		}
		p.EmailDisabledTypes = types
	}
	if err := s.repo.SavePreference(ctx, p); err != nil {
		return nil, storeErr(err, "save preferences")
	}
	return p, nil
}

// Unsubscribe 邮件退订链接，t 为空表示退订全部邮件
func (s *NotificationService) Unsubscribe(ctx context.Context, token string, t model.NotificationType) error {
	if token == "" {
		return invalid("token is required")
	}
	p, err := s.repo.PreferenceByToken(ctx, token)
	if err != nil {
		return storeErr(err, "find preference")
	}
	if t == "" {
		p.EmailOptOut = true
	} else if p.EmailAllowed(t) {
		p.EmailDisabledTypes = append(p.EmailDisabledTypes, string(t))
	}
	if err := s.repo.SavePreference(ctx, p); err != nil {
		return storeErr(err, "save preferences")
	}
	return nil
}

func outboxRow(ch model.Channel, u *model.User, n Notice, token string, now time.Time) (model.Outbox, error) {
	msg := model.DispatchMessage{
		Channel:          ch,
		UserID:           u.ID,
		Type:             n.Type,
		Title:            n.Title,
		Message:          n.Message,
		Link:             n.Link,
		Priority:         n.Priority,
		UnsubscribeToken: token,
		CreatedAt:        now,
	}
	if ch == model.ChannelEmail {
		msg.Email = u.Email
		msg.Name = u.Name
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return model.Outbox{}, err
	}
	return model.Outbox{Channel: ch, UserID: u.ID, Payload: string(b), Status: model.OutboxPending}, nil
}

func dedupeIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
