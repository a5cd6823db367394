package model

import "time"

type NotificationType string

const (
	NotifyEventPublished      NotificationType = "event_published"
	NotifyEventApproval       NotificationType = "event_approval_required"
	NotifyEventStatus         NotificationType = "event_status_changed"
	NotifySettingsPending     NotificationType = "club_settings_pending"
	NotifySettingsDecided     NotificationType = "club_settings_decided"
	NotifyRecruitmentOpen     NotificationType = "recruitment_open"
	NotifyApplicationDecision NotificationType = "application_status"
	NotifyRoleChanged         NotificationType = "role_changed"
	NotifySystem              NotificationType = "system"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	}
	return 1
}

// AtLeast 比较优先级，未知值按 normal 处理
func (p Priority) AtLeast(o Priority) bool {
	return p.rank() >= o.rank()
}

type Notification struct {
	ID        uint64           `gorm:"primaryKey" json:"id"`
	UserID    uint64           `gorm:"not null;index:idx_user_read" json:"userId"`
	Type      NotificationType `gorm:"size:32;not null;index" json:"type"`
	Title     string           `gorm:"size:200;not null" json:"title"`
	Message   string           `gorm:"size:1000" json:"message"`
	Priority  Priority         `gorm:"size:16;not null;default:normal" json:"priority"`
	Link      string           `gorm:"size:255" json:"link,omitempty"`
	IsRead    bool             `gorm:"not null;default:false;index:idx_user_read" json:"isRead"`
	ReadAt    *time.Time       `json:"readAt,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

type NotificationPreference struct {
	UserID             uint64     `gorm:"primaryKey" json:"userId"`
	UnsubscribeToken   string     `gorm:"size:36;uniqueIndex;not null" json:"-"`
	EmailOptOut        bool       `gorm:"not null;default:false" json:"emailOptOut"`
	PushOptOut         bool       `gorm:"not null;default:false" json:"pushOptOut"`
	EmailDisabledTypes StringList `gorm:"type:json" json:"emailDisabledTypes"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func (p *NotificationPreference) EmailAllowed(t NotificationType) bool {
	if p == nil {
		return true
	}
	if p.EmailOptOut {
		return false
	}
	for _, d := range p.EmailDisabledTypes {
		if d == string(t) {
			return false
		}
	}
	return true
}

func (p *NotificationPreference) PushAllowed() bool {
	return p == nil || !p.PushOptOut
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

const (
	OutboxPending int8 = 0
	OutboxSent    int8 = 1
	OutboxFailed  int8 = 2
)

// Outbox 通知投递事件表，由 relayer 异步投递到 kafka
type Outbox struct {
	ID        uint64    `gorm:"primaryKey"`
	Channel   Channel   `gorm:"size:16;not null"`
	UserID    uint64    `gorm:"not null"`
	Payload   string    `gorm:"type:json;not null"`
	Status    int8      `gorm:"not null;default:0;index;comment:'0=pending,1=sent,2=failed'"`
	Retry     int       `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Outbox) TableName() string { return "notification_outbox" }

// DispatchMessage outbox 中 payload 的结构，也是 kafka 消息体
type DispatchMessage struct {
	Channel  Channel          `json:"channel"`
	UserID   uint64           `json:"userId"`
	Email    string           `json:"email,omitempty"`
	Name     string           `json:"name,omitempty"`
	Type     NotificationType `json:"type"`
	Title    string           `json:"title"`
	Message  string           `json:"message"`
	Link     string           `json:"link,omitempty"`
	Priority Priority         `json:"priority"`
	// 退订链接需要的 token
	UnsubscribeToken string    `json:"unsubscribeToken,omitempty"`
	// 邮件投递失败后重新入队的次数
	Attempt          int       `json:"attempt,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
