package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type EventStatus string

const (
	EventDraft              EventStatus = "draft"
	EventPendingCoordinator EventStatus = "pending_coordinator"
	EventPendingAdmin       EventStatus = "pending_admin"
	EventApproved           EventStatus = "approved"
	EventPublished          EventStatus = "published"
	EventOngoing            EventStatus = "ongoing"
	EventCompleted          EventStatus = "completed"
	EventIncomplete         EventStatus = "incomplete"
	EventRejected           EventStatus = "rejected"
	EventCancelled          EventStatus = "cancelled"
)

var EventStatuses = []EventStatus{
	EventDraft, EventPendingCoordinator, EventPendingAdmin, EventApproved, EventPublished,
	EventOngoing, EventCompleted, EventIncomplete, EventRejected, EventCancelled,
}

type EventAction string

const (
	ActionSubmit             EventAction = "submit"
	ActionCoordinatorApprove EventAction = "coordinator_approve"
	ActionAdminApprove       EventAction = "admin_approve"
	ActionReject             EventAction = "reject"
	ActionPublish            EventAction = "publish"
	ActionStart              EventAction = "start"
	ActionComplete           EventAction = "complete"
	ActionMarkIncomplete     EventAction = "mark_incomplete"
	ActionCancel             EventAction = "cancel"
)

// eventTransitions 每个动作允许的起始状态；目标状态由 NextStatus 决定
var eventTransitions = map[EventAction][]EventStatus{
	ActionSubmit:             {EventDraft, EventRejected},
	ActionCoordinatorApprove: {EventPendingCoordinator},
	ActionAdminApprove:       {EventPendingAdmin},
	ActionReject:             {EventPendingCoordinator, EventPendingAdmin},
	ActionPublish:            {EventApproved},
	ActionStart:              {EventPublished},
	ActionComplete:           {EventOngoing, EventIncomplete},
	ActionMarkIncomplete:     {EventOngoing},
	ActionCancel:             {EventDraft, EventPendingCoordinator, EventPendingAdmin, EventApproved, EventPublished},
}

func (a EventAction) Valid() bool {
	_, ok := eventTransitions[a]
	return ok
}

// CanApply 判断动作能否作用于当前状态
func (a EventAction) CanApply(from EventStatus) bool {
	for _, s := range eventTransitions[a] {
		if s == from {
			return true
		}
	}
	return false
}

// NextStatus 返回动作执行后的状态；needsAdmin 只影响 coordinator_approve
func (a EventAction) NextStatus(needsAdmin bool) EventStatus {
	switch a {
	case ActionSubmit:
		return EventPendingCoordinator
	case ActionCoordinatorApprove:
		if needsAdmin {
			return EventPendingAdmin
		}
		return EventApproved
	case ActionAdminApprove:
		return EventApproved
	case ActionReject:
		return EventRejected
	case ActionPublish:
		return EventPublished
	case ActionStart:
		return EventOngoing
	case ActionComplete:
		return EventCompleted
	case ActionMarkIncomplete:
		return EventIncomplete
	case ActionCancel:
		return EventCancelled
	}
	return ""
}

// Editable 只有草稿和被驳回的活动可以修改内容
func (s EventStatus) Editable() bool {
	return s == EventDraft || s == EventRejected
}

type Event struct {
	ID                uint64              `gorm:"primaryKey" json:"id"`
	ClubID            uint64              `gorm:"not null;index:idx_club_status" json:"clubId"`
	Title             string              `gorm:"size:200;not null" json:"title"`
	Description       string              `gorm:"type:text" json:"description"`
	Venue             string              `gorm:"size:128" json:"venue"`
	StartsAt          time.Time           `gorm:"not null;index" json:"startsAt"`
	EndsAt            time.Time           `gorm:"not null" json:"endsAt"`
	Budget            float64             `gorm:"not null;default:0" json:"budget"`
	ExpectedAttendees int                 `json:"expectedAttendees"`
	GuestSpeakers     StringList          `gorm:"type:json" json:"guestSpeakers"`
	IsPublic          bool                `gorm:"not null" json:"isPublic"`
	Status            EventStatus         `gorm:"size:24;not null;default:draft;index:idx_club_status" json:"status"`
	RejectionReason   string              `gorm:"size:500" json:"rejectionReason,omitempty"`
	CreatedBy         uint64              `gorm:"not null" json:"createdBy"`
	SubmittedAt       *time.Time          `json:"submittedAt,omitempty"`
	ApprovedBy        *uint64             `json:"approvedBy,omitempty"`
	PublishedAt       *time.Time          `json:"publishedAt,omitempty"`
	CompletedAt       *time.Time          `json:"completedAt,omitempty"`
	Checklist         CompletionChecklist `gorm:"type:json" json:"completionChecklist"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

// NeedsAdminApproval 预算超过阈值或有外部嘉宾时需要管理员二次审批
func (e *Event) NeedsAdminApproval(budgetThreshold float64) bool {
	return e.Budget > budgetThreshold || len(e.GuestSpeakers) > 0
}

type CompletionChecklist struct {
	AttendanceURL string   `json:"attendanceUrl,omitempty"`
	ReportURL     string   `json:"reportUrl,omitempty"`
	BillsURL      string   `json:"billsUrl,omitempty"`
	PhotoURLs     []string `json:"photoUrls,omitempty"`
}

func (c CompletionChecklist) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	return string(b), err
}

func (c *CompletionChecklist) Scan(src any) error {
	b, err := bytesOf(src)
	if err != nil || len(b) == 0 {
		return err
	}
	return json.Unmarshal(b, c)
}

// Missing 返回尚未完成的清单项，空切片表示可以结项
func (c CompletionChecklist) Missing(budget float64, minPhotos int) []string {
	var missing []string
	if c.AttendanceURL == "" {
		missing = append(missing, "attendance")
	}
	if c.ReportURL == "" {
		missing = append(missing, "report")
	}
	if len(c.PhotoURLs) < minPhotos {
		missing = append(missing, "photos")
	}
	if budget > 0 && c.BillsURL == "" {
		missing = append(missing, "bills")
	}
	return missing
}

type EventRSVP struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	EventID   uint64    `gorm:"not null;uniqueIndex:uk_event_user" json:"eventId"`
	UserID    uint64    `gorm:"not null;uniqueIndex:uk_event_user;index" json:"userId"`
	Attended  bool      `gorm:"not null;default:false" json:"attended"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (EventRSVP) TableName() string { return "event_rsvps" }
