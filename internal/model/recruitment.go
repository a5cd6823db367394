package model

import "time"

type RecruitmentStatus string

const (
	RecruitmentDraft     RecruitmentStatus = "draft"
	RecruitmentScheduled RecruitmentStatus = "scheduled"
	RecruitmentOpen      RecruitmentStatus = "open"
	RecruitmentClosed    RecruitmentStatus = "closed"
	RecruitmentCompleted RecruitmentStatus = "completed"
)

type Recruitment struct {
	ID              uint64            `gorm:"primaryKey" json:"id"`
	ClubID          uint64            `gorm:"not null;index" json:"clubId"`
	Title           string            `gorm:"size:200;not null" json:"title"`
	Description     string            `gorm:"type:text" json:"description"`
	Roles           StringList        `gorm:"type:json" json:"roles"`
	Questions       StringList        `gorm:"type:json" json:"questions"`
	StartsAt        time.Time         `gorm:"not null;index" json:"startsAt"`
	EndsAt          time.Time         `gorm:"not null;index" json:"endsAt"`
	MaxApplications int               `gorm:"not null;default:0" json:"maxApplications"`
	Status          RecruitmentStatus `gorm:"size:16;not null;default:draft;index" json:"status"`
	CreatedBy       uint64            `gorm:"not null" json:"createdBy"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// StatusAt 已排期的招新按时间窗口推导状态
func (r *Recruitment) StatusAt(now time.Time) RecruitmentStatus {
	switch r.Status {
	case RecruitmentScheduled, RecruitmentOpen:
		if now.Before(r.StartsAt) {
			return RecruitmentScheduled
		}
		if now.Before(r.EndsAt) {
			return RecruitmentOpen
		}
		return RecruitmentClosed
	}
	return r.Status
}

type ApplicationStatus string

const (
	ApplicationSubmitted   ApplicationStatus = "submitted"
	ApplicationShortlisted ApplicationStatus = "shortlisted"
	ApplicationSelected    ApplicationStatus = "selected"
	ApplicationRejected    ApplicationStatus = "rejected"
)

// Decided 已录取或已拒绝的申请不能再改
func (s ApplicationStatus) Decided() bool {
	return s == ApplicationSelected || s == ApplicationRejected
}

type Application struct {
	ID            uint64            `gorm:"primaryKey" json:"id"`
	RecruitmentID uint64            `gorm:"not null;uniqueIndex:uk_recruitment_user" json:"recruitmentId"`
	ClubID        uint64            `gorm:"not null;index" json:"clubId"`
	UserID        uint64            `gorm:"not null;uniqueIndex:uk_recruitment_user;index" json:"userId"`
	Answers       JSONMap           `gorm:"type:json" json:"answers"`
	Status        ApplicationStatus `gorm:"size:16;not null;default:submitted;index" json:"status"`
	ReviewedBy    *uint64           `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time        `json:"reviewedAt,omitempty"`
	Note          string            `gorm:"size:500" json:"note,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
