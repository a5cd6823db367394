package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

type ClubCategory string

const (
	CategoryTechnical ClubCategory = "technical"
	CategoryCultural  ClubCategory = "cultural"
	CategoryLiterary  ClubCategory = "literary"
	CategoryArts      ClubCategory = "arts"
	CategorySocial    ClubCategory = "social"
	CategorySports    ClubCategory = "sports"
)

var ClubCategories = []ClubCategory{
	CategoryTechnical, CategoryCultural, CategoryLiterary, CategoryArts, CategorySocial, CategorySports,
}

func (c ClubCategory) Valid() bool {
	for _, v := range ClubCategories {
		if v == c {
			return true
		}
	}
	return false
}

type ClubStatus string

const (
	ClubActive   ClubStatus = "active"
	ClubArchived ClubStatus = "archived"
)

// 需要协调员审批才能生效的字段
const (
	FieldName     = "name"
	FieldCategory = "category"
	FieldLogoURL  = "logoUrl"
)

var ProtectedFields = []string{FieldName, FieldCategory, FieldLogoURL}

func IsProtectedField(f string) bool {
	for _, p := range ProtectedFields {
		if p == f {
			return true
		}
	}
	return false
}

type Club struct {
	ID              uint64           `gorm:"primaryKey" json:"id"`
	Name            string           `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Category        ClubCategory     `gorm:"size:16;not null;index" json:"category"`
	Description     string           `gorm:"type:text" json:"description"`
	Vision          string           `gorm:"type:text" json:"vision"`
	Mission         string           `gorm:"type:text" json:"mission"`
	LogoURL         string           `gorm:"size:255" json:"logoUrl"`
	BannerURL       string           `gorm:"size:255" json:"bannerUrl"`
	SocialLinks     JSONMap          `gorm:"type:json" json:"socialLinks"`
	CoordinatorID   uint64           `gorm:"not null;index" json:"coordinatorId"`
	Status          ClubStatus       `gorm:"size:16;not null;default:active;index" json:"status"`
	PendingSettings *PendingSettings `gorm:"type:json" json:"pendingSettings,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// AfterFind 数据库中为 NULL 的待审批设置统一还原为 nil
func (c *Club) AfterFind(*gorm.DB) error {
	if c.PendingSettings != nil && len(c.PendingSettings.Fields) == 0 {
		c.PendingSettings = nil
	}
	return nil
}

// PendingSettings 社长提交、等待协调员审批的受保护字段
type PendingSettings struct {
	Fields      map[string]string `json:"fields"`
	RequestedBy uint64            `json:"requestedBy"`
	RequestedAt time.Time         `json:"requestedAt"`
}

func (p PendingSettings) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

func (p *PendingSettings) Scan(src any) error {
	b, err := bytesOf(src)
	if err != nil || len(b) == 0 {
		return err
	}
	return json.Unmarshal(b, p)
}

// Merge 后提交的同名字段覆盖先前的值
func (p *PendingSettings) Merge(fields map[string]string, by uint64, at time.Time) {
	if p.Fields == nil {
		p.Fields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		p.Fields[k] = v
	}
	p.RequestedBy = by
	p.RequestedAt = at
}

// Apply 把审批通过的字段写回社团，其他字段忽略
func (c *Club) Apply(fields map[string]string) {
	for k, v := range fields {
		if !IsProtectedField(k) {
			continue
		}
		switch k {
		case FieldName:
			c.Name = v
		case FieldCategory:
			c.Category = ClubCategory(v)
		case FieldLogoURL:
			c.LogoURL = v
		}
	}
}

type ClubRole string

const (
	ClubRoleMember        ClubRole = "member"
	ClubRoleCore          ClubRole = "core"
	ClubRoleSecretary     ClubRole = "secretary"
	ClubRoleTreasurer     ClubRole = "treasurer"
	ClubRoleLeadPR        ClubRole = "leadPR"
	ClubRoleLeadTech      ClubRole = "leadTech"
	ClubRoleVicePresident ClubRole = "vicePresident"
	ClubRolePresident     ClubRole = "president"
)

var ClubRoles = []ClubRole{
	ClubRoleMember, ClubRoleCore, ClubRoleSecretary, ClubRoleTreasurer,
	ClubRoleLeadPR, ClubRoleLeadTech, ClubRoleVicePresident, ClubRolePresident,
}

func (r ClubRole) Valid() bool {
	for _, v := range ClubRoles {
		if v == r {
			return true
		}
	}
	return false
}

// IsLeadership 社长/副社长可以管理成员、招新和设置
func (r ClubRole) IsLeadership() bool {
	return r == ClubRolePresident || r == ClubRoleVicePresident
}

// IsCore 除普通成员外都算核心成员，可以创建活动
func (r ClubRole) IsCore() bool {
	return r.Valid() && r != ClubRoleMember
}

type MemberStatus string

const (
	MemberApproved MemberStatus = "approved"
	MemberRemoved  MemberStatus = "removed"
)

type ClubMember struct {
	ID        uint64       `gorm:"primaryKey" json:"id"`
	ClubID    uint64       `gorm:"not null;index;uniqueIndex:uk_club_user" json:"clubId"`
	UserID    uint64       `gorm:"not null;index;uniqueIndex:uk_club_user" json:"userId"`
	Role      ClubRole     `gorm:"size:16;not null;default:member" json:"role"`
	Status    MemberStatus `gorm:"size:16;not null;default:approved;index" json:"status"`
	JoinedAt  time.Time    `json:"joinedAt"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Club *Club `gorm:"foreignKey:ClubID" json:"club,omitempty"`
}

type GalleryItem struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	ClubID    uint64    `gorm:"not null;index" json:"clubId"`
	EventID   *uint64   `gorm:"index" json:"eventId,omitempty"`
	URL       string    `gorm:"size:255;not null" json:"url"`
	Caption   string    `gorm:"size:255" json:"caption"`
	CreatedBy uint64    `gorm:"not null" json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

func bytesOf(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, errors.New("unsupported json column type")
}
