package model

// All 需要自动建表的模型
func All() []any {
	return []any{
		&User{},
		&Session{},
		&Club{},
		&ClubMember{},
		&GalleryItem{},
		&Event{},
		&EventRSVP{},
		&Recruitment{},
		&Application{},
		&Notification{},
		&NotificationPreference{},
		&Outbox{},
		&AuditLog{},
	}
}
