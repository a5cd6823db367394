package service

import (
	"context"

	"Clubs_Hub/internal/model"
)

// Actor 发起操作的已登录用户
type Actor struct {
	UserID    uint64
	Role      model.GlobalRole
	SessionID string
}

func (a Actor) IsAdmin() bool       { return a.Role == model.RoleAdmin }
func (a Actor) IsCoordinator() bool { return a.Role == model.RoleCoordinator }

// RequestMeta 审计需要的请求来源信息
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

type metaKey struct{}

func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func MetaFrom(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(metaKey{}).(RequestMeta)
	return m
}

// Page 分页参数，Page 从 1 开始
type Page struct {
	Page int
	Size int
}

func (p Page) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

func (p Page) Limit() int {
	if p.Size <= 0 || p.Size > 100 {
		return 20
	}
	return p.Size
}

type PageResult[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

func newPage[T any](items []T, total int64, p Page) PageResult[T] {
	if items == nil {
		items = []T{}
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return PageResult[T]{Items: items, Total: total, Page: page, Size: p.Limit()}
}
