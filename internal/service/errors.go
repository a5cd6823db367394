package service

import (
	"errors"
	"fmt"

	"Clubs_Hub/internal/repository/mysql"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation failed")
	ErrClubLimitReached  = errors.New("club membership limit reached")
	ErrTooManyRequests   = errors.New("too many requests")
)

// storeErr 把仓储层错误翻译成服务层哨兵错误
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case mysql.IsNotFound(err):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case mysql.IsDuplicate(err):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	case errors.Is(err, mysql.ErrClubLimit):
		return ErrClubLimitReached
	}
	return fmt.Errorf("%s: %w", what, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
