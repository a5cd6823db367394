package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/repository/redis"
)

type EmailService struct {
	mailer pkg.Mailer
	codes  *redis.EmailCodeRepository
}

func NewEmailService(mailer pkg.Mailer, codes *redis.EmailCodeRepository) *EmailService {
	return &EmailService{mailer: mailer, codes: codes}
}

// SendRegisterCode 发送注册验证码
func (s *EmailService) SendRegisterCode(ctx context.Context, email string) error {
	return s.sendCode(ctx, redis.ScopeRegister, email, "registration", "Clubs Hub registration code")
}

// SendResetCode 发送重置密码验证码
func (s *EmailService) SendResetCode(ctx context.Context, email string) error {
	return s.sendCode(ctx, redis.ScopeReset, email, "password reset", "Clubs Hub password reset code")
}

func (s *EmailService) sendCode(ctx context.Context, scope, email, purpose, subject string) error {
	if err := s.codes.Cooldown(ctx, scope, email); err != nil {
		if errors.Is(err, redis.ErrEmailCooldown) {
			return ErrTooManyRequests
		}
		return err
	}
	code, err := pkg.RandDigits(6)
	if err != nil {
		return err
	}
	// 先写入pending键
	if err = s.codes.SavePending(ctx, scope, email, code); err != nil {
		return err
	}

	html := pkg.EmailCodeHTML(purpose, code, redis.DefaultEmailCodeTTL)
	if err = s.mailer.Send(email, subject, html); err != nil {
		_ = s.codes.DeletePending(ctx, scope, email)
		return fmt.Errorf("send %s code: %w", scope, err)
	}

	// 邮件发送后再将pending转为confirmed
	if err = s.codes.Confirm(ctx, scope, email); err != nil {
		_ = s.codes.DeletePending(ctx, scope, email)
		return err
	}
	return nil
}

// VerifyCode 校验验证码，通过后一次性删除；连续输错达到上限后验证码作废
func (s *EmailService) VerifyCode(ctx context.Context, scope, email, code string) error {
	val, err := s.codes.Get(ctx, scope, email)
	if err != nil {
		return invalid("verification code is invalid or expired")
	}
	if val != code {
		if _, ferr := s.codes.Fail(ctx, scope, email); ferr != nil {
			log.Ctx(ctx).Warn().Err(ferr).Str("scope", scope).Msg("record code attempt failed")
		}
		return invalid("verification code is invalid or expired")
	}
	return s.codes.Consume(ctx, scope, email)
}
