package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultEmailCodeTTL = 5 * time.Minute
	EmailCooldown       = time.Minute
	EmailCodePrefix     = "email:code"

	ScopeRegister = "register"
	ScopeReset    = "reset"

	// 两阶段键：发送成功前为 pending，发送成功后转为 confirmed 才能用于校验
	PendingSuffix   = "pending"
	ConfirmedSuffix = "confirmed"
	CooldownSuffix  = "cooldown"
	AttemptsSuffix  = "attempts"

	DefaultMaxCodeAttempts = 5
)

var (
	ErrEmailNotFound       = errors.New("email code not found")
	ErrEmailCodeDelFailed  = errors.New("email code delete failed")
	ErrCodePendingFailed   = errors.New("code pending failed")
	ErrCodeConfirmedFailed = errors.New("code confirmed failed")
	ErrEmailCooldown       = errors.New("email code requested too frequently")
)

// 原子执行：取值+写入目标+设置 TTL+删除源，新验证码重置错误次数
var promoteScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if not val then
  return 0
end
redis.call("SET", KEYS[2], val, "PX", ARGV[1])
redis.call("DEL", KEYS[1], KEYS[3])
return 1
`)

// 错误次数 +1，达到上限时作废验证码
var failScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if n >= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1], KEYS[2])
end
return n
`)

type EmailCodeRepository struct {
	RDB         *redis.Client
	TTL         time.Duration
	MaxAttempts int
}

func (e *EmailCodeRepository) key(scope, suffix, email string) string {
	return fmt.Sprintf("%s:%s:%s:%s", EmailCodePrefix, scope, suffix, email)
}

func (e *EmailCodeRepository) ttl() time.Duration {
	if e.TTL > 0 {
		return e.TTL
	}
	return DefaultEmailCodeTTL
}

// Cooldown 同一邮箱同一用途一分钟内只能发一次
func (e *EmailCodeRepository) Cooldown(ctx context.Context, scope, email string) error {
	ok, err := e.RDB.SetNX(ctx, e.key(scope, CooldownSuffix, email), 1, EmailCooldown).Result()
	if err != nil {
		return ErrRedisUnavailable
	}
	if !ok {
		return ErrEmailCooldown
	}
	return nil
}

func (e *EmailCodeRepository) SavePending(ctx context.Context, scope, email, code string) error {
	if err := e.RDB.Set(ctx, e.key(scope, PendingSuffix, email), code, e.ttl()).Err(); err != nil {
		return ErrCodePendingFailed
	}
	return nil
}

// Confirm 邮件发送成功后把 pending 转为 confirmed
func (e *EmailCodeRepository) Confirm(ctx context.Context, scope, email string) error {
	src := e.key(scope, PendingSuffix, email)
	dst := e.key(scope, ConfirmedSuffix, email)
	px := int64(e.ttl() / time.Millisecond)
	ok, err := promoteScript.Run(ctx, e.RDB, []string{src, dst, e.key(scope, AttemptsSuffix, email)}, px).Int()
	if err != nil || ok != 1 {
		return ErrCodeConfirmedFailed
	}
	return nil
}

// DeletePending 删除 pending 键（幂等）
func (e *EmailCodeRepository) DeletePending(ctx context.Context, scope, email string) error {
	if err := e.RDB.Del(ctx, e.key(scope, PendingSuffix, email)).Err(); err != nil {
		return ErrEmailCodeDelFailed
	}
	return nil
}

// Get 获取 confirmed 的验证码（校验时使用）
func (e *EmailCodeRepository) Get(ctx context.Context, scope, email string) (string, error) {
	val, err := e.RDB.Get(ctx, e.key(scope, ConfirmedSuffix, email)).Result()
	if err != nil {
		return "", ErrEmailNotFound
	}
	return val, nil
}

// Consume 校验通过后删除，验证码只能用一次
func (e *EmailCodeRepository) Consume(ctx context.Context, scope, email string) error {
	if err := e.RDB.Del(ctx, e.key(scope, ConfirmedSuffix, email), e.key(scope, AttemptsSuffix, email)).Err(); err != nil {
		return ErrEmailCodeDelFailed
	}
	return nil
}

// Fail 记录一次错误输入，返回累计次数；达到上限后验证码作废
func (e *EmailCodeRepository) Fail(ctx context.Context, scope, email string) (int, error) {
	limit := e.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxCodeAttempts
	}
	keys := []string{e.key(scope, AttemptsSuffix, email), e.key(scope, ConfirmedSuffix, email)}
	n, err := failScript.Run(ctx, e.RDB, keys, int64(e.ttl()/time.Millisecond), limit).Int()
	if err != nil {
		return 0, ErrRedisUnavailable
	}
	return n, nil
}
