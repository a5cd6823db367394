package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rrepo "Clubs_Hub/internal/repository/redis"
	"Clubs_Hub/internal/testutil"
)

func TestOpen(t *testing.T) {
	_, mr := testutil.OpenRedis(t)
	ctx := context.Background()

	rdb, err := rrepo.Open(ctx, rrepo.Options{Addr: mr.Addr(), PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	assert.Equal(t, 4, rdb.Options().PoolSize)
	assert.Equal(t, 5*time.Second, rdb.Options().DialTimeout)
	require.NoError(t, rdb.Set(ctx, "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	addr := mr.Addr()
	mr.Close()
	_, err = rrepo.Open(ctx, rrepo.Options{Addr: addr, DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestSessionCache(t *testing.T) {
	rdb, mr := testutil.OpenRedis(t)
	ctx := context.Background()
	c := &rrepo.SessionCache{RDB: rdb}

	require.NoError(t, c.Put(ctx, "s1", 42, time.Minute))
	uid, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, uid)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "s1")
	assert.ErrorIs(t, err, rrepo.ErrSessionNotFound)

	require.NoError(t, c.Put(ctx, "s2", 7, time.Minute))
	require.NoError(t, c.Delete(ctx, "s2", "missing"))
	_, err = c.Get(ctx, "s2")
	assert.ErrorIs(t, err, rrepo.ErrSessionNotFound)
}

func TestEmailCodeRepository_TwoPhase(t *testing.T) {
	rdb, _ := testutil.OpenRedis(t)
	ctx := context.Background()
	repo := &rrepo.EmailCodeRepository{RDB: rdb}

	require.NoError(t, repo.SavePending(ctx, rrepo.ScopeRegister, "a@kmit.in", "123456"))
	_, err := repo.Get(ctx, rrepo.ScopeRegister, "a@kmit.in")
	assert.ErrorIs(t, err, rrepo.ErrEmailNotFound)

	require.NoError(t, repo.Confirm(ctx, rrepo.ScopeRegister, "a@kmit.in"))
	code, err := repo.Get(ctx, rrepo.ScopeRegister, "a@kmit.in")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	assert.ErrorIs(t, repo.Confirm(ctx, rrepo.ScopeRegister, "a@kmit.in"), rrepo.ErrCodeConfirmedFailed)

	_, err = repo.Get(ctx, rrepo.ScopeReset, "a@kmit.in")
	assert.ErrorIs(t, err, rrepo.ErrEmailNotFound)

	require.NoError(t, repo.Consume(ctx, rrepo.ScopeRegister, "a@kmit.in"))
	_, err = repo.Get(ctx, rrepo.ScopeRegister, "a@kmit.in")
	assert.ErrorIs(t, err, rrepo.ErrEmailNotFound)
}

func TestEmailCodeRepository_FailBurnsCodeAtLimit(t *testing.T) {
	rdb, mr := testutil.OpenRedis(t)
	ctx := context.Background()
	repo := &rrepo.EmailCodeRepository{RDB: rdb, MaxAttempts: 3}
	require.NoError(t, repo.SavePending(ctx, rrepo.ScopeReset, "b@kmit.in", "654321"))
	require.NoError(t, repo.Confirm(ctx, rrepo.ScopeReset, "b@kmit.in"))

	n, err := repo.Fail(ctx, rrepo.ScopeReset, "b@kmit.in")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mr.TTL("email:code:reset:attempts:b@kmit.in") > 0)
	n, err = repo.Fail(ctx, rrepo.ScopeReset, "b@kmit.in")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = repo.Get(ctx, rrepo.ScopeReset, "b@kmit.in")
	require.NoError(t, err)

	n, err = repo.Fail(ctx, rrepo.ScopeReset, "b@kmit.in")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = repo.Get(ctx, rrepo.ScopeReset, "b@kmit.in")
	assert.ErrorIs(t, err, rrepo.ErrEmailNotFound)
	assert.False(t, mr.Exists("email:code:reset:attempts:b@kmit.in"))

	// 重新发码后计数从零开始
	require.NoError(t, repo.SavePending(ctx, rrepo.ScopeReset, "b@kmit.in", "111111"))
	_, err = repo.Fail(ctx, rrepo.ScopeReset, "b@kmit.in")
	require.NoError(t, err)
	require.NoError(t, repo.Confirm(ctx, rrepo.ScopeReset, "b@kmit.in"))
	assert.False(t, mr.Exists("email:code:reset:attempts:b@kmit.in"))
}

func TestEmailCodeRepository_Cooldown(t *testing.T) {
	rdb, mr := testutil.OpenRedis(t)
	ctx := context.Background()
	repo := &rrepo.EmailCodeRepository{RDB: rdb}

	require.NoError(t, repo.Cooldown(ctx, rrepo.ScopeReset, "a@kmit.in"))
	assert.ErrorIs(t, repo.Cooldown(ctx, rrepo.ScopeReset, "a@kmit.in"), rrepo.ErrEmailCooldown)
	mr.FastForward(rrepo.EmailCooldown + time.Second)
	assert.NoError(t, repo.Cooldown(ctx, rrepo.ScopeReset, "a@kmit.in"))
}

func TestDistLock(t *testing.T) {
	rdb, _ := testutil.OpenRedis(t)
	ctx := context.Background()
	l := &rrepo.DistLock{RDB: rdb}

	ok, err := l.Acquire(ctx, "scheduler", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "scheduler", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "scheduler", "b"))
	ok, _ = l.Acquire(ctx, "scheduler", "b", time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "scheduler", "a"))
	ok, err = l.Acquire(ctx, "scheduler", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDashboardCache(t *testing.T) {
	rdb, _ := testutil.OpenRedis(t)
	ctx := context.Background()
	c := &rrepo.DashboardCache{RDB: rdb, TTL: time.Minute}

	var out map[string]int
	hit, err := c.Get(ctx, "admin", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "admin", map[string]int{"clubs": 3}))
	hit, err = c.Get(ctx, "admin", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, out["clubs"])

	require.NoError(t, c.Invalidate(ctx, "admin"))
	hit, _ = c.Get(ctx, "admin", &out)
	assert.False(t, hit)
}
