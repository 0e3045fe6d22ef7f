package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements the handful of commands the store issues. Any other
// command panics through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable

	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	fail error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		cmd.SetErr(f.fail)
		return cmd
	}
	f.data[key] = value.([]byte)
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		cmd.SetErr(f.fail)
		return cmd
	}
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del")
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "ping")
	if f.fail != nil {
		cmd.SetErr(f.fail)
		return cmd
	}
	cmd.SetVal("PONG")
	return cmd
}

func TestCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	store := NewStore(fake, time.Hour)

	sess, err := store.Create(ctx, " user-1 ")
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.UserID)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, time.Hour, fake.ttls["session:"+sess.ID])

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, got.UserID)

	require.NoError(t, store.Delete(ctx, sess.ID))
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, sess.ID))
}

func TestGetExpiredSession(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeRedis(), time.Minute)
	sess, err := store.Create(ctx, "user-1")
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackendErrorsAreNotMisses(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.fail = errors.New("connection refused")
	store := NewStore(fake, 0)

	_, err := store.Get(ctx, "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = store.Create(ctx, "user-1")
	assert.Error(t, err)
	assert.Error(t, store.Ping(ctx))
}

func TestCreateRequiresUser(t *testing.T) {
	_, err := NewStore(newFakeRedis(), 0).Create(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewStore(newFakeRedis(), 0).Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}
