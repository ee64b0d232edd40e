package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func backends(t *testing.T) map[string]Store {
	stores := map[string]Store{"sqlite": newSQLite(t)}

	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		require.NoError(t, err)
		r := NewRedis(redis.NewClient(opts), "applytrack-test:"+t.Name()+":")
		t.Cleanup(func() { _ = r.Close() })
		stores["redis"] = r
	}

	return stores
}

func TestStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var token string
			ok, err := s.Get(ctx, "authToken", &token)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "authToken", "abc"))
			ok, err = s.Get(ctx, "authToken", &token)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "abc", token)

			require.NoError(t, s.Set(ctx, "devMode", true))
			var dev bool
			_, err = s.Get(ctx, "devMode", &dev)
			require.NoError(t, err)
			assert.True(t, dev)

			require.NoError(t, s.Delete(ctx, "authToken"))
			ok, err = s.Get(ctx, "authToken", &token)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := UpdateJSON(ctx, s, "list", func(v *[]string) error {
				*v = append(*v, "a")
				return nil
			})
			require.NoError(t, err)

			err = UpdateJSON(ctx, s, "list", func(v *[]string) error {
				*v = append(*v, "b")
				return nil
			})
			require.NoError(t, err)

			var got []string
			_, err = s.Get(ctx, "list", &got)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, got)
		})
	}
}

func TestStore_UpdateAbortLeavesValue(t *testing.T) {
	ctx := context.Background()
	errStop := errors.New("stop")

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "list", []string{"a"}))

			err := UpdateJSON(ctx, s, "list", func(v *[]string) error {
				*v = nil
				return errStop
			})
			assert.ErrorIs(t, err, errStop)

			var got []string
			_, err = s.Get(ctx, "list", &got)
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, got)
		})
	}
}

func TestStore_UpdateNilDeletes(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "failedJobs", []int{1}))
			require.NoError(t, s.Update(ctx, "failedJobs", func([]byte) ([]byte, error) { return nil, nil }))

			ok, err := s.Get(ctx, "failedJobs", nil)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_ConcurrentUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	const writers = 20

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := UpdateJSON(ctx, s, "counter", func(v *[]int) error {
						*v = append(*v, i)
						return nil
					})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			var got []int
			_, err := s.Get(ctx, "counter", &got)
			require.NoError(t, err)
			assert.Len(t, got, writers)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &Config{Driver: "etcd"}, nil)
	assert.Error(t, err)
}
