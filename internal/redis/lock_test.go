package redisclient

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func assertExclusive(t *testing.T, locker Locker, key string) {
	t.Helper()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxSeen)
	}
}

func TestLocalLockerSerializesSameKey(t *testing.T) {
	assertExclusive(t, NewLocalLocker(5*time.Second), "calendar:a:2024-06-01")
}

func TestLocalLockerTimesOut(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
		t.Fatalf("section must not run while the lock is held")
		return nil
	})
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	locker := NewLocalLocker(time.Second)
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = locker.WithLock(context.Background(), "a", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ran := false
	if err := locker.WithLock(context.Background(), "b", func(ctx context.Context) error {
		ran = true
		return nil
	}); err != nil || !ran {
		t.Fatalf("other key should not block: ran=%v err=%v", ran, err)
	}
}

func TestLocalLockerPropagatesSectionError(t *testing.T) {
	locker := NewLocalLocker(time.Second)
	boom := errors.New("boom")

	if err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected section error, got %v", err)
	}

	l := locker.(*localLocker)
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.locks) != 0 {
		t.Fatalf("released keys should be dropped, have %d", len(l.locks))
	}
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	client, err := NewRedisClient(context.Background(), Options{Addr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	key := "test:" + uuid.NewString()
	assertExclusive(t, NewRedisLocker(client, 2*time.Second, 5*time.Second), key)

	exists, err := client.Exists(context.Background(), "lock:"+key).Result()
	if err != nil || exists != 0 {
		t.Fatalf("lock key should be released: exists=%d err=%v", exists, err)
	}

	// a single attempt fails fast while another holder is inside
	impatient := NewRedisLocker(client, 2*time.Second, 0)
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = impatient.WithLock(context.Background(), key, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	if err := impatient.WithLock(context.Background(), key, func(ctx context.Context) error { return nil }); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
}
