package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, exists := m.values[key]; exists {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	value, exists := m.values[key]
	if !exists {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "cron:test", 0)
	if err != nil {
		t.Fatalf("construct lock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	second, err := NewRedisLock(store, "cron:test", 0)
	if err != nil {
		t.Fatalf("construct second lock: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second instance acquired a held lock")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseOnlyOwn(t *testing.T) {
	store := newMemoryStore()
	first, _ := NewRedisLock(store, "cron:test", 0)
	second, _ := NewRedisLock(store, "cron:test", 0)

	if ok, _ := first.Acquire(context.Background()); !ok {
		t.Fatal("first acquire failed")
	}
	// simulate the TTL expiring and another worker taking over
	store.values["cron:test"] = ""
	delete(store.values, "cron:test")
	if ok, _ := second.Acquire(context.Background()); !ok {
		t.Fatal("takeover acquire failed")
	}

	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, exists := store.values["cron:test"]; !exists {
		t.Fatal("stale owner deleted the new holder's lock")
	}
}
