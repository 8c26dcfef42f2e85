package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, found, err := s.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("Get(missing) = found %v, err %v", found, err)
	}
	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(got) != "v1" {
		t.Fatalf("Get(k) = %q, %v, %v", got, found, err)
	}
	if err := s.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if got, _, _ := s.Get(ctx, "k"); string(got) != "v2" {
		t.Errorf("Get(k) after overwrite = %q", got)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Error("key still present after Delete")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(Config{})
	defer s.Close()
	exerciseStore(t, s)

	buf := []byte("abc")
	s.Set(context.Background(), "copy", buf)
	buf[0] = 'x'
	if got, _, _ := s.Get(context.Background(), "copy"); string(got) != "abc" {
		t.Errorf("stored value aliased caller buffer: %q", got)
	}
}

func TestDiskStore(t *testing.T) {
	s, err := NewDiskStore(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
}

func TestDiskStore_TTL(t *testing.T) {
	s, err := NewDiskStore(Config{Dir: t.TempDir(), TTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s.Set(ctx, "k", []byte("v"))

	if _, found, _ := s.Get(ctx, "k"); !found {
		t.Fatal("fresh entry should be found")
	}
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Error("expired entry should be a miss")
	}
}

func TestDiskStore_RequiresDir(t *testing.T) {
	if _, err := NewDiskStore(Config{}); err == nil {
		t.Error("expected error without a directory")
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := Config{TTL: time.Minute, Redis: RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"}}

	s, err := NewRedisStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)

	s.Set(context.Background(), "ttl", []byte("v"))
	if !mr.Exists("test:ttl") {
		t.Fatal("expected prefixed key in redis")
	}
	mr.FastForward(2 * time.Minute)
	if _, found, _ := s.Get(context.Background(), "ttl"); found {
		t.Error("entry should have expired")
	}
}

func TestRedisStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisStore(ctx, Config{Redis: RedisConfig{Addr: addr}}); err == nil {
		t.Error("expected connection error")
	}
}

func TestOpen(t *testing.T) {
	c, err := Open(context.Background(), Config{Enabled: false}, nil)
	if err != nil || c != nil {
		t.Fatalf("disabled cache = %v, %v; want nil, nil", c, err)
	}

	if _, err := OpenStore(context.Background(), Config{Backend: "memcached"}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}

	c, err = Open(context.Background(), Config{Enabled: true, Backend: BackendDisk, Dir: t.TempDir()}, nil)
	if err != nil || c == nil {
		t.Fatalf("Open(disk) = %v, %v", c, err)
	}
	c.Close()
}

func TestCache_GetOrCompute(t *testing.T) {
	c := New(NewMemoryStore(Config{}), nil)
	ctx := context.Background()
	var calls int
	compute := func(context.Context) ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	for range 3 {
		got, err := c.GetOrCompute(ctx, "k", compute)
		if err != nil || string(got) != "computed" {
			t.Fatalf("GetOrCompute() = %q, %v", got, err)
		}
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
	if hits, misses := c.Stats(); hits != 2 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses", hits, misses)
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := New(NewMemoryStore(Config{}), nil)
	ctx := context.Background()
	boom := errors.New("boom")

	if _, err := c.GetOrCompute(ctx, "k", func(context.Context) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	got, err := c.GetOrCompute(ctx, "k", func(context.Context) ([]byte, error) { return []byte("ok"), nil })
	if err != nil || string(got) != "ok" {
		t.Errorf("retry after error = %q, %v", got, err)
	}
}

func TestCache_SingleFlight(t *testing.T) {
	c := New(NewMemoryStore(Config{}), nil)
	var calls atomic.Int32
	release := make(chan struct{})

	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("page"), nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "image:1", compute)
			if err != nil {
				t.Errorf("GetOrCompute() error = %v", err)
			}
			results[i] = string(v)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("compute ran %d times, want 1", got)
	}
	for i, r := range results {
		if r != "page" {
			t.Errorf("result %d = %q", i, r)
		}
	}
}

func TestCache_NilComputesAlways(t *testing.T) {
	var c *Cache
	var calls int
	for range 2 {
		c.GetOrCompute(context.Background(), "k", func(context.Context) ([]byte, error) {
			calls++
			return nil, nil
		})
	}
	if calls != 2 {
		t.Errorf("nil cache computed %d times, want 2", calls)
	}
	if err := c.Close(); err != nil {
		t.Error(err)
	}
}

func TestKeys(t *testing.T) {
	if got := ImageKey("abc", 3, 250); got != "image:abc:3:250" {
		t.Errorf("ImageKey() = %q", got)
	}
	if got := VisionKey("img", "openrouter", "m", "p"); got != "vision:img:openrouter:m:p" {
		t.Errorf("VisionKey() = %q", got)
	}
	if Hash([]byte("a")) == Hash([]byte("b")) {
		t.Error("Hash collision")
	}
}
