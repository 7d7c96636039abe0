// Package lock serializes read-modify-write operations on the same records.
//
// Keys are acquired in sorted order so two operations touching the same pair
// of records can never deadlock on each other.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"kinship/internal/observability"
)

// ErrTimeout is returned when a key could not be acquired before the wait
// limit or the context ran out.
var ErrTimeout = errors.New("lock: timed out waiting for key")

// Locker acquires exclusive access to a set of keys. The returned release
// func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

func UserKey(id uint) string             { return fmt.Sprintf("user:%d", id) }
func PostKey(id uint) string             { return fmt.Sprintf("post:%d", id) }
func CommentKey(id uint) string          { return fmt.Sprintf("comment:%d", id) }
func ConversationKey(id string) string   { return "conversation:" + id }
func NotificationKey(userID uint) string { return fmt.Sprintf("notifications:%d", userID) }

// normalize sorts keys and drops duplicates.
func normalize(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

func observeWait(backend string, start time.Time) {
	observability.LockWait.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}

// LocalLocker guards keys within one process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker returns a LocalLocker that gives up after wait (0 waits for
// the context only).
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		slots: make(map[string]*slot),
		wait:  wait,
	}
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[key]; ok {
		s.refs--
		if s.refs == 0 {
			delete(l.slots, key)
		}
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	defer observeWait("local", time.Now())
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	slots := make([]*slot, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-slots[i].sem
			l.unref(held[i])
		}
	}

	for _, key := range keys {
		s := l.ref(key)
		select {
		case s.sem <- struct{}{}:
			held = append(held, key)
			slots = append(slots, s)
		case <-ctx.Done():
			l.unref(key)
			release()
			return nil, fmt.Errorf("%w %q", ErrTimeout, key)
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
