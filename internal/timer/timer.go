// Package timer runs delayed callbacks on behalf of the game server. The wall-clock
// implementation backs production; Manual lets tests decide when time passes.
package timer

import (
	"sort"
	"sync"
	"time"
)

// Handle cancels a scheduled callback. Cancel reports whether the callback was stopped
// before it ran.
type Handle interface {
	Cancel() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Handle
}

// WallClock schedules with time.AfterFunc.
type WallClock struct{}

func (WallClock) Schedule(d time.Duration, fn func()) Handle {
	return wallHandle{time.AfterFunc(d, fn)}
}

type wallHandle struct{ t *time.Timer }

func (h wallHandle) Cancel() bool { return h.t.Stop() }

// Manual is a Scheduler whose clock only moves on Advance. Callbacks run synchronously on
// the goroutine calling Advance, in due order.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*manualTask
}

type manualTask struct {
	m        *Manual
	due      time.Duration
	seq      int
	fn       func()
	canceled bool
	fired    bool
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Schedule(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	task := &manualTask{m: m, due: m.now + d, seq: m.seq, fn: fn}
	m.pending = append(m.pending, task)
	return task
}

func (t *manualTask) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.fired || t.canceled {
		return false
	}
	t.canceled = true
	return true
}

// Advance moves the clock forward by d and runs every callback that became due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		task := m.nextDue(target)
		if task == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = task.due
		task.fired = true
		m.mu.Unlock()

		// fn may schedule more work, so it runs without the lock.
		task.fn()
	}
}

// Pending returns the number of callbacks that are neither fired nor canceled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.pending {
		if !t.fired && !t.canceled {
			n++
		}
	}
	return n
}

// nextDue pops the earliest live task due at or before target. Assumes lock is held.
func (m *Manual) nextDue(target time.Duration) *manualTask {
	live := m.pending[:0]
	for _, t := range m.pending {
		if !t.fired && !t.canceled {
			live = append(live, t)
		}
	}
	m.pending = live
	if len(live) == 0 {
		return nil
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].due != live[j].due {
			return live[i].due < live[j].due
		}
		return live[i].seq < live[j].seq
	})
	if live[0].due > target {
		return nil
	}
	return live[0]
}
