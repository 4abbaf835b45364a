// Package queue implements the Queue Controller (spec §4.3): two
// independent bounded-capacity admission gates, one for downloads and one
// for uploads, with FIFO wake ordering and an optional shared-capacity
// mode (QUEUE_ALL).
package queue

import (
	"sync"

	"github.com/rescale-labs/taskorc/internal/taskerr"
)

// waiter is one entry in a gate's waiting map.
type waiter struct {
	taskID string
	slots  int // required-slots; always 1 today, reserved for future batch slots
	wake   chan struct{}
}

// Gate is a bounded-capacity admission mutex with FIFO queueing (spec
// §4.3). capacity == 0 means unbounded: admit always succeeds immediately.
type Gate struct {
	mu       sync.Mutex
	capacity int
	active   map[string]bool
	waiting  []*waiter // insertion order
	stopped  bool

	// shared, if non-nil, makes this gate and its sibling draw from one
	// logical capacity counter (QUEUE_ALL): both gates' admit/release
	// calls go through the shared counter instead of this Gate's own.
	shared *sharedCapacity
}

// sharedCapacity backs QUEUE_ALL: both the download and upload Gate share
// one active set and one capacity.
type sharedCapacity struct {
	mu       sync.Mutex
	capacity int
	active   map[string]bool
	waiting  []*waiter
	stopped  bool
}

// NewGate constructs a Gate with the given capacity (0 = unbounded).
func NewGate(capacity int) *Gate {
	return &Gate{
		capacity: capacity,
		active:   make(map[string]bool),
	}
}

// NewSharedPair constructs two Gates (download, upload) that share one
// logical capacity counter, per spec §4.3's queue_all flag.
func NewSharedPair(capacity int) (download, upload *Gate) {
	sc := &sharedCapacity{
		capacity: capacity,
		active:   make(map[string]bool),
	}
	download = &Gate{shared: sc}
	upload = &Gate{shared: sc}
	return download, upload
}

// Admit attempts to admit taskID. If the gate (or shared counter) has
// spare capacity, taskID joins the active set and admitted is true. Else
// taskID joins the FIFO waiting list and the caller must block on the
// returned channel, which is closed when the task is activated or when
// StopAll fires.
//
// Admit never fails for capacity reasons; it only returns an error when
// the gate has already been stopped (spec §4.3: "admit never throws for
// capacity reasons; callers await the event").
func (g *Gate) Admit(taskID string) (admitted bool, wake <-chan struct{}, err error) {
	if g.shared != nil {
		return g.shared.admit(taskID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopped {
		return false, nil, taskerr.ErrStopped
	}
	if g.capacity == 0 || len(g.active) < g.capacity {
		g.active[taskID] = true
		return true, nil, nil
	}

	ch := make(chan struct{})
	g.waiting = append(g.waiting, &waiter{taskID: taskID, slots: 1, wake: ch})
	return false, ch, nil
}

// Release removes taskID from the active set and activates the first
// waiter (in FIFO order) whose required slots now fit. A no-op if taskID
// is not in the active set (spec §4.3 idempotence).
func (g *Gate) Release(taskID string) {
	if g.shared != nil {
		g.shared.release(taskID)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked(taskID)
}

func (g *Gate) releaseLocked(taskID string) {
	if !g.active[taskID] {
		return
	}
	delete(g.active, taskID)
	g.wakeWaitersLocked()
}

func (g *Gate) wakeWaitersLocked() {
	for len(g.waiting) > 0 {
		w := g.waiting[0]
		if g.capacity != 0 && len(g.active) >= g.capacity {
			break
		}
		g.waiting = g.waiting[1:]
		g.active[w.taskID] = true
		close(w.wake)
	}
}

// StopAll sets the stopped flag: further Admit calls fail immediately
// with {Stopped}, and every current waiter is woken (the caller learns of
// the stop by checking Stopped() after the channel closes).
func (g *Gate) StopAll() {
	if g.shared != nil {
		g.shared.stopAll()
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	for _, w := range g.waiting {
		close(w.wake)
	}
	g.waiting = nil
}

// Stopped reports whether StopAll has been called.
func (g *Gate) Stopped() bool {
	if g.shared != nil {
		g.shared.mu.Lock()
		defer g.shared.mu.Unlock()
		return g.shared.stopped
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// ActiveCount returns the current size of the active set.
func (g *Gate) ActiveCount() int {
	if g.shared != nil {
		g.shared.mu.Lock()
		defer g.shared.mu.Unlock()
		return len(g.shared.active)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

func (sc *sharedCapacity) admit(taskID string) (bool, <-chan struct{}, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.stopped {
		return false, nil, taskerr.ErrStopped
	}
	if sc.capacity == 0 || len(sc.active) < sc.capacity {
		sc.active[taskID] = true
		return true, nil, nil
	}

	ch := make(chan struct{})
	sc.waiting = append(sc.waiting, &waiter{taskID: taskID, slots: 1, wake: ch})
	return false, ch, nil
}

func (sc *sharedCapacity) release(taskID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.active[taskID] {
		return
	}
	delete(sc.active, taskID)
	for len(sc.waiting) > 0 {
		w := sc.waiting[0]
		if sc.capacity != 0 && len(sc.active) >= sc.capacity {
			break
		}
		sc.waiting = sc.waiting[1:]
		sc.active[w.taskID] = true
		close(w.wake)
	}
}

func (sc *sharedCapacity) stopAll() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stopped = true
	for _, w := range sc.waiting {
		close(w.wake)
	}
	sc.waiting = nil
}
