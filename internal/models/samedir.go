package models

import "sync"

// SameDirGroup coalesces tasks that share a "-m <folder>" same-directory
// key into one upload (spec §3, §4.5). The first task to declare the
// folder creates the group; siblings join until the declared total is
// reached, at which point the group is dissolved.
type SameDirGroup struct {
	mu sync.Mutex

	FolderKey     string
	DeclaredTotal int
	joined        map[string]bool
	failed        map[string]bool
	owner         string // task id that owns the pipeline/upload for the group
	dissolved     bool

	// ready is closed once the group's pipeline has completed and
	// siblings waiting in PipelineProcessing may proceed to Uploading.
	ready     chan struct{}
	readyOnce sync.Once
}

// NewSameDirGroup constructs a group for folderKey declaring total members.
func NewSameDirGroup(folderKey string, total int) *SameDirGroup {
	return &SameDirGroup{
		FolderKey:     folderKey,
		DeclaredTotal: total,
		joined:        make(map[string]bool),
		failed:        make(map[string]bool),
		ready:         make(chan struct{}),
	}
}

// Join registers taskID as a member. It returns true if this is the first
// joiner (the group's pipeline owner) and whether the group is now
// complete (joined count has reached DeclaredTotal).
func (g *SameDirGroup) Join(taskID string) (isOwner bool, complete bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	isOwner = len(g.joined) == 0 && g.owner == ""
	if isOwner {
		g.owner = taskID
	}
	g.joined[taskID] = true
	complete = len(g.joined) >= g.DeclaredTotal
	return isOwner, complete
}

// Fail marks taskID as failed; per spec §9's adopted dissolution rule, a
// failing sibling is removed from the pending set and does not block the
// remaining siblings from proceeding once their own downloads finish.
func (g *SameDirGroup) Fail(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed[taskID] = true
}

// Owner returns the task id that owns the group's shared pipeline/upload,
// or "" if no task has joined yet.
func (g *SameDirGroup) Owner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner
}

// SignalReady closes the ready channel exactly once, releasing any
// siblings blocked in WaitReady.
func (g *SameDirGroup) SignalReady() {
	g.readyOnce.Do(func() { close(g.ready) })
}

// WaitReady blocks until SignalReady has been called.
func (g *SameDirGroup) WaitReady() <-chan struct{} {
	return g.ready
}

// Dissolve marks the group dissolved; its working directory becomes owned
// by whichever task finalizes first (spec §3 invariant 4, §9).
func (g *SameDirGroup) Dissolve() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dissolved = true
}

func (g *SameDirGroup) Dissolved() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dissolved
}
