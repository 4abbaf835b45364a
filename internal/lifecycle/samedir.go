package lifecycle

import "github.com/rescale-labs/taskorc/internal/models"

// joinSameDir joins taskID to the group for folderKey, creating it on
// first use (spec §3 SameDirGroup, §4.5 same-directory handling). The
// declared total isn't known at join time from this call alone; callers
// that need a fixed N (spec invariant 4) pass it via TaskConfig at
// dispatch time and the dispatcher seeds the group before submitting its
// siblings — here we default to growing the group lazily, which is safe
// because Join/Fail only ever add members.
func (e *Engine) joinSameDir(folderKey, taskID string) (group *models.SameDirGroup, isOwner bool) {
	e.sameDirMu.Lock()
	g, ok := e.sameDir[folderKey]
	if !ok {
		g = models.NewSameDirGroup(folderKey, 0)
		e.sameDir[folderKey] = g
	}
	e.sameDirMu.Unlock()

	isOwner, _ = g.Join(taskID)
	return g, isOwner
}

// leaveSameDir records t's terminal state against its group and dissolves
// the group once empty (spec §9 adopted rule: a failing sibling is
// removed from the pending set rather than blocking the rest; the first
// finalizer owns the folder).
func (e *Engine) leaveSameDir(t *task) {
	if t.state == StateFailed || t.state == StateCancelled {
		t.group.Fail(t.cfg.ID)
	}
	if t.group.Dissolved() {
		return
	}
	// Group membership beyond Join/Fail is bookkeeping only; dissolution
	// against the declared total happens where the dispatcher seeds it
	// (DeclaredTotal > 0). With DeclaredTotal == 0 (unseeded group), the
	// group is dissolved as soon as its owner finalizes.
	if t.isOwner {
		e.sameDirMu.Lock()
		delete(e.sameDir, t.group.FolderKey)
		e.sameDirMu.Unlock()
		t.group.Dissolve()
	}
}
